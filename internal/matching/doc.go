// Package matching implements the pattern matchers used by the rule
// engine: scalar and list matching, host affix patterns, recursive JSON
// subset matching, content matching, and JSONPath conditions.
//
// A string pattern beginning with the tilde marker ("~") is a regular
// expression searched anywhere in the string form of the value; all other
// patterns match literally. Patterns never apply to object keys.
package matching
