// Moxy is a rule-driven HTTP interception server: it matches live
// traffic against a declarative JSON rule document and passes,
// synthesizes, or rewrites each transaction.
//
// Usage:
//
//	# Serve with a rule document, proxying everything else upstream
//	moxy serve --rules mock.json --upstream https://api.example.com
//
//	# Check a rule document without serving
//	moxy validate mock.json
//
//	# Show version information
//	moxy version
package main

func main() {
	Execute()
}
