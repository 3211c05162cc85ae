package rules

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and parses a configuration file. Referenced local files
// resolve relative to the configuration file's directory unless
// overridden with LoadWithBaseDir.
func Load(path string) (*RuleSet, error) {
	return LoadWithBaseDir(path, filepath.Dir(path))
}

// LoadWithBaseDir reads and parses a configuration file with an explicit
// base directory for referenced local files.
func LoadWithBaseDir(path, baseDir string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rs.BaseDir = baseDir
	return rs, nil
}
