// Package config loads the indexer's configuration: the cache
// directory, the module map (target dirs, test dirs, and jars per
// module), and the optional platform library archive. Configuration
// is read from a KDL document following the teacher's own
// decode-then-validate shape.
package config

import (
	"os"
	"path/filepath"
)

// Module describes one indexed module's inputs: source roots to walk
// directly and jar archives to open and walk.
type Module struct {
	Name           string
	TargetDirs     []string
	TestTargetDirs []string
	CompileJars    []string
	TestJars       []string
	// Exclude holds doublestar glob patterns (matched against each
	// candidate path relative to the target/test dir being walked)
	// for class files that should never be indexed or watched, e.g.
	// generated-code directories checked into a build output tree.
	Exclude []string
}

// AllJars flattens CompileJars and TestJars into one slice, the form
// the refresh coordinator actually consumes.
func (m Module) AllJars() []string {
	jars := make([]string, 0, len(m.CompileJars)+len(m.TestJars))
	jars = append(jars, m.CompileJars...)
	jars = append(jars, m.TestJars...)
	return jars
}

// Performance bounds the refresh coordinator's worker pool and the
// query cache's size.
type Performance struct {
	MaxGoroutines   int
	CacheEntries    int
	CacheTTLSeconds int
}

// Index controls how the listener watches for filesystem changes.
type Index struct {
	WatchMode       bool
	WatchDebounceMs int
}

// Config is the fully resolved indexer configuration.
type Config struct {
	CacheDir    string
	Modules     map[string]Module
	JavaLib     string
	Performance Performance
	Index       Index
}

// AllJars flattens every module's jars into one deduplicated slice,
// in module-name order for determinism.
func (c *Config) AllJars() []string {
	seen := make(map[string]bool)
	var jars []string
	for _, name := range c.sortedModuleNames() {
		for _, jar := range c.Modules[name].AllJars() {
			if !seen[jar] {
				seen[jar] = true
				jars = append(jars, jar)
			}
		}
	}
	return jars
}

func (c *Config) sortedModuleNames() []string {
	names := make([]string, 0, len(c.Modules))
	for name := range c.Modules {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func defaultConfig() *Config {
	return &Config{
		CacheDir: ".lci-cache",
		Modules:  map[string]Module{},
		Performance: Performance{
			MaxGoroutines:   0,
			CacheEntries:    256,
			CacheTTLSeconds: 600,
		},
		Index: Index{
			WatchMode:       true,
			WatchDebounceMs: 300,
		},
	}
}

// Load reads ".lci-index.kdl" from projectRoot, falling back to
// defaults if the file does not exist.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".lci-index.kdl")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		return cfg, ValidateAndSetDefaults(cfg, projectRoot)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigReadError(path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}
	if err := ValidateAndSetDefaults(cfg, projectRoot); err != nil {
		return nil, err
	}
	return cfg, nil
}
