package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

// ValidateAndSetDefaults checks field invariants and fills in any
// runtime-dependent defaults (worker count) that only make sense once
// a project root is known.
func ValidateAndSetDefaults(cfg *Config, projectRoot string) error {
	if cfg.CacheDir == "" {
		return lcierrors.NewConfigError("cache_dir", "", fmt.Errorf("cache_dir cannot be empty"))
	}
	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(projectRoot, cfg.CacheDir)
	}
	if err := checkWritable(cfg.CacheDir); err != nil {
		return lcierrors.NewConfigError("cache_dir", cfg.CacheDir, err)
	}

	if cfg.JavaLib != "" && !filepath.IsAbs(cfg.JavaLib) {
		cfg.JavaLib = filepath.Join(projectRoot, cfg.JavaLib)
	}

	for name, mod := range cfg.Modules {
		// Paths in the KDL document are relative to the project root
		// they were loaded from, not the process's working directory —
		// resolve them now so the refresh coordinator and this
		// directory-existence check agree on what they point to
		// regardless of where the indexer is invoked from.
		mod.TargetDirs = resolveAll(projectRoot, mod.TargetDirs)
		mod.TestTargetDirs = resolveAll(projectRoot, mod.TestTargetDirs)
		mod.CompileJars = resolveAll(projectRoot, mod.CompileJars)
		mod.TestJars = resolveAll(projectRoot, mod.TestJars)

		if len(mod.TargetDirs) == 0 && len(mod.TestTargetDirs) == 0 && len(mod.AllJars()) == 0 {
			return lcierrors.NewConfigError("modules."+name, "", fmt.Errorf("module %q has no target dirs or jars", name))
		}
		// Jars are allowed to be missing: they are build outputs that
		// may not exist yet on a clean checkout, and the refresh
		// coordinator already tolerates an absent configured jar.
		// Source directories are not build outputs and must exist.
		for _, dir := range append(append([]string{}, mod.TargetDirs...), mod.TestTargetDirs...) {
			if _, err := os.Stat(dir); err != nil {
				return lcierrors.NewConfigError("modules."+name, dir, fmt.Errorf("configured directory does not exist: %w", err))
			}
		}
		cfg.Modules[name] = mod
	}

	if cfg.Performance.MaxGoroutines < 0 {
		return lcierrors.NewConfigError("performance.max_goroutines", fmt.Sprint(cfg.Performance.MaxGoroutines),
			fmt.Errorf("max_goroutines cannot be negative"))
	}
	if cfg.Performance.MaxGoroutines == 0 {
		cfg.Performance.MaxGoroutines = max(1, runtime.NumCPU()-1)
	}

	if cfg.Performance.CacheEntries <= 0 {
		cfg.Performance.CacheEntries = 256
	}
	if cfg.Performance.CacheTTLSeconds <= 0 {
		cfg.Performance.CacheTTLSeconds = 600
	}

	if cfg.Index.WatchDebounceMs < 0 {
		return lcierrors.NewConfigError("index.watch_debounce_ms", fmt.Sprint(cfg.Index.WatchDebounceMs),
			fmt.Errorf("watch_debounce_ms cannot be negative"))
	}
	if cfg.Index.WatchDebounceMs == 0 {
		cfg.Index.WatchDebounceMs = 300
	}

	return nil
}

// resolveAll joins each relative path in paths against root, leaving
// already-absolute paths untouched.
func resolveAll(root string, paths []string) []string {
	if len(paths) == 0 {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(root, p)
		}
	}
	return out
}

// checkWritable ensures dir exists (creating it if necessary) and that
// a file can actually be created inside it, since a read-only bind
// mount or a permission-denied parent would otherwise only surface
// once the first refresh tries to open the sqlite store.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create cache directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return fmt.Errorf("cache directory is not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// NewConfigReadError wraps a failure to read the config file from disk.
func NewConfigReadError(path string, err error) error {
	return lcierrors.NewConfigError("path", path, err)
}

// NewConfigParseError wraps a KDL syntax error.
func NewConfigParseError(err error) error {
	return lcierrors.NewConfigError("kdl", "", err)
}

// NewConfigFieldError wraps a malformed individual field, identified
// by its containing node and field name.
func NewConfigFieldError(node, field string, err error) error {
	return lcierrors.NewConfigError(node+"."+field, "", err)
}
