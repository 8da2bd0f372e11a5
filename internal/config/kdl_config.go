package config

import (
	"fmt"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseKDL decodes a ".lci-index.kdl" document into a Config. The
// expected shape:
//
//	cache_dir ".lci-cache"
//	java_lib "/opt/jdk/lib/rt.jar"
//	performance {
//	    max_goroutines 8
//	    cache_entries 256
//	    cache_ttl_seconds 600
//	}
//	index {
//	    watch_mode true
//	    watch_debounce_ms 300
//	}
//	module "core" {
//	    target_dirs "src/main/java"
//	    test_target_dirs "src/test/java"
//	    compile_jars "lib/guava.jar"
//	    test_jars "lib/junit.jar"
//	    exclude "generated/**" "**/*Test.class"
//	}
func parseKDL(content string) (*Config, error) {
	cfg := defaultConfig()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, NewConfigParseError(err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "cache_dir":
			if s, ok := firstStringArg(n); ok {
				cfg.CacheDir = s
			}
		case "java_lib":
			if s, ok := firstStringArg(n); ok {
				cfg.JavaLib = s
			}
		case "performance":
			parsePerformance(cfg, n)
		case "index":
			parseIndex(cfg, n)
		case "module":
			mod, err := parseModule(n)
			if err != nil {
				return nil, err
			}
			cfg.Modules[mod.Name] = mod
		}
	}

	return cfg, nil
}

func parsePerformance(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_goroutines":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.MaxGoroutines = v
			}
		case "cache_entries":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.CacheEntries = v
			}
		case "cache_ttl_seconds":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.CacheTTLSeconds = v
			}
		}
	}
}

func parseIndex(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "watch_mode":
			if v, ok := firstBoolArg(cn); ok {
				cfg.Index.WatchMode = v
			}
		case "watch_debounce_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.WatchDebounceMs = v
			}
		}
	}
}

func parseModule(n *document.Node) (Module, error) {
	name, ok := firstStringArg(n)
	if !ok {
		return Module{}, NewConfigFieldError("module", "name", fmt.Errorf("module node requires a name argument"))
	}
	mod := Module{Name: name}
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "target_dirs":
			mod.TargetDirs = append(mod.TargetDirs, collectStringArgs(cn)...)
		case "test_target_dirs":
			mod.TestTargetDirs = append(mod.TestTargetDirs, collectStringArgs(cn)...)
		case "compile_jars":
			mod.CompileJars = append(mod.CompileJars, collectStringArgs(cn)...)
		case "test_jars":
			mod.TestJars = append(mod.TestJars, collectStringArgs(cn)...)
		case "exclude":
			mod.Exclude = append(mod.Exclude, collectStringArgs(cn)...)
		}
	}
	return mod, nil
}

// Helper functions leveraging the kdl-go document model, adapted from
// the teacher's propagation-config node walkers.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
