// Command lci-indexer is the CLI front end for the classfile search and
// index subsystem: one-shot refresh, a long-running watch loop, and
// ad-hoc query/lookup, each a thin wrapper over internal/index.Service.
// Flag and subcommand layout follows the teacher's own cmd/lci/main.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/mcpserver"
	"github.com/standardbeagle/lci/internal/model"
	"github.com/standardbeagle/lci/internal/version"
	"github.com/standardbeagle/lci/pkg/pathutil"
)

func main() {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lci-indexer: %v\n", err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	return &cli.App{
		Name:    "lci-indexer",
		Usage:   "Classfile search and index subsystem for JVM build outputs",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory to load .lci-index.kdl from",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug-level logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Run a single refresh: reconcile the index against the current on-disk state",
				Action: indexCommand,
			},
			{
				Name:  "watch",
				Usage: "Refresh once, then keep watching for class-file changes until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-initial-refresh",
						Usage: "Start watching without an initial refresh pass",
					},
				},
				Action: watchCommand,
			},
			{
				Name:      "query",
				Aliases:   []string{"q"},
				Usage:     "Search indexed classes (and, with --methods, methods) by name",
				ArgsUsage: "<term>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"m"},
						Usage:   "Maximum results to return",
						Value:   50,
					},
					&cli.BoolFlag{
						Name:  "methods",
						Usage: "Also match methods; fields are never matched (space-separated terms, all must match)",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: queryCommand,
			},
			{
				Name:      "find",
				Usage:     "Look up one symbol by its exact fully-qualified name",
				ArgsUsage: "<fqn>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: findCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server with stdio transport",
				Action: mcpCommand,
			},
		},
	}
}

func newLogger(c *cli.Context) *logging.Logger {
	level := logging.LevelInfo
	if c.Bool("verbose") {
		level = logging.LevelDebug
	}
	return logging.New(os.Stderr, level)
}

// projectRoot resolves --root to an absolute path for relativizing
// output paths; a resolution failure just disables relativizing.
func projectRoot(c *cli.Context) string {
	abs, err := filepath.Abs(c.String("root"))
	if err != nil {
		return ""
	}
	return abs
}

func openService(c *cli.Context) (*index.Service, error) {
	cfg, err := config.Load(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return index.Open(cfg, nil, newLogger(c))
}

func indexCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	deleted, indexed, err := svc.Refresh(context.Background())
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	fmt.Printf("deleted %d, indexed %d\n", deleted, indexed)
	return nil
}

func watchCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !c.Bool("skip-initial-refresh") {
		deleted, indexed, err := svc.Refresh(context.Background())
		if err != nil {
			return fmt.Errorf("initial refresh failed: %w", err)
		}
		fmt.Printf("deleted %d, indexed %d\n", deleted, indexed)
	}

	if err := svc.StartWatching(); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("watching for class-file changes, press Ctrl-C to stop")
	<-sigChan
	fmt.Println("shutting down")
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: lci-indexer query <term>")
	}
	term := c.Args().First()
	max := c.Int("max")

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	var results []model.FqnSymbol
	if c.Bool("methods") {
		results, err = svc.SearchClassesFieldsMethods(term, max)
	} else {
		results, err = svc.SearchClasses(term, max)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, sym := range pathutil.ToRelativeSymbols(results, projectRoot(c)) {
		fmt.Printf("%s %s %s\n", sym.Fqn, sym.Descriptor, sym.SourceURI)
	}
	return nil
}

func findCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: lci-indexer find <fqn>")
	}
	fqn := c.Args().First()

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	sym, err := svc.FindUnique(fqn)
	if err != nil {
		return fmt.Errorf("find_unique failed: %w", err)
	}
	if sym == nil {
		fmt.Println("not found")
		return nil
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sym)
	}
	rel := pathutil.ToRelativeSymbols([]model.FqnSymbol{*sym}, projectRoot(c))[0]
	fmt.Printf("%s %s %s\n", rel.Fqn, rel.Descriptor, rel.SourceURI)
	return nil
}

func mcpCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.StartWatching(); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	logger := newLogger(c).WithComponent("mcp")
	logger.SetMCPMode(true)
	server := mcpserver.New(svc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)
	go func() { errChan <- server.Serve(ctx) }()

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		cancel()
		return <-errChan
	}
}
