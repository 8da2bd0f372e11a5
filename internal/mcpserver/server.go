// Package mcpserver exposes internal/index.Service's four operations
// and three listener hooks as MCP tools, adapted from the teacher's
// own internal/mcp.Server — its mcp.NewServer/AddTool registration
// shape and manual json.Unmarshal(req.Params.Arguments, ...) decoding
// convention are kept; the ~60-tool codebase-intelligence surface
// (get_context, codebase_intelligence, side-effect analysis, workflow
// scenarios, etc.) has no equivalent here since this subsystem's
// external interface is exactly spec.md §6's four operations plus
// three listener hooks — nothing else is registered.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/logging"
)

// Server adapts one index.Service onto the Model Context Protocol.
type Server struct {
	svc    *index.Service
	server *mcp.Server
	logger *logging.Logger
}

// New builds a Server wrapping svc and registers every tool. The
// caller still must call Serve to actually listen.
func New(svc *index.Service, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger.WithComponent("mcpserver"),
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "lci-indexer-mcp-server",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Serve blocks, talking MCP over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "refresh",
		Description: "Reconcile the classfile index against the current on-disk state: enumerate configured module directories and jars, remove stale entries, index anything new or changed. Returns (deleted, indexed) counts.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleRefresh)

	s.server.AddTool(&mcp.Tool{
		Name:        "search_classes",
		Description: "Search indexed classes by fully-qualified name, simple name, CamelCase abbreviation (e.g. RPC), or dotted-abbreviation-with-spaces (e.g. 'o e c Rich'). Does not match methods or fields.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Search term"},
				"max":   {Type: "integer", Description: "Maximum results to return"},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchClasses)

	s.server.AddTool(&mcp.Tool{
		Name:        "search_classes_fields_methods",
		Description: "Search indexed classes and methods; every whitespace-separated word in query must match (AND conjunction). Field records are never matched.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Space-separated search terms, all of which must match"},
				"max":   {Type: "integer", Description: "Maximum results to return"},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchClassesFieldsMethods)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_unique",
		Description: "Look up a single symbol by its exact fully-qualified name, bypassing ranking entirely.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"fqn": {Type: "string", Description: "Fully-qualified name, e.g. java.lang.String"},
			},
			Required: []string{"fqn"},
		},
	}, s.handleFindUnique)

	s.server.AddTool(&mcp.Tool{
		Name:        "on_classfile_added",
		Description: "Notify the index that a class file has newly appeared on disk; extracts, persists, and indexes it immediately.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string", Description: "Absolute path to the .class file"}},
			Required:   []string{"path"},
		},
	}, s.handleOnClassfileAdded)

	s.server.AddTool(&mcp.Tool{
		Name:        "on_classfile_removed",
		Description: "Notify the index that a class file has been deleted from disk; removes its documents and fingerprint immediately.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string", Description: "Absolute path to the .class file"}},
			Required:   []string{"path"},
		},
	}, s.handleOnClassfileRemoved)

	s.server.AddTool(&mcp.Tool{
		Name:        "on_classfile_changed",
		Description: "Notify the index that a class file's contents changed; removes then re-extracts and re-indexes it immediately.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string", Description: "Absolute path to the .class file"}},
			Required:   []string{"path"},
		},
	}, s.handleOnClassfileChanged)
}

type searchParams struct {
	Query string `json:"query"`
	Max   int    `json:"max"`
}

type pathParams struct {
	Path string `json:"path"`
}

type fqnParams struct {
	Fqn string `json:"fqn"`
}

func (s *Server) handleRefresh(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deleted, indexed, err := s.svc.Refresh(ctx)
	if err != nil {
		return errorResult("refresh", err), nil
	}
	return jsonResult(map[string]int{"deleted": deleted, "indexed": indexed})
}

func (s *Server) handleSearchClasses(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p searchParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("search_classes", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	results, err := s.svc.SearchClasses(p.Query, defaultMax(p.Max))
	if err != nil {
		return errorResult("search_classes", err), nil
	}
	return jsonResult(results)
}

func (s *Server) handleSearchClassesFieldsMethods(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p searchParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("search_classes_fields_methods", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	results, err := s.svc.SearchClassesFieldsMethods(p.Query, defaultMax(p.Max))
	if err != nil {
		return errorResult("search_classes_fields_methods", err), nil
	}
	return jsonResult(results)
}

func (s *Server) handleFindUnique(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fqnParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("find_unique", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	sym, err := s.svc.FindUnique(p.Fqn)
	if err != nil {
		return errorResult("find_unique", err), nil
	}
	return jsonResult(sym)
}

func (s *Server) handleOnClassfileAdded(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pathParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("on_classfile_added", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	if err := s.svc.OnClassfileAdded(p.Path); err != nil {
		return errorResult("on_classfile_added", err), nil
	}
	return jsonResult(map[string]bool{"ok": true})
}

func (s *Server) handleOnClassfileRemoved(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pathParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("on_classfile_removed", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	if err := s.svc.OnClassfileRemoved(p.Path); err != nil {
		return errorResult("on_classfile_removed", err), nil
	}
	return jsonResult(map[string]bool{"ok": true})
}

func (s *Server) handleOnClassfileChanged(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pathParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return errorResult("on_classfile_changed", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	if err := s.svc.OnClassfileChanged(p.Path); err != nil {
		return errorResult("on_classfile_changed", err), nil
	}
	return jsonResult(map[string]bool{"ok": true})
}

// defaultMax mirrors the teacher's own "max defaults to a sane cap"
// convention for search tools with an optional bound.
func defaultMax(max int) int {
	if max <= 0 {
		return 50
	}
	return max
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

func errorResult(operation string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", operation, err)}},
	}
}
