// Package mcp serves dependency extraction and search over a line-delimited
// JSON-RPC stdio protocol for MCP clients.
package mcp

import (
	"bufio"
	"context"
	"depscan/internal/extract"
	"depscan/internal/indexer"
	"depscan/internal/models"
	"depscan/internal/report"
	"depscan/internal/sbom"
	"depscan/internal/scan"
	"depscan/internal/utils"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "depscan-mcp"
	inlineFileName  = "input.rs"
	maxLineBytes    = 16 << 20
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

var errSearchDisabled = errors.New("search is not configured: set an embeddings API key and a reachable Qdrant")

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	// Root scopes relative tool paths and searches.
	Root    string
	Scanner *scan.Scanner
	Runner  *extract.Runner
	// Searcher may be nil, which disables search_dependencies.
	Searcher *indexer.Searcher
	Logger   *zap.Logger
	Version  string
}

type Server struct {
	root     string
	scanner  *scan.Scanner
	runner   *extract.Runner
	searcher *indexer.Searcher
	logger   *zap.Logger
	version  string
}

func NewServer(opts Options) (*Server, error) {
	root, err := utils.NormalizeProjectRoot(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	s := &Server{
		root:     root,
		scanner:  opts.Scanner,
		runner:   opts.Runner,
		searcher: opts.Searcher,
		logger:   opts.Logger,
		version:  opts.Version,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.scanner == nil {
		s.scanner = scan.New(scan.Options{Logger: s.logger})
	}
	if s.runner == nil {
		r, err := extract.NewRunner(extract.Options{Workers: 4, CacheSize: 256, Logger: s.logger})
		if err != nil {
			return nil, err
		}
		s.runner = r
	}
	if s.version == "" {
		s.version = "dev"
	}
	return s, nil
}

// Run serves requests from in until EOF or ctx is done.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(out)

	s.logger.Info("mcp server started", zap.String("root", s.root))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(writer, nil, codeParseError, "Parse error")
			continue
		}

		s.handleRequest(ctx, writer, &req)
	}
	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	s.logger.Debug("request", zap.String("method", req.Method), zap.Any("id", req.ID))

	switch req.Method {
	case "initialize":
		s.handleInitialize(writer, req)
	case "ping":
		s.writeResponse(writer, req.ID, map[string]interface{}{})
	case "tools/list":
		s.handleToolsList(writer, req)
	case "tools/call":
		s.handleToolsCall(ctx, writer, req)
	default:
		// Notifications carry no id and never get a reply.
		if req.ID == nil {
			return
		}
		s.writeError(writer, req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *Server) handleInitialize(writer *bufio.Writer, req *JSONRPCRequest) {
	result := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]string{
			"name":    serverName,
			"version": s.version,
		},
		"capabilities": map[string]interface{}{
			"tools": map[string]bool{},
		},
	}
	s.writeResponse(writer, req.ID, result)
}

func (s *Server) handleToolsList(writer *bufio.Writer, req *JSONRPCRequest) {
	stringList := map[string]interface{}{
		"type":  "array",
		"items": map[string]string{"type": "string"},
	}
	tools := []map[string]interface{}{
		{
			"name":        "extract_dependencies",
			"description": "Extract use, extern crate and mod declarations from a Rust file, a directory, or inline source",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   map[string]string{"type": "string"},
					"source": map[string]string{"type": "string"},
				},
			},
		},
		{
			"name":        "list_components",
			"description": "List the distinct crates and modules a Rust project depends on",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    map[string]string{"type": "string"},
					"origins": stringList,
				},
			},
		},
		{
			"name":        "search_dependencies",
			"description": "Search indexed dependency records using a natural language query",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":     map[string]string{"type": "string"},
					"top_k":     map[string]string{"type": "integer"},
					"origins":   stringList,
					"kinds":     stringList,
					"file_path": map[string]string{"type": "string"},
				},
				"required": []string{"query"},
			},
		},
	}
	s.writeResponse(writer, req.ID, map[string]interface{}{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(writer, req.ID, codeInvalidParams, "Invalid params")
		return
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	var result interface{}
	var err error

	switch params.Name {
	case "extract_dependencies":
		result, err = s.HandleExtractDependencies(ctx, params.Arguments)
	case "list_components":
		result, err = s.HandleListComponents(ctx, params.Arguments)
	case "search_dependencies":
		result, err = s.HandleSearchDependencies(ctx, params.Arguments)
	default:
		s.writeError(writer, req.ID, codeInvalidParams, "Unknown tool")
		return
	}

	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		s.writeError(writer, req.ID, codeInternalError, err.Error())
		return
	}

	s.writeResponse(writer, req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": formatResult(result),
			},
		},
	})
}

// HandleExtractDependencies extracts inline source when given, otherwise the
// file or directory at path (relative to the server root).
func (s *Server) HandleExtractDependencies(ctx context.Context, args json.RawMessage) (*report.Report, error) {
	var input struct {
		Path   string  `json:"path"`
		Source *string `json:"source"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}

	if input.Source != nil {
		name := inlineFileName
		if input.Path != "" {
			name = input.Path
		}
		code := []byte(*input.Source)
		hash := utils.HashContent(*input.Source)
		res := extract.FileResult{Path: name, Hash: hash}
		res.Result, res.Err = s.runner.ExtractSource(name, hash, code)
		return report.New([]extract.FileResult{res}), nil
	}

	results, err := s.extractPath(ctx, input.Path)
	if err != nil {
		return nil, err
	}
	return report.New(results), nil
}

// HandleListComponents aggregates the project's records into components.
func (s *Server) HandleListComponents(ctx context.Context, args json.RawMessage) ([]models.Component, error) {
	var input struct {
		Path    string   `json:"path"`
		Origins []string `json:"origins"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}

	results, err := s.extractPath(ctx, input.Path)
	if err != nil {
		return nil, err
	}

	files := make([]*models.FileDependencies, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			files = append(files, res.Result)
		}
	}

	origins := make([]models.Origin, 0, len(input.Origins))
	for _, o := range input.Origins {
		origins = append(origins, models.Origin(o))
	}
	components := sbom.Filter(sbom.Aggregate(files), origins...)
	if components == nil {
		components = []models.Component{}
	}
	return components, nil
}

// HandleSearchDependencies runs a semantic search over the project index.
func (s *Server) HandleSearchDependencies(ctx context.Context, args json.RawMessage) ([]models.SearchHit, error) {
	var input struct {
		Query    string   `json:"query"`
		TopK     int      `json:"top_k"`
		Origins  []string `json:"origins"`
		Kinds    []string `json:"kinds"`
		FilePath string   `json:"file_path"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}
	if s.searcher == nil {
		return nil, errSearchDisabled
	}

	filePath := input.FilePath
	if filePath != "" {
		filePath = s.resolve(filePath)
	}
	return s.searcher.Search(ctx, s.root, input.Query, input.TopK, models.SearchFilter{
		Origins:  input.Origins,
		Kinds:    input.Kinds,
		FilePath: filePath,
	})
}

func (s *Server) extractPath(ctx context.Context, path string) ([]extract.FileResult, error) {
	target := s.resolve(path)
	files, err := s.scanner.Files(target)
	if err != nil {
		return nil, err
	}
	results, err := s.runner.Run(ctx, files)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Path = s.relative(results[i].Path)
		if results[i].Result != nil {
			results[i].Result.Path = results[i].Path
		}
	}
	return results, nil
}

func (s *Server) resolve(path string) string {
	if path == "" {
		return s.root
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

// relative returns path relative to the server root when it lies inside it.
func (s *Server) relative(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *Server) writeResponse(writer *bufio.Writer, id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.write(writer, resp)
}

func (s *Server) writeError(writer *bufio.Writer, id interface{}, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
	s.write(writer, resp)
}

func (s *Server) write(writer *bufio.Writer, resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	writer.Write(data)
	writer.WriteByte('\n')
	if err := writer.Flush(); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

func formatResult(result interface{}) string {
	data, _ := json.MarshalIndent(result, "", "  ")
	return string(data)
}
