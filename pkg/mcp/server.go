// Package mcp serves the support orchestrator as Model Context Protocol
// tools over stdio, one JSON-RPC 2.0 message per line.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/orchestrator"
)

const maxLineBytes = 1024 * 1024

// Orchestrator is the part of orchestrator.Service exposed as tools.
type Orchestrator interface {
	Query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
	CacheStats() models.CacheStats
	PopularQueries(n int) []models.PopularQuery
	Session(ctx context.Context, id string) (models.SessionRecord, error)
	FeedbackStats(ctx context.Context) (models.FeedbackStats, error)
	FeedbackSuggestions(ctx context.Context) ([]string, error)
}

var _ Orchestrator = (*orchestrator.Service)(nil)

// Server is a minimal MCP server.
type Server struct {
	orch    Orchestrator
	version string
	logger  *zap.Logger
}

// New creates a Server.
func New(o Orchestrator, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{orch: o, version: version, logger: logger}
}

// Run reads requests from r and writes responses to w until r is exhausted
// or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "supportdesk", Version: s.version},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: definitions()})
	case "tools/call":
		return s.callTool(ctx, req)
	}
	if len(req.ID) == 0 {
		return nil
	}
	return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := lookupTool(params.Name)
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", zap.Error(err))
	}
}
