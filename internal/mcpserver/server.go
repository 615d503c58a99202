// Package mcpserver exposes the archive queries and bridge delivery as MCP
// tools over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/delivery"
	"github.com/krishhrana/whatsapp-mcp/internal/format"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/timewindow"
)

// Name is the implementation name announced to clients.
const Name = "whatsapp"

// Server is the WhatsApp MCP server.
type Server struct {
	query    *query.Service
	delivery *delivery.Client
	format   *format.Formatter
	token    string // fallback bridge token when the request has no header
	version  string
	log      *zap.Logger
	server   *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithBridgeToken sets the token used for bridge calls that carry no
// Authorization header, which is always the case over stdio.
func WithBridgeToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// New creates the server and registers every tool.
func New(q *query.Service, d *delivery.Client, opts ...Option) *Server {
	s := &Server{
		query:    q,
		delivery: d,
		format:   format.New(q),
		version:  "dev",
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("mcp")

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    Name,
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *gomcp.Server { return s.server }

// RunStdio serves on stdin/stdout until the client disconnects or ctx is
// canceled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("serving", zap.String("transport", "stdio"))
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return gomcp.NewStreamableHTTPHandler(func(*http.Request) *gomcp.Server {
		return s.server
	}, nil)
}

// call returns a logger tagged with a fresh request id and a func that logs
// the outcome.
func (s *Server) call(tool string) (*zap.Logger, func(error)) {
	log := s.log.With(zap.String("tool", tool), zap.String("request_id", uuid.NewString()))
	start := time.Now()
	return log, func(err error) {
		if err != nil {
			log.Info("tool failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		log.Debug("tool done", zap.Duration("took", time.Since(start)))
	}
}

// authorization picks the bridge Authorization value for a call: the
// inbound HTTP header if present, else the configured token.
func (s *Server) authorization(req *gomcp.CallToolRequest) string {
	if req != nil && req.Extra != nil && req.Extra.Header != nil {
		if h := strings.TrimSpace(req.Extra.Header.Get("Authorization")); h != "" {
			return h
		}
	}
	if s.token == "" {
		return ""
	}
	if _, err := delivery.Bearer(s.token); err == nil {
		return s.token
	}
	return "Bearer " + s.token
}

func text(s string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: s}},
	}
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func window(after, before string, value *int, unit string) timewindow.Params {
	return timewindow.Params{After: after, Before: before, LookbackValue: value, LookbackUnit: unit}
}

func page(limit, p *int) query.Page {
	return query.Page{Limit: intOr(limit, query.DefaultLimit), Page: intOr(p, 0)}
}

func contextOptions(include *bool, before, after *int) query.ContextOptions {
	return query.ContextOptions{
		Include: boolOr(include, true),
		Before:  intOr(before, query.DefaultContextBefore),
		After:   intOr(after, query.DefaultContextAfter),
	}
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timewindow.Layout)
}
