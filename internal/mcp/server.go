// Package mcp exposes script sessions to MCP clients.
//
// Every tool takes the id of an open session and operates on its
// [script.Manager]. Tool calls are traced and recorded in the tool metrics.
// [Server.Handler] serves the tools over the streamable HTTP transport.
package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/internal/phonetic"
	"github.com/MrWong99/podscript/internal/session"
)

// Server is the podscript MCP server.
type Server struct {
	sessions *session.Manager
	matcher  *phonetic.Matcher
	metrics  *observe.Metrics
	log      *slog.Logger
	version  string

	srv *mcpsdk.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics that record tool calls. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMatcher replaces the matcher used to resolve role names in tool
// arguments.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(s *Server) { s.matcher = m }
}

// New creates a Server over the sessions of sm with every tool registered.
func New(sm *session.Manager, opts ...Option) *Server {
	s := &Server{sessions: sm, version: "dev"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.matcher == nil {
		s.matcher = phonetic.New()
	}
	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "podscript", Version: s.version}, nil)
	s.registerTools()
	return s
}

// MCP returns the underlying SDK server, e.g. to connect it to another
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.srv }

// Handler serves the tools over the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.srv }, nil)
}

// addTool registers fn as a typed tool wrapped with a span and the tool
// call metrics. A returned error becomes a tool error result.
func addTool[In, Out any](s *Server, t *mcpsdk.Tool, fn func(context.Context, In) (Out, error)) {
	mcpsdk.AddTool(s.srv, t, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx, span := observe.StartSpan(ctx, "mcp.tool "+t.Name,
			trace.WithAttributes(attribute.String("mcp.tool", t.Name)))
		start := time.Now()

		out, err := fn(ctx, in)

		status := "ok"
		if err != nil {
			status = "error"
			observe.Logger(ctx).Debug("tool call failed", "tool", t.Name, "err", err)
		}
		s.metrics.RecordToolCall(ctx, t.Name, status, time.Since(start).Seconds())
		observe.EndSpan(span, err)
		return nil, out, err
	})
}
