// Package mcp implements the Model Context Protocol server for TimeForged.
//
// It exposes the daemon's status, reports and event intake as MCP tools over
// stdio so any agent (Claude Code, OpenCode, Cursor, etc.) can read coding
// time and send heartbeats. Every tool is registered twice: under its
// tf_-prefixed name and under a short alias.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/timeforged/timeforged-mcp/internal/client"
	"github.com/timeforged/timeforged-mcp/internal/lang"
	"github.com/timeforged/timeforged-mcp/internal/observe"
)

const (
	ServerName    = "timeforged"
	ServerVersion = "0.1.0"
)

// Backend paths.
const (
	pathStatus   = "/api/v1/status"
	pathSummary  = "/api/v1/reports/summary"
	pathSessions = "/api/v1/reports/sessions"
	pathEvents   = "/api/v1/events"
)

// isoLayout matches JavaScript's Date.toISOString, which the daemon expects.
const isoLayout = "2006-01-02T15:04:05.000Z"

var now = time.Now

// Backend is what the tool handlers need from the transport.
// *client.Client satisfies it.
type Backend interface {
	Get(ctx context.Context, path string) (*client.Response, error)
	PostJSON(ctx context.Context, path string, payload any) (*client.Response, error)
}

// Tool is one operation registered under both Name and Alias with the same
// schema and handler.
type Tool struct {
	Name        string
	Alias       string
	Description string

	// AliasDescription is advertised under Alias. Empty means Description
	// with an " (alias)" suffix.
	AliasDescription string

	Options []mcp.ToolOption
	Handler server.ToolHandlerFunc
}

// Definition builds the MCP tool definition advertised under name.
func (t Tool) Definition(name string) mcp.Tool {
	desc := t.Description
	if name == t.Alias {
		desc = t.AliasDescription
		if desc == "" {
			desc = t.Description + " (alias)"
		}
	}
	opts := append([]mcp.ToolOption{mcp.WithDescription(desc)}, t.Options...)
	return mcp.NewTool(name, opts...)
}

// Call invokes the handler directly with args, bypassing the transport.
func (t Tool) Call(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: t.Name, Arguments: args}}
	return t.Handler(ctx, req)
}

// Tools returns the five operations in registration order.
func Tools(b Backend) []Tool {
	return []Tool{
		{
			Name:        "tf_status",
			Alias:       "status",
			Description: "Check TimeForged daemon status",
			Options:     []mcp.ToolOption{mcp.WithReadOnlyHintAnnotation(true)},
			Handler:     handleStatus(b),
		},
		{
			Name:        "tf_today",
			Alias:       "today",
			Description: "Get today's coding time summary",
			Options:     []mcp.ToolOption{mcp.WithReadOnlyHintAnnotation(true)},
			Handler:     handleToday(b),
		},
		{
			Name:             "tf_report",
			Alias:            "report",
			Description:      "Get coding time summary for a date range",
			AliasDescription: "Get coding time summary (alias)",
			Options: []mcp.ToolOption{
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("from",
					mcp.Description("Start datetime (ISO 8601). Defaults to 7 days ago."),
				),
				mcp.WithString("to",
					mcp.Description("End datetime (ISO 8601). Defaults to now."),
				),
				mcp.WithString("project",
					mcp.Description("Filter by project name"),
				),
				mcp.WithString("language",
					mcp.Description("Filter by language"),
				),
			},
			Handler: handleReport(b),
		},
		{
			Name:        "tf_sessions",
			Alias:       "sessions",
			Description: "List coding sessions",
			Options: []mcp.ToolOption{
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("from",
					mcp.Description("Start datetime (ISO 8601)"),
				),
				mcp.WithString("to",
					mcp.Description("End datetime (ISO 8601)"),
				),
				mcp.WithString("project",
					mcp.Description("Filter by project name"),
				),
			},
			Handler: handleSessions(b),
		},
		{
			Name:             "tf_send",
			Alias:            "send",
			Description:      "Send an event/heartbeat to TimeForged",
			AliasDescription: "Send an event/heartbeat (alias)",
			Options: []mcp.ToolOption{
				mcp.WithString("entity",
					mcp.Required(),
					mcp.Description("File path or entity name"),
				),
				mcp.WithString("event_type",
					mcp.Description("Event type"),
					mcp.Enum(eventTypes...),
					mcp.DefaultString("file"),
				),
				mcp.WithString("project",
					mcp.Description("Project name"),
				),
				mcp.WithString("language",
					mcp.Description("Language"),
				),
				mcp.WithString("activity",
					mcp.Description("Activity type"),
					mcp.Enum(activities...),
					mcp.DefaultString("coding"),
				),
			},
			Handler: handleSend(b),
		},
	}
}

// Find returns the tool registered as name, matching canonical names and
// aliases.
func Find(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name || t.Alias == name {
			return t, true
		}
	}
	return Tool{}, false
}

// NewServer builds the MCP server with all ten registrations. m may be nil.
func NewServer(b Backend, m *observe.Metrics) *server.MCPServer {
	srv := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
	)

	for _, t := range Tools(b) {
		register(srv, t, m)
	}
	return srv
}

func register(srv *server.MCPServer, t Tool, m *observe.Metrics) {
	srv.AddTool(t.Definition(t.Name), instrument(t.Name, t.Handler, m))
	srv.AddTool(t.Definition(t.Alias), instrument(t.Alias, t.Handler, m))
}

// instrument wraps a handler with a span, metrics and logging, and turns a
// panic into an error result so nothing escapes to the transport.
func instrument(name string, h server.ToolHandlerFunc, m *observe.Metrics) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		start := time.Now()
		ctx, span := observe.StartSpan(ctx, "tool "+name)

		defer func() {
			if r := recover(); r != nil {
				res, err = errorResult(fmt.Errorf("internal error: %v", r)), nil
			}
			span.End()

			status := "ok"
			if err != nil || res == nil || res.IsError {
				status = "error"
			}
			elapsed := time.Since(start)
			if m != nil {
				m.RecordToolCall(ctx, name, status, elapsed.Seconds())
			}
			logger := observe.Logger(ctx)
			if status == "error" {
				logger.Warn("tool call failed", "tool", name, "duration", elapsed, "result", resultText(res))
			} else {
				logger.Debug("tool call", "tool", name, "duration", elapsed)
			}
		}()

		return h(ctx, req)
	}
}

// ─── Tool Handlers ───────────────────────────────────────────────────────────

func handleStatus(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var data statusResponse
		if err := getJSON(ctx, b, pathStatus, &data); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(renderStatus(data)), nil
	}
}

func handleToday(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t := now()
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

		var q query
		q.set("from", isoTime(midnight))
		q.set("to", isoTime(t))

		var data summaryResponse
		if err := getJSON(ctx, b, q.path(pathSummary), &data); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(renderToday(data)), nil
	}
}

func handleReport(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var q query
		q.set("from", stringArg(req, "from"))
		q.set("to", stringArg(req, "to"))
		q.set("project", stringArg(req, "project"))
		q.set("language", stringArg(req, "language"))

		var data summaryResponse
		if err := getJSON(ctx, b, q.path(pathSummary), &data); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(renderReport(data)), nil
	}
}

func handleSessions(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var q query
		q.set("from", stringArg(req, "from"))
		q.set("to", stringArg(req, "to"))
		q.set("project", stringArg(req, "project"))

		var data []session
		if err := getJSON(ctx, b, q.path(pathSessions), &data); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(renderSessions(data)), nil
	}
}

func handleSend(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entity := stringArg(req, "entity")
		if entity == "" {
			return errorResult(errors.New("entity is required")), nil
		}
		eventType, err := enumArg(req, "event_type", eventTypes, "file")
		if err != nil {
			return errorResult(err), nil
		}
		activity, err := enumArg(req, "activity", activities, "coding")
		if err != nil {
			return errorResult(err), nil
		}

		language := stringArg(req, "language")
		if language == "" {
			language, _ = lang.Infer(entity)
		}

		payload := eventPayload{
			Timestamp: isoTime(now()),
			EventType: eventType,
			Entity:    entity,
			Activity:  activity,
			Project:   stringArg(req, "project"),
			Language:  language,
			Metadata:  map[string]string{"source": "mcp"},
		}

		resp, err := b.PostJSON(ctx, pathEvents, payload)
		if err != nil {
			return errorResult(err), nil
		}
		var ack eventAck
		if err := resp.Decode(&ack); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(renderEventAck(ack)), nil
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func getJSON(ctx context.Context, b Backend, path string, v any) error {
	resp, err := b.Get(ctx, path)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + err.Error())
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if text, ok := mcp.AsTextContent(res.Content[0]); ok {
		return text.Text
	}
	return ""
}

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func enumArg(req mcp.CallToolRequest, key string, allowed []string, defaultVal string) (string, error) {
	v := stringArg(req, key)
	if v == "" {
		return defaultVal, nil
	}
	if !slices.Contains(allowed, v) {
		return "", fmt.Errorf("invalid %s %q (allowed: %s)", key, v, strings.Join(allowed, ", "))
	}
	return v, nil
}

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// query keeps parameters in insertion order and skips empty values, so an
// omitted filter is never sent.
type query []string

func (q *query) set(key, value string) {
	if value == "" {
		return
	}
	*q = append(*q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q query) path(base string) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + strings.Join(q, "&")
}
