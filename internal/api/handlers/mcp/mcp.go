// Package mcp implements the JSON-RPC 2.0 tool surface consumed by MCP
// hosts such as Claude Desktop. Each request arrives as a single JSON-RPC
// call over POST and every reply is framed as one server-sent event, the
// transport streamable-HTTP MCP clients expect.
package mcp

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/router-for-me/KiteMCP/internal/buildinfo"
	"github.com/router-for-me/KiteMCP/internal/constant"
	"github.com/router-for-me/KiteMCP/internal/orders"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

// JSON-RPC 2.0 error codes used by the dispatch below.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

// Handler serves the MCP endpoint. It routes tool calls to the session
// manager and the order engine and mirrors order outcomes onto the event
// stream when a hub is attached.
type Handler struct {
	sessions *session.Manager
	orders   *orders.Engine
	hub      *stream.Hub
}

// NewHandler wires an MCP handler. The hub may be nil when no event stream
// is running; broadcasts are skipped in that case.
func NewHandler(sessions *session.Manager, ordersEngine *orders.Engine, hub *stream.Hub) *Handler {
	return &Handler{
		sessions: sessions,
		orders:   ordersEngine,
		hub:      hub,
	}
}

// Handle processes one JSON-RPC request from the POST body and writes the
// reply as a single SSE data frame. Notifications are acknowledged with an
// empty 202 response since JSON-RPC notifications carry no reply.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !gjson.ValidBytes(body) {
		writeFrame(c, http.StatusOK, errorFrame("null", codeParseError, "Parse error"))
		return
	}

	req := gjson.ParseBytes(body)
	idRaw := "null"
	if id := req.Get("id"); id.Exists() {
		idRaw = id.Raw
	}
	method := req.Get("method").String()

	switch method {
	case "initialize":
		writeFrame(c, http.StatusOK, resultFrame(idRaw, initializeResult()))
	case "notifications/initialized":
		c.Header("Content-Type", "text/event-stream")
		c.Status(http.StatusAccepted)
	case "tools/list":
		writeFrame(c, http.StatusOK, resultFrame(idRaw, toolListResult()))
	case "tools/call":
		h.handleToolCall(c, idRaw, req)
	default:
		writeFrame(c, http.StatusOK, errorFrame(idRaw, codeMethodNotFound, fmt.Sprintf("Method '%s' not supported", method)))
	}
}

func (h *Handler) handleToolCall(c *gin.Context, idRaw string, req gjson.Result) {
	name := req.Get("params.name").String()
	tool, ok := toolByName(name)
	if !ok {
		writeFrame(c, http.StatusOK, errorFrame(idRaw, codeMethodNotFound, fmt.Sprintf("Tool '%s' not found", name)))
		return
	}

	text, err := tool.run(c.Request.Context(), h, req.Get("params.arguments"))
	if err != nil {
		log.Errorf("mcp: tool %s failed: %v", name, err)
		writeFrame(c, http.StatusOK, errorFrame(idRaw, codeInternalError, "Tool execution failed: "+err.Error()))
		return
	}

	writeFrame(c, http.StatusOK, resultFrame(idRaw, textResult(text)))
}

// initializeResult renders the handshake payload advertising tool support.
func initializeResult() string {
	result := `{"protocolVersion":"","capabilities":{"tools":{}},"serverInfo":{}}`
	result, _ = sjson.Set(result, "protocolVersion", constant.ProtocolVersion)
	result, _ = sjson.Set(result, "serverInfo.name", constant.ServerName)
	result, _ = sjson.Set(result, "serverInfo.version", buildinfo.Version)
	return result
}

// textResult wraps tool output in the MCP content envelope.
func textResult(text string) string {
	result, _ := sjson.Set(`{"content":[{"type":"text","text":""}]}`, "content.0.text", text)
	return result
}

// resultFrame assembles a JSON-RPC success frame. The id is spliced in raw
// so numeric and string ids round-trip exactly as the client sent them.
func resultFrame(idRaw, resultJSON string) string {
	frame, _ := sjson.SetRaw(`{"jsonrpc":"2.0"}`, "id", idRaw)
	frame, _ = sjson.SetRaw(frame, "result", resultJSON)
	return frame
}

// errorFrame assembles a JSON-RPC error frame.
func errorFrame(idRaw string, code int, message string) string {
	frame, _ := sjson.SetRaw(`{"jsonrpc":"2.0"}`, "id", idRaw)
	frame, _ = sjson.Set(frame, "error.code", code)
	frame, _ = sjson.Set(frame, "error.message", message)
	return frame
}

// writeFrame emits one SSE data frame carrying the JSON-RPC reply.
func writeFrame(c *gin.Context, status int, frame string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(status)
	_, _ = io.WriteString(c.Writer, "data: "+frame+"\n\n")
}
