package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/router-for-me/KiteMCP/internal/constant"
	"github.com/router-for-me/KiteMCP/internal/orders"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

// tool describes one callable tool: its wire descriptor plus the function
// dispatched for tools/call.
type tool struct {
	name        string
	description string
	inputSchema string
	run         func(ctx context.Context, h *Handler, args gjson.Result) (string, error)
}

const (
	emptyObjectSchema = `{"type":"object","properties":{},"required":[]}`
	tradeSchema       = `{"type":"object","properties":{"stock":{"type":"string","description":"Trading symbol, for example RELIANCE or TCS"},"qty":{"type":"integer","description":"Number of shares"}},"required":["stock","qty"]}`
)

// toolTable is the fixed tool catalogue. Order is preserved in tools/list.
var toolTable = []tool{
	{
		name:        "get_kite_login_url",
		description: "Get the Kite Connect login URL to authenticate with Zerodha. Call this first when no valid session exists.",
		inputSchema: emptyObjectSchema,
		run:         runGetLoginURL,
	},
	{
		name:        "check_authentication_status",
		description: "Check whether the server holds a valid Kite Connect session and report token details.",
		inputSchema: emptyObjectSchema,
		run:         runAuthStatus,
	},
	{
		name:        "buy_stock",
		description: "Place a market buy order for an NSE stock using CNC (delivery) product type.",
		inputSchema: tradeSchema,
		run:         runBuyStock,
	},
	{
		name:        "sell_stock",
		description: "Place a market sell order for an NSE stock using CNC (delivery) product type.",
		inputSchema: tradeSchema,
		run:         runSellStock,
	},
	{
		name:        "show_portfolio",
		description: "Show current portfolio positions with quantities and last traded prices.",
		inputSchema: emptyObjectSchema,
		run:         runShowPortfolio,
	},
	{
		name:        "server_health_check",
		description: "Report server health and the current authentication state.",
		inputSchema: emptyObjectSchema,
		run:         runHealthCheck,
	},
}

func toolByName(name string) (tool, bool) {
	for _, t := range toolTable {
		if t.name == name {
			return t, true
		}
	}
	return tool{}, false
}

// toolListResult renders the tools/list payload from the catalogue.
func toolListResult() string {
	result := `{"tools":[]}`
	for _, t := range toolTable {
		entry, _ := sjson.Set(`{}`, "name", t.name)
		entry, _ = sjson.Set(entry, "description", t.description)
		entry, _ = sjson.SetRaw(entry, "inputSchema", t.inputSchema)
		result, _ = sjson.SetRaw(result, "tools.-1", entry)
	}
	return result
}

// runGetLoginURL hands back the authorization URL for the configured
// redirect. The interactive flow that binds a local callback listener is
// driven by the CLI and the management login endpoint, not by this tool.
func runGetLoginURL(_ context.Context, h *Handler, _ gjson.Result) (string, error) {
	return "Kite Connect authentication required.\n\n" +
		"Open this URL in a browser and log in with your Zerodha credentials:\n\n" +
		h.sessions.LoginURL() + "\n\n" +
		"After login completes the access token is stored by the server and trading tools become available.", nil
}

func runAuthStatus(ctx context.Context, h *Handler, _ gjson.Result) (string, error) {
	st := h.sessions.TokenStatus()

	switch st.Status {
	case session.StatusNoTokens:
		return "Authentication status: NOT AUTHENTICATED\n\n" +
			"No access token is stored. Use get_kite_login_url to authenticate.", nil
	case session.StatusExpired:
		return "Authentication status: TOKEN EXISTS BUT INVALID\n\n" +
			st.Message + "\n" +
			"Re-authenticate with get_kite_login_url.", nil
	}

	// A locally valid token can still have been revoked upstream, so probe
	// the profile endpoint before reporting the session as usable.
	client, err := h.sessions.AuthenticatedClient(ctx, false)
	if err != nil {
		return invalidTokenStatus(err), nil
	}
	profile, err := client.Profile(ctx)
	if err != nil {
		return invalidTokenStatus(err), nil
	}

	var b strings.Builder
	b.WriteString("Authentication status: ACTIVE\n\n")
	fmt.Fprintf(&b, "Logged in as: %s\n", profile.UserName)
	if st.GeneratedAt != nil {
		fmt.Fprintf(&b, "Token generated: %s\n", st.GeneratedAt.Format("2006-01-02 15:04:05"))
	}
	if st.ExpiresAt != nil {
		fmt.Fprintf(&b, "Token expires: %s\n", st.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\nAll trading operations are available.")
	return b.String(), nil
}

func invalidTokenStatus(err error) string {
	return "Authentication status: TOKEN EXISTS BUT INVALID\n\n" +
		fmt.Sprintf("The stored token was not accepted by Kite: %v\n", err) +
		"Re-authenticate with get_kite_login_url."
}

func runBuyStock(ctx context.Context, h *Handler, args gjson.Result) (string, error) {
	return h.placeOrder(ctx, args, constant.SideBuy)
}

func runSellStock(ctx context.Context, h *Handler, args gjson.Result) (string, error) {
	return h.placeOrder(ctx, args, constant.SideSell)
}

// placeOrder maps tool arguments onto an order request and renders the
// outcome. Validation, re-authentication and retry all happen inside the
// engine; this layer only routes and reports.
func (h *Handler) placeOrder(ctx context.Context, args gjson.Result, side string) (string, error) {
	req := orders.Request{
		Symbol:   args.Get("stock").String(),
		Quantity: int(args.Get("qty").Int()),
		Side:     side,
	}
	req.Normalize()

	outcome := h.orders.Place(ctx, req)
	h.broadcastOrder(req, outcome)
	return outcome.Message(req), nil
}

func runShowPortfolio(ctx context.Context, h *Handler, _ gjson.Result) (string, error) {
	text, err := h.orders.Positions(ctx)
	if err != nil {
		return fmt.Sprintf("Error fetching portfolio: %v", err), nil
	}
	return text, nil
}

func runHealthCheck(_ context.Context, h *Handler, _ gjson.Result) (string, error) {
	st := h.sessions.TokenStatus()
	return fmt.Sprintf("Server status: HEALTHY\n\nAuthentication: %s\nDetails: %s\nChecked at: %s",
		strings.ToUpper(st.Status), st.Message, time.Now().Format("2006-01-02 15:04:05")), nil
}

func (h *Handler) broadcastOrder(req orders.Request, outcome orders.Outcome) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(stream.NewEvent(stream.EventTypeOrder, map[string]any{
		"kind":     string(outcome.Kind),
		"symbol":   req.Symbol,
		"side":     req.Side,
		"quantity": req.Quantity,
		"order_id": outcome.OrderID,
		"status":   outcome.Status,
		"detail":   outcome.Message(req),
	}))
}
