// Package constant defines identifier constants used throughout the Kite MCP
// server, keeping wire-visible names consistent across the application.
package constant

const (
	// ServerName identifies this server to MCP clients during initialize.
	ServerName = "kite-mcp"

	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2025-06-18"

	// KiteAPIVersion is the value sent in the X-Kite-Version header on every
	// brokerage request.
	KiteAPIVersion = "3"

	// SideBuy and SideSell are the two accepted transaction types.
	SideBuy  = "BUY"
	SideSell = "SELL"

	// OrderStatusRejected and OrderStatusCancelled are the broker-side order
	// states that classify a placed order as rejected after the fact.
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"

	// OrderStatusPending is reported when the post-placement status lookup
	// could not resolve a settled state.
	OrderStatusPending = "PENDING"
)
