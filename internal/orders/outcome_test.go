package orders

import (
	"strings"
	"testing"
)

func TestNormalizeAppliesDefaults(t *testing.T) {
	req := Request{Symbol: " reliance ", Side: "buy", Quantity: 1}
	req.Normalize()

	if req.Symbol != "RELIANCE" {
		t.Errorf("Symbol = %q, want %q", req.Symbol, "RELIANCE")
	}
	if req.Side != "BUY" {
		t.Errorf("Side = %q, want %q", req.Side, "BUY")
	}
	if req.Exchange != "NSE" || req.Product != "CNC" || req.OrderType != "MARKET" {
		t.Errorf("defaults = %s/%s/%s, want NSE/CNC/MARKET", req.Exchange, req.Product, req.OrderType)
	}
	if req.Variety != "regular" || req.Validity != "DAY" {
		t.Errorf("variety/validity = %s/%s, want regular/DAY", req.Variety, req.Validity)
	}

	explicit := Request{Symbol: "INFY", Side: "SELL", Quantity: 2, Exchange: "bse", Product: "mis", OrderType: "limit", Price: 10}
	explicit.Normalize()
	if explicit.Exchange != "BSE" || explicit.Product != "MIS" || explicit.OrderType != "LIMIT" {
		t.Errorf("explicit fields = %s/%s/%s, want BSE/MIS/LIMIT", explicit.Exchange, explicit.Product, explicit.OrderType)
	}
}

func TestValidate(t *testing.T) {
	base := func() Request {
		r := Request{Symbol: "RELIANCE", Quantity: 1, Side: "BUY"}
		r.Normalize()
		return r
	}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid market order", func(r *Request) {}, ""},
		{"missing symbol", func(r *Request) { r.Symbol = "" }, "symbol"},
		{"zero quantity", func(r *Request) { r.Quantity = 0 }, "quantity"},
		{"negative quantity", func(r *Request) { r.Quantity = -5 }, "quantity"},
		{"unknown side", func(r *Request) { r.Side = "HOLD" }, "side"},
		{"unknown exchange", func(r *Request) { r.Exchange = "NYSE" }, "exchange"},
		{"limit without price", func(r *Request) { r.OrderType = "LIMIT" }, "price"},
		{"sl without price", func(r *Request) { r.OrderType = "SL"; r.TriggerPrice = 10 }, "price"},
		{"sl without trigger", func(r *Request) { r.OrderType = "SL"; r.Price = 10 }, "trigger"},
		{"sl-m without trigger", func(r *Request) { r.OrderType = "SL-M" }, "trigger"},
		{"valid limit order", func(r *Request) { r.OrderType = "LIMIT"; r.Price = 100.5 }, ""},
		{"valid sl-m order", func(r *Request) { r.OrderType = "SL-M"; r.TriggerPrice = 99 }, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := base()
			tt.mutate(&req)
			err := Validate(req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestOutcomeMessage(t *testing.T) {
	req := Request{Symbol: "RELIANCE", Quantity: 3, Side: "BUY"}
	req.Normalize()

	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			"success",
			Outcome{Kind: KindSuccess, OrderID: "OID1", Status: "COMPLETE"},
			"BUY order placed for 3 x RELIANCE. Order ID: OID1, status: COMPLETE.",
		},
		{
			"placed but rejected",
			Outcome{Kind: KindPlacedButRejected, OrderID: "OID2", Status: "REJECTED", Reason: "insufficient funds"},
			"BUY order for 3 x RELIANCE was placed but REJECTED by the exchange. Order ID: OID2. Reason: insufficient funds",
		},
		{
			"validation error",
			Outcome{Kind: KindValidationError, ErrorMessage: "quantity must be a positive integer, got 0"},
			"Invalid order: quantity must be a positive integer, got 0",
		},
		{
			"auth error",
			Outcome{Kind: KindAuthError, ErrorMessage: "Please log in to Kite to continue."},
			"Authentication failed: Please log in to Kite to continue.",
		},
		{
			"rejected with code and reason",
			Outcome{Kind: KindRejected, ErrorCode: "InputException", ErrorMessage: "Invalid order params", Reason: "margin shortfall"},
			"Order rejected by broker: Invalid order params (InputException). Reason: margin shortfall",
		},
		{
			"generic error",
			Outcome{Kind: KindError, ErrorMessage: "connection reset"},
			"Order failed: connection reset",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.outcome.Message(req); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
