package kite

// Session is the payload returned by a successful request-token exchange.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
}

// Profile describes the authenticated account, fetched as a liveness probe.
type Profile struct {
	UserName string `json:"user_name"`
	Email    string `json:"email"`
	Broker   string `json:"broker"`
}

// OrderParams carries the form fields of an order placement request.
// Price and TriggerPrice are included only when positive; Kite rejects
// zero-priced LIMIT orders outright.
type OrderParams struct {
	Exchange        string
	Tradingsymbol   string
	TransactionType string
	Quantity        int
	Product         string
	OrderType       string
	Validity        string
	Price           float64
	TriggerPrice    float64
}

// Order is one entry from the order book, reduced to the fields the
// post-placement confirmation needs.
type Order struct {
	OrderID         string `json:"order_id"`
	Status          string `json:"status"`
	StatusMessage   string `json:"status_message"`
	RejectionReason string `json:"rejection_reason"`
	Tradingsymbol   string `json:"tradingsymbol"`
}

// Position is one net position leg.
type Position struct {
	Tradingsymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	LastPrice     float64 `json:"last_price"`
}
