// Package orders implements order validation, placement, post-placement
// confirmation and outcome classification against the brokerage API. Every
// placement attempt ends in a typed outcome; nothing escapes as a panic or an
// unclassified error.
package orders

import (
	"fmt"
	"strings"

	"github.com/router-for-me/KiteMCP/internal/constant"
)

// OutcomeKind tags the terminal classification of a placement attempt.
type OutcomeKind string

const (
	// KindSuccess means the broker accepted the order and the confirmation
	// lookup did not see it rejected.
	KindSuccess OutcomeKind = "SUCCESS"
	// KindPlacedButRejected means the broker accepted the submission but the
	// exchange rejected or cancelled the resulting order. Money or positions
	// may have been briefly affected, so it is reported distinctly.
	KindPlacedButRejected OutcomeKind = "PLACED_BUT_REJECTED"
	// KindRejected means the broker rejected the submission with a structured
	// error payload before any order was created.
	KindRejected OutcomeKind = "REJECTED"
	// KindError means the submission failed without a parseable error payload.
	KindError OutcomeKind = "ERROR"
	// KindValidationError means the request never left the process.
	KindValidationError OutcomeKind = "VALIDATION_ERROR"
	// KindAuthError means re-authentication failed, or the single retry after
	// a re-authentication failed again.
	KindAuthError OutcomeKind = "AUTH_ERROR"
)

// Request describes one order to place. Zero values for Exchange, Product,
// OrderType, Variety and Validity are filled with defaults by Normalize.
type Request struct {
	Symbol       string
	Quantity     int
	Side         string
	Exchange     string
	Product      string
	OrderType    string
	Variety      string
	Validity     string
	Price        float64
	TriggerPrice float64
}

// Normalize trims and upcases the identifying fields and fills defaults for
// the optional ones. It is idempotent.
func (r *Request) Normalize() {
	r.Symbol = upper(r.Symbol)
	r.Side = upper(r.Side)
	r.Exchange = upper(r.Exchange)
	r.Product = upper(r.Product)
	r.OrderType = upper(r.OrderType)
	r.Validity = upper(r.Validity)

	if r.Exchange == "" {
		r.Exchange = "NSE"
	}
	if r.Product == "" {
		r.Product = "CNC"
	}
	if r.OrderType == "" {
		r.OrderType = "MARKET"
	}
	if r.Variety == "" {
		r.Variety = "regular"
	}
	if r.Validity == "" {
		r.Validity = "DAY"
	}
}

// Outcome is the terminal result of a placement attempt.
type Outcome struct {
	// Kind classifies the outcome.
	Kind OutcomeKind
	// OrderID is set when the broker created an order.
	OrderID string
	// Status is the broker status observed during confirmation.
	Status string
	// Reason carries a rejection reason when one was reported.
	Reason string
	// ErrorCode is the structured remote error type, when parseable.
	ErrorCode string
	// ErrorMessage is the remote or local error text.
	ErrorMessage string
}

// Message renders the outcome as a human-readable sentence for tool callers.
func (o Outcome) Message(req Request) string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("%s order placed for %d x %s. Order ID: %s, status: %s.", req.Side, req.Quantity, req.Symbol, o.OrderID, o.Status)
	case KindPlacedButRejected:
		status := o.Status
		if status == "" {
			status = constant.OrderStatusRejected
		}
		msg := fmt.Sprintf("%s order for %d x %s was placed but %s by the exchange. Order ID: %s.", req.Side, req.Quantity, req.Symbol, status, o.OrderID)
		if o.Reason != "" {
			msg += " Reason: " + o.Reason
		}
		return msg
	case KindRejected:
		msg := fmt.Sprintf("Order rejected by broker: %s", o.ErrorMessage)
		if o.ErrorCode != "" {
			msg += fmt.Sprintf(" (%s)", o.ErrorCode)
		}
		if o.Reason != "" {
			msg += ". Reason: " + o.Reason
		}
		return msg
	case KindValidationError:
		return "Invalid order: " + o.ErrorMessage
	case KindAuthError:
		return "Authentication failed: " + o.ErrorMessage
	default:
		return "Order failed: " + o.ErrorMessage
	}
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
