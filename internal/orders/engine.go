package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	kiteauth "github.com/router-for-me/KiteMCP/internal/auth/kite"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/constant"
	"github.com/router-for-me/KiteMCP/internal/journal"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/metrics"
)

// SessionProvider supplies authenticated brokerage clients and forced
// re-authentication. The session manager implements it.
type SessionProvider interface {
	AuthenticatedClient(ctx context.Context, autoAuthenticate bool) (*kite.Client, error)
	Reauthenticate(ctx context.Context) (*kiteauth.TokenRecord, error)
}

// allowedExchanges is the fixed allow-list for order placement.
var allowedExchanges = map[string]bool{
	"NSE": true,
	"BSE": true,
	"NFO": true,
	"CDS": true,
	"MCX": true,
}

// Engine validates and places orders, confirms their post-placement status,
// classifies outcomes and retries once on session expiry.
type Engine struct {
	mu       sync.RWMutex
	cfg      *config.Config
	sessions SessionProvider
	journal  *journal.Journal
}

// NewEngine wires the order engine to the session manager and journal.
func NewEngine(cfg *config.Config, sessions SessionProvider, j *journal.Journal) *Engine {
	return &Engine{cfg: cfg, sessions: sessions, journal: j}
}

// UpdateConfig swaps the active configuration after a hot reload. The
// confirmation delay is read per placement, so the new value applies to the
// next order.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) confirmationDelay() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Orders.ConfirmationDelay()
}

// Validate checks a normalized request against the placement rules. Failures
// are local and final: they never reach the network and are never retried.
func Validate(r Request) error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be a positive integer, got %d", r.Quantity)
	}
	if r.Side != constant.SideBuy && r.Side != constant.SideSell {
		return fmt.Errorf("side must be BUY or SELL, got %q", r.Side)
	}
	if !allowedExchanges[r.Exchange] {
		return fmt.Errorf("exchange %q is not supported", r.Exchange)
	}
	if (r.OrderType == "LIMIT" || r.OrderType == "SL") && r.Price <= 0 {
		return fmt.Errorf("%s orders require a positive price", r.OrderType)
	}
	if (r.OrderType == "SL" || r.OrderType == "SL-M") && r.TriggerPrice <= 0 {
		return fmt.Errorf("%s orders require a positive trigger price", r.OrderType)
	}
	return nil
}

// Place runs the full placement flow: validate, ensure a live session, submit,
// confirm the settled status, classify and journal the outcome. It never
// panics and never returns an unclassified error; every path ends in a typed
// outcome.
func (e *Engine) Place(ctx context.Context, req Request) Outcome {
	req.Normalize()

	if err := Validate(req); err != nil {
		metrics.IncOrderOutcome(string(KindValidationError))
		log.WithFields(log.Fields{"symbol": req.Symbol, "side": req.Side, "qty": req.Quantity}).Warnf("orders: rejected before placement: %v", err)
		return Outcome{Kind: KindValidationError, ErrorMessage: err.Error()}
	}

	client, err := e.sessions.AuthenticatedClient(ctx, true)
	if err != nil {
		return e.authFailure(req, err)
	}

	params := req.orderParams()
	orderID, err := client.PlaceOrder(ctx, req.Variety, params)
	if err != nil {
		if !IsAuthRelated(err) {
			return e.finish(req, classifyFailure(err))
		}

		// One transparent re-authentication, one retry. A second failure of
		// any kind surfaces as an authentication outcome instead of looping.
		log.WithFields(log.Fields{"symbol": req.Symbol, "side": req.Side}).Warn("orders: submission hit an authentication error, re-authenticating once")
		if _, errAuth := e.sessions.Reauthenticate(ctx); errAuth != nil {
			return e.authFailure(req, errAuth)
		}
		orderID, err = client.PlaceOrder(ctx, req.Variety, params)
		if err != nil {
			return e.authFailure(req, err)
		}
	}

	status, reason := e.confirm(ctx, client, orderID)
	if status == constant.OrderStatusRejected || status == constant.OrderStatusCancelled {
		return e.finish(req, Outcome{Kind: KindPlacedButRejected, OrderID: orderID, Status: status, Reason: reason})
	}
	return e.finish(req, Outcome{Kind: KindSuccess, OrderID: orderID, Status: status})
}

// Positions fetches net positions and renders one line per holding. An
// auth-classified fetch failure triggers one forced re-authentication and a
// single retry, mirroring the placement path.
func (e *Engine) Positions(ctx context.Context) (string, error) {
	client, err := e.sessions.AuthenticatedClient(ctx, true)
	if err != nil {
		return "", err
	}

	positions, err := client.Positions(ctx)
	if err != nil && IsAuthRelated(err) {
		log.Warn("orders: positions fetch hit an authentication error, re-authenticating once")
		if _, errAuth := e.sessions.Reauthenticate(ctx); errAuth != nil {
			return "", errAuth
		}
		positions, err = client.Positions(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("orders: failed to fetch positions: %w", err)
	}

	return RenderPositions(positions), nil
}

// RenderPositions formats holdings one per line. An empty book renders an
// explicit message instead of empty output.
func RenderPositions(positions []kite.Position) string {
	if len(positions) == 0 {
		return "No positions found."
	}
	lines := make([]string, 0, len(positions))
	for _, p := range positions {
		lines = append(lines, fmt.Sprintf("stock: %s, qty: %d, currentPrice: %s",
			p.Tradingsymbol, p.Quantity, strconv.FormatFloat(p.LastPrice, 'f', -1, 64)))
	}
	return strings.Join(lines, "\n")
}

// IsAuthRelated reports whether an error from the brokerage looks like an
// authentication failure. The broker signals TokenException structurally;
// the substring heuristic covers error strings from lower layers. It is
// deliberately isolated here so call sites never depend on the heuristic
// directly.
func IsAuthRelated(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *kite.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorType == "TokenException" {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "token") || strings.Contains(text, "auth")
}

// classifyFailure turns a non-authentication submission error into a REJECTED
// outcome when the remote payload is structured, and ERROR otherwise.
func classifyFailure(err error) Outcome {
	var apiErr *kite.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorType != "" {
		outcome := Outcome{
			Kind:         KindRejected,
			ErrorCode:    apiErr.ErrorType,
			ErrorMessage: apiErr.Message,
		}
		if reason := gjson.Get(apiErr.Raw, "data.rejection_reason"); reason.Exists() {
			outcome.Reason = reason.String()
		}
		return outcome
	}
	return Outcome{Kind: KindError, ErrorMessage: err.Error()}
}

// confirm waits the configured delay, then reads the order book to learn the
// settled status. A failed or empty lookup is not fatal to the placement: the
// order stands, its status is just unknown, so PENDING is reported.
func (e *Engine) confirm(ctx context.Context, client *kite.Client, orderID string) (string, string) {
	select {
	case <-time.After(e.confirmationDelay()):
	case <-ctx.Done():
		return constant.OrderStatusPending, ""
	}

	book, err := client.Orders(ctx)
	if err != nil {
		log.Warnf("orders: status lookup failed for %s: %v", orderID, err)
		return constant.OrderStatusPending, ""
	}
	for _, order := range book {
		if order.OrderID != orderID {
			continue
		}
		status := order.Status
		if status == "" {
			status = constant.OrderStatusPending
		}
		reason := order.RejectionReason
		if reason == "" {
			reason = order.StatusMessage
		}
		return status, reason
	}
	return constant.OrderStatusPending, ""
}

// authFailure classifies and counts an authentication outcome. These are not
// journaled: no order reached the broker.
func (e *Engine) authFailure(req Request, err error) Outcome {
	message := err.Error()
	if kiteauth.IsAuthenticationError(err) {
		message = kiteauth.GetUserFriendlyMessage(err)
	}
	outcome := Outcome{Kind: KindAuthError, ErrorMessage: message}
	metrics.IncOrderOutcome(string(KindAuthError))
	log.WithFields(log.Fields{"symbol": req.Symbol, "side": req.Side, "outcome": string(outcome.Kind)}).Errorf("orders: %v", err)
	return outcome
}

// finish journals a terminal outcome, updates metrics and returns it. The
// journal write is best effort and can never change the outcome.
func (e *Engine) finish(req Request, outcome Outcome) Outcome {
	e.journal.Record(journal.Entry{
		Kind:         string(outcome.Kind),
		Side:         req.Side,
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		Exchange:     req.Exchange,
		Product:      req.Product,
		OrderType:    req.OrderType,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		OrderID:      outcome.OrderID,
		Status:       outcome.Status,
		Reason:       outcome.Reason,
		ErrorCode:    outcome.ErrorCode,
		ErrorMessage: outcome.ErrorMessage,
	})
	metrics.IncOrderOutcome(string(outcome.Kind))

	fields := log.Fields{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      req.Quantity,
		"exchange": req.Exchange,
		"outcome":  string(outcome.Kind),
	}
	if outcome.OrderID != "" {
		fields["order_id"] = outcome.OrderID
	}
	if outcome.Status != "" {
		fields["status"] = outcome.Status
	}
	switch outcome.Kind {
	case KindSuccess:
		log.WithFields(fields).Info("orders: placement finished")
	default:
		log.WithFields(fields).Warn("orders: placement finished")
	}
	return outcome
}

func (r Request) orderParams() kite.OrderParams {
	return kite.OrderParams{
		Exchange:        r.Exchange,
		Tradingsymbol:   r.Symbol,
		TransactionType: r.Side,
		Quantity:        r.Quantity,
		Product:         r.Product,
		OrderType:       r.OrderType,
		Validity:        r.Validity,
		Price:           r.Price,
		TriggerPrice:    r.TriggerPrice,
	}
}
