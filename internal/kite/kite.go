// Package kite implements the subset of the Kite Connect v3 REST API the
// server needs: session generation, the profile liveness probe, order
// placement and lookup, and net positions. Every call is rate limited on the
// client side because Kite enforces a hard per-app request budget.
package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/constant"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/metrics"
	"github.com/router-for-me/KiteMCP/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const requestTimeout = 30 * time.Second

// Client is a Kite Connect REST client bound to one API key. The access token
// is mutable: the session manager rebinds it after every successful exchange.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	requestLogger logging.RequestLogger

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a Kite Connect client from the application configuration.
// The requestLogger may be nil when request logging is disabled.
func NewClient(cfg *config.Config, requestLogger logging.RequestLogger) *Client {
	httpClient := util.SetProxy(cfg, &http.Client{Timeout: requestTimeout})
	perSec := cfg.Kite.RateLimitPerSec
	return &Client{
		apiKey:        cfg.Kite.APIKey,
		baseURL:       strings.TrimRight(cfg.Kite.BaseURL, "/"),
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(rate.Limit(perSec), perSec),
		requestLogger: requestLogger,
	}
}

// SetAccessToken rebinds the token used for authenticated calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken returns the currently bound access token, empty when unbound.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// GenerateSession exchanges a request token for an access token. The checksum
// is SHA-256 over api_key + request_token + api_secret, hex encoded, exactly
// as the session endpoint expects.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (*Session, error) {
	checksum := sha256.Sum256([]byte(c.apiKey + requestToken + apiSecret))
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", hex.EncodeToString(checksum[:]))

	data, err := c.do(ctx, http.MethodPost, "/session/token", form, false)
	if err != nil {
		return nil, err
	}

	session := &Session{
		AccessToken:  data.Get("access_token").String(),
		RefreshToken: data.Get("refresh_token").String(),
		UserID:       data.Get("user_id").String(),
		UserName:     data.Get("user_name").String(),
		Email:        data.Get("email").String(),
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("kite: session response missing access_token")
	}
	return session, nil
}

// Profile fetches the account profile. It doubles as the cheapest
// authenticated call available, so token validation probes use it.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/profile", nil, true)
	if err != nil {
		return nil, err
	}
	return &Profile{
		UserName: data.Get("user_name").String(),
		Email:    data.Get("email").String(),
		Broker:   data.Get("broker").String(),
	}, nil
}

// PlaceOrder submits an order and returns the normalized order id. The
// success payload is usually {"data":{"order_id":"..."}} but some gateways
// hand the id back as a bare string; both shapes are accepted here so callers
// only ever see one form.
func (c *Client) PlaceOrder(ctx context.Context, variety string, params OrderParams) (string, error) {
	form := url.Values{}
	form.Set("exchange", params.Exchange)
	form.Set("tradingsymbol", params.Tradingsymbol)
	form.Set("transaction_type", params.TransactionType)
	form.Set("quantity", strconv.Itoa(params.Quantity))
	form.Set("product", params.Product)
	form.Set("order_type", params.OrderType)
	form.Set("validity", params.Validity)
	if params.Price > 0 {
		form.Set("price", strconv.FormatFloat(params.Price, 'f', 2, 64))
	}
	if params.TriggerPrice > 0 {
		form.Set("trigger_price", strconv.FormatFloat(params.TriggerPrice, 'f', 2, 64))
	}

	data, err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(variety), form, true)
	if err != nil {
		return "", err
	}

	if id := data.Get("order_id"); id.Exists() {
		return id.String(), nil
	}
	if data.Type == gjson.String && data.String() != "" {
		return data.String(), nil
	}
	return "", fmt.Errorf("kite: order response missing order_id")
}

// Orders fetches the order book.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	data, err := c.do(ctx, http.MethodGet, "/orders", nil, true)
	if err != nil {
		return nil, err
	}

	var orders []Order
	for _, item := range data.Array() {
		orders = append(orders, Order{
			OrderID:         item.Get("order_id").String(),
			Status:          item.Get("status").String(),
			StatusMessage:   item.Get("status_message").String(),
			RejectionReason: item.Get("rejection_reason").String(),
			Tradingsymbol:   item.Get("tradingsymbol").String(),
		})
	}
	return orders, nil
}

// Positions fetches the net positions leg of the portfolio.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	data, err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, true)
	if err != nil {
		return nil, err
	}

	var positions []Position
	for _, item := range data.Get("net").Array() {
		positions = append(positions, Position{
			Tradingsymbol: item.Get("tradingsymbol").String(),
			Quantity:      int(item.Get("quantity").Int()),
			LastPrice:     item.Get("last_price").Float(),
		})
	}
	return positions, nil
}

// do performs one REST round trip and unwraps the Kite response envelope.
// Non-success envelopes and transport-level failures both surface as errors;
// only the "data" payload of a success envelope is returned.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, authenticated bool) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("kite: rate limiter: %w", err)
	}

	endpoint := c.baseURL + path
	encoded := ""
	var body io.Reader
	if len(form) > 0 {
		encoded = form.Encode()
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kite: failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("X-Kite-Version", constant.KiteAPIVersion)
	if len(form) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if authenticated {
		token := c.AccessToken()
		if token == "" {
			return gjson.Result{}, &APIError{
				StatusCode: http.StatusUnauthorized,
				ErrorType:  "TokenException",
				Message:    "no access token bound",
			}
		}
		req.Header.Set("Authorization", "token "+c.apiKey+":"+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kite: %s %s failed: %w", method, path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("kite: close response body error: %v", errClose)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kite: failed to read %s %s response: %w", method, path, err)
	}

	metrics.ObserveKiteRequest(path, time.Since(start).Seconds())

	if c.requestLogger != nil && c.requestLogger.IsEnabled() {
		errLog := c.requestLogger.LogRequest(endpoint, method, req.Header, []byte(encoded), resp.StatusCode, resp.Header, respBody, logging.GetRequestID(ctx), start, time.Now())
		if errLog != nil {
			log.WithError(errLog).Warn("kite: request logging failed")
		}
	}

	parsed := gjson.ParseBytes(respBody)
	if resp.StatusCode != http.StatusOK || parsed.Get("status").String() != "success" {
		message := parsed.Get("message").String()
		if message == "" {
			message = strings.TrimSpace(string(respBody))
		}
		if message == "" {
			message = resp.Status
		}
		return gjson.Result{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorType:  parsed.Get("error_type").String(),
			Message:    message,
			Raw:        string(respBody),
		}
	}

	return parsed.Get("data"), nil
}
