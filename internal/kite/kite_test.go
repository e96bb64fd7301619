package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/router-for-me/KiteMCP/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Kite.APIKey = "testkey"
	cfg.Kite.APISecret = "testsecret"
	cfg.Kite.BaseURL = baseURL
	cfg.Kite.RateLimitPerSec = 1000
	return cfg
}

func TestGenerateSessionSendsChecksum(t *testing.T) {
	var gotChecksum, gotAPIKey, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session/token" {
			t.Errorf("request = %s %s, want POST /session/token", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Kite-Version"); got != "3" {
			t.Errorf("X-Kite-Version = %q, want %q", got, "3")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		gotAPIKey = r.PostForm.Get("api_key")
		gotToken = r.PostForm.Get("request_token")
		gotChecksum = r.PostForm.Get("checksum")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"access_token":"acc-token","refresh_token":"ref-token","user_name":"Test User","email":"t@example.com"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	session, err := client.GenerateSession(context.Background(), "reqtok123456", "testsecret")
	if err != nil {
		t.Fatalf("GenerateSession() error = %v, want nil", err)
	}

	sum := sha256.Sum256([]byte("testkey" + "reqtok123456" + "testsecret"))
	wantChecksum := hex.EncodeToString(sum[:])
	if gotChecksum != wantChecksum {
		t.Errorf("checksum = %q, want %q", gotChecksum, wantChecksum)
	}
	if gotAPIKey != "testkey" || gotToken != "reqtok123456" {
		t.Errorf("form = (%q, %q), want (testkey, reqtok123456)", gotAPIKey, gotToken)
	}
	if session.AccessToken != "acc-token" {
		t.Errorf("AccessToken = %q, want %q", session.AccessToken, "acc-token")
	}
	if session.RefreshToken != "ref-token" {
		t.Errorf("RefreshToken = %q, want %q", session.RefreshToken, "ref-token")
	}
}

func TestGenerateSessionMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"user_name":"Test User"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	if _, err := client.GenerateSession(context.Background(), "reqtok123456", "testsecret"); err == nil {
		t.Fatal("GenerateSession() error = nil, want missing access_token error")
	}
}

func TestPlaceOrderNormalizesOrderID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"structured order id",
			`{"status":"success","data":{"order_id":"250821000123456"}}`,
			"250821000123456",
		},
		{
			"bare string data",
			`{"status":"success","data":"250821000654321"}`,
			"250821000654321",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/orders/regular" {
					t.Errorf("path = %q, want %q", r.URL.Path, "/orders/regular")
				}
				if got := r.Header.Get("Authorization"); got != "token testkey:acc-token" {
					t.Errorf("Authorization = %q, want %q", got, "token testkey:acc-token")
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL), nil)
			client.SetAccessToken("acc-token")

			got, err := client.PlaceOrder(context.Background(), "regular", OrderParams{
				Exchange:        "NSE",
				Tradingsymbol:   "RELIANCE",
				TransactionType: "BUY",
				Quantity:        1,
				Product:         "CNC",
				OrderType:       "MARKET",
				Validity:        "DAY",
			})
			if err != nil {
				t.Fatalf("PlaceOrder() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("PlaceOrder() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceOrderSendsPriceForLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("price"); got != "2450.50" {
			t.Errorf("price = %q, want %q", got, "2450.50")
		}
		if got := r.PostForm.Get("order_type"); got != "LIMIT" {
			t.Errorf("order_type = %q, want %q", got, "LIMIT")
		}
		if r.PostForm.Has("trigger_price") {
			t.Error("trigger_price sent for a plain LIMIT order")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"order_id":"1"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	client.SetAccessToken("acc-token")

	_, err := client.PlaceOrder(context.Background(), "regular", OrderParams{
		Exchange:        "NSE",
		Tradingsymbol:   "RELIANCE",
		TransactionType: "BUY",
		Quantity:        1,
		Product:         "CNC",
		OrderType:       "LIMIT",
		Validity:        "DAY",
		Price:           2450.5,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid API credentials","error_type":"TokenException"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	client.SetAccessToken("stale-token")

	_, err := client.Profile(context.Background())
	if err == nil {
		t.Fatal("Profile() error = nil, want APIError")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusForbidden)
	}
	if apiErr.ErrorType != "TokenException" {
		t.Errorf("ErrorType = %q, want %q", apiErr.ErrorType, "TokenException")
	}
	if apiErr.Message != "Invalid API credentials" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "Invalid API credentials")
	}
}

func TestAuthenticatedCallWithoutTokenDoesNotHitNetwork(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	_, err := client.Orders(context.Background())
	if err == nil {
		t.Fatal("Orders() error = nil, want TokenException APIError")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorType != "TokenException" {
		t.Fatalf("error = %v, want TokenException APIError", err)
	}
	if requests != 0 {
		t.Errorf("requests = %d, want 0", requests)
	}
}

func TestPositionsParsesNetLeg(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio/positions" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/portfolio/positions")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"net":[{"tradingsymbol":"INFY","quantity":10,"last_price":1520.35},{"tradingsymbol":"TCS","quantity":-5,"last_price":3890.1}],"day":[]}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	client.SetAccessToken("acc-token")

	positions, err := client.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions() error = %v, want nil", err)
	}
	if len(positions) != 2 {
		t.Fatalf("len(positions) = %d, want 2", len(positions))
	}
	if positions[0].Tradingsymbol != "INFY" || positions[0].Quantity != 10 || positions[0].LastPrice != 1520.35 {
		t.Errorf("positions[0] = %+v, want INFY/10/1520.35", positions[0])
	}
	if positions[1].Quantity != -5 {
		t.Errorf("positions[1].Quantity = %d, want -5", positions[1].Quantity)
	}
}

func TestOrdersParsesOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":[{"order_id":"1","status":"COMPLETE","tradingsymbol":"INFY"},{"order_id":"2","status":"REJECTED","rejection_reason":"insufficient funds"}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)
	client.SetAccessToken("acc-token")

	orders, err := client.Orders(context.Background())
	if err != nil {
		t.Fatalf("Orders() error = %v, want nil", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len(orders) = %d, want 2", len(orders))
	}
	if orders[1].Status != "REJECTED" || orders[1].RejectionReason != "insufficient funds" {
		t.Errorf("orders[1] = %+v, want REJECTED with reason", orders[1])
	}
}
