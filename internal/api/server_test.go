package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swap_go/internal/dex"
	"swap_go/internal/domain"
	"swap_go/internal/engine"
	"swap_go/internal/event"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	router := dex.NewMockDexRouter(dex.Config{
		BasePrice: decimal.NewFromInt(10),
		Seed:      7,
	})
	eng := engine.New(engine.Config{MaxConcurrent: 4, MaxAttempts: 1}, router, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)

	server := httptest.NewServer(NewServer(eng).Routes())
	t.Cleanup(server.Close)
	return server, eng
}

func submitOrder(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/orders/execute", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	return resp
}

func awaitConfirmed(t *testing.T, eng *engine.Engine, orderID string) {
	t.Helper()
	terminal := make(chan domain.OrderStatus, 1)
	_, err := eng.Subscribe(context.Background(), orderID, func(ev event.OrderEvent) {
		if ev.Status.IsTerminal() {
			terminal <- ev.Status
		}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	select {
	case st := <-terminal:
		if st != domain.StatusConfirmed {
			t.Fatalf("expected confirmed, got %s", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("order never reached a terminal status")
	}
}

func TestServer_CreateOrder(t *testing.T) {
	server, _ := newTestServer(t)

	resp := submitOrder(t, server, `{"tokenIn":"SOL","tokenOut":"USDC","amount":10}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.OrderID == "" {
		t.Error("expected non-empty orderId")
	}
}

func TestServer_CreateOrder_Validation(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing token_in", `{"tokenOut":"USDC","amount":10}`},
		{"missing token_out", `{"tokenIn":"SOL","amount":10}`},
		{"zero amount", `{"tokenIn":"SOL","tokenOut":"USDC","amount":0}`},
		{"negative amount", `{"tokenIn":"SOL","tokenOut":"USDC","amount":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := submitOrder(t, server, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("expected problem+json, got %s", ct)
			}
		})
	}
}

func TestServer_GetOrder(t *testing.T) {
	server, eng := newTestServer(t)

	resp := submitOrder(t, server, `{"tokenIn":"SOL","tokenOut":"USDC","amount":10}`)
	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	resp.Body.Close()

	awaitConfirmed(t, eng, created.OrderID)

	getResp, err := http.Get(server.URL + "/api/orders/" + created.OrderID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}

	var order struct {
		Status string `json:"status"`
		Events []struct {
			Status string `json:"status"`
		} `json:"events"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if order.Status != "confirmed" {
		t.Errorf("expected confirmed, got %s", order.Status)
	}
	if len(order.Events) != 5 {
		t.Errorf("expected 5 events, got %d", len(order.Events))
	}
}

func TestServer_GetOrder_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/orders/does-not-exist")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func TestServer_Stream(t *testing.T) {
	server, _ := newTestServer(t)

	resp := submitOrder(t, server, `{"tokenIn":"SOL","tokenOut":"USDC","amount":10}`)
	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	resp.Body.Close()

	wsURL := httpToWS(server.URL) + "/api/orders/execute?orderId=" + created.OrderID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WS dial failed: %v", err)
	}
	defer conn.Close()

	var statuses []string
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("WS read failed after %v: %v", statuses, err)
		}

		var ev struct {
			OrderID string `json:"orderId"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal %q: %v", msg, err)
		}
		if ev.OrderID != created.OrderID {
			t.Errorf("event for wrong order: %s", ev.OrderID)
		}
		statuses = append(statuses, ev.Status)

		if ev.Status == "confirmed" || ev.Status == "failed" {
			break
		}
	}

	want := []string{"pending", "routing", "building", "submitted", "confirmed"}
	if len(statuses) != len(want) {
		t.Fatalf("expected %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, statuses)
		}
	}
}

func TestServer_Stream_MissingOrderID(t *testing.T) {
	server, _ := newTestServer(t)

	wsURL := httpToWS(server.URL) + "/api/orders/execute"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WS dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("WS read failed: %v", err)
	}

	var errMsg struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg, &errMsg); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", msg, err)
	}
	if errMsg.Type != "error" {
		t.Errorf("expected error message, got %+v", errMsg)
	}
}
