package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"swap_go/internal/domain"
	"swap_go/internal/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Server exposes the engine over HTTP: order submission, order lookup
// and the WebSocket status stream. Validation lives here; anything that
// passes is handed to the engine untouched.
type Server struct {
	engine *engine.Engine
}

func NewServer(eng *engine.Engine) *Server {
	return &Server{engine: eng}
}

// Routes builds the router with the hygiene middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/api/orders/execute", s.handleCreateOrder)
	r.Get("/api/orders/execute", s.handleStream)
	r.Get("/api/orders/{id}", s.handleGetOrder)

	return r
}

type createOrderRequest struct {
	TokenIn  string          `json:"tokenIn"`
	TokenOut string          `json:"tokenOut"`
	Amount   decimal.Decimal `json:"amount"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

type orderResponse struct {
	domain.Order
	Events []eventMessage `json:"events"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := domain.NewMarketOrder(req.TokenIn, req.TokenOut, req.Amount)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	id, err := s.engine.Submit(r.Context(), order)
	if err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, createOrderResponse{OrderID: id})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := s.engine.Order(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			writeProblem(w, r, http.StatusNotFound, "not_found", "order not found")
			return
		}
		writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	history, err := s.engine.History(r.Context(), id)
	if err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	resp := orderResponse{Order: order, Events: make([]eventMessage, len(history))}
	for i, ev := range history {
		resp.Events[i] = newEventMessage(ev)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, title, detail string) {
	reqID := middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":      title,
		"status":     code,
		"detail":     detail,
		"instance":   r.URL.Path,
		"request_id": reqID,
	})
}
