package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"paper-trader-go/internal/ledger"
	"paper-trader-go/internal/marketdata"
)

type contextKey string

const accountIDKey contextKey = "account_id"

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	ledger *ledger.Ledger
	oracle marketdata.Oracle

	mu       sync.RWMutex
	sessions map[string]uint // bearer token -> account ID
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, book *ledger.Ledger, oracle marketdata.Oracle) *APIHandler {
	return &APIHandler{
		log:      log,
		ledger:   book,
		oracle:   oracle,
		sessions: make(map[string]uint),
	}
}

// Router builds the chi router with all routes registered.
func (h *APIHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requestLogging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/register", h.RegisterHandler)
	r.Post("/api/login", h.LoginHandler)
	r.Get("/api/quote/{symbol}", h.QuoteHandler)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/api/trades", h.TradeHandler)
		r.Get("/api/holdings", h.HoldingsHandler)
		r.Get("/api/orders", h.OrdersHandler)
		r.Get("/api/account", h.AccountHandler)
	})

	return r
}

// requestLogging logs each request's method, path, and duration.
func (h *APIHandler) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// requireSession resolves the bearer token to an account ID.
func (h *APIHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		h.mu.RLock()
		accountID, ok := h.sessions[token]
		h.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterHandler creates a new account.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := h.ledger.Register(req.Username, req.Password)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// LoginHandler authenticates and issues a session token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.ledger.Authenticate(req.Username, req.Password)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	token := uuid.NewString()
	h.mu.Lock()
	h.sessions[token] = account.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"account": account,
	})
}

// QuoteHandler returns the latest close price for a symbol.
func (h *APIHandler) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := h.oracle.LatestClose(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoQuote) {
			writeError(w, http.StatusNotFound, "no quote for symbol")
			return
		}
		h.log.Error("Quote lookup failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusBadGateway, "price unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": quote.Symbol,
		"price":  quote.Price,
		"as_of":  quote.AsOf.Unix(),
	})
}

type tradeRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Side     string `json:"side"`
}

// TradeHandler executes a buy or sell for the session's account.
func (h *APIHandler) TradeHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.Context().Value(accountIDKey).(uint)

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.ledger.ExecuteTrade(r.Context(), accountID, req.Symbol, req.Quantity, strings.ToUpper(req.Side))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// HoldingsHandler returns the session account's positions.
func (h *APIHandler) HoldingsHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.Context().Value(accountIDKey).(uint)

	holdings, err := h.ledger.GetHoldings(accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// OrdersHandler returns the session account's trade history, newest first.
func (h *APIHandler) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.Context().Value(accountIDKey).(uint)

	orders, err := h.ledger.GetOrderHistory(accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// AccountHandler returns the session account, including its balance.
func (h *APIHandler) AccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.Context().Value(accountIDKey).(uint)

	account, err := h.ledger.GetAccount(accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// writeLedgerError maps ledger sentinels to HTTP status codes.
func (h *APIHandler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidSide):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrPriceUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("Unexpected ledger error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
