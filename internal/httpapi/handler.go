// Package httpapi exposes the ledger engine over HTTP. The caller is trusted to have
// authenticated the account named in the path.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sheikh-saqib/account-ledger-engine/internal/ledger"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the part of the ledger the API serves.
type Engine interface {
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerTransaction, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerTransaction, error)
	Transfer(ctx context.Context, senderID, recipientEmail string, amount decimal.Decimal, description string) (models.LedgerTransaction, error)
	ListTransactions(ctx context.Context, accountID string, page, limit int, txType *models.TransactionType) (models.TransactionPage, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Handler serves the account endpoints.
type Handler struct {
	engine Engine
	logger *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// Router returns the HTTP routes with request-id, logging and recovery middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/transfer", h.Transfer)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/balance", h.Balance)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// MovementRequest is the body of deposit and withdraw calls.
type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferRequest is the body of a transfer call.
type TransferRequest struct {
	RecipientEmail string          `json:"recipient_email"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
}

// BalanceResponse is returned by GET /accounts/{id}/balance.
type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Deposit handles POST /accounts/{id}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.engine.Deposit(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// Withdraw handles POST /accounts/{id}/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.engine.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// Transfer handles POST /accounts/{id}/transfer. The response is the sender's leg.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RecipientEmail == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_parameter", Message: "Missing recipient_email"})
		return
	}
	tx, err := h.engine.Transfer(r.Context(), chi.URLParam(r, "id"), req.RecipientEmail, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions handles GET /accounts/{id}/transactions?page=&limit=&type=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, ok := intParam(w, q.Get("page"), "page")
	if !ok {
		return
	}
	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	var txType *models.TransactionType
	if v := q.Get("type"); v != "" {
		t := models.TransactionType(v)
		txType = &t
	}

	result, err := h.engine.ListTransactions(r.Context(), chi.URLParam(r, "id"), page, limit, txType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Balance handles GET /accounts/{id}/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.engine.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{AccountID: id, Balance: balance})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, ledger.ErrSelfTransfer):
		return http.StatusUnprocessableEntity, "self_transfer"
	case errors.Is(err, ledger.ErrAccountInactive):
		return http.StatusUnprocessableEntity, "account_inactive"
	case errors.Is(err, ledger.ErrInvalidType):
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrRecipientNotFound):
		return http.StatusNotFound, "recipient_not_found"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, ledger.ErrLockTimeout):
		return http.StatusServiceUnavailable, "busy"
	}
	return http.StatusInternalServerError, "server_error"
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Failed to parse request body"})
		return false
	}
	return true
}

// intParam parses an optional positive integer query parameter; absent means 0.
func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_parameter", Message: "Invalid " + name})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
