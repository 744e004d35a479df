// Package handler содержит HTTP-обработчики сервиса пополнения баланса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/deposit-gateway/internal/gateway"
	"github.com/mmeshcher/deposit-gateway/internal/middleware"
	"github.com/mmeshcher/deposit-gateway/internal/model"
	"github.com/mmeshcher/deposit-gateway/internal/repository"
	"github.com/mmeshcher/deposit-gateway/internal/service"
	"github.com/mmeshcher/deposit-gateway/internal/signature"
)

const (
	// SignatureHeader содержит подпись уведомления платёжного шлюза.
	SignatureHeader = "x-webhook-signature"
	// TimestampHeader содержит метку времени, участвующую в подписи.
	TimestampHeader = "x-webhook-timestamp"

	maxWebhookBody     = 1 << 20
	maxCreateOrderBody = 64 << 10

	rootMessage        = "Deposit gateway is running"
	createOrderFailure = "Failed to create payment order."
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, req model.DepositRequest) (*gateway.OrderResponse, error)
	ProcessWebhook(ctx context.Context, event model.WebhookEvent) (service.WebhookResult, model.PaymentOutcome, error)
	GetBalance(ctx context.Context, userID string) (*model.UserBalance, error)
	GetTransactions(ctx context.Context, userID string) ([]model.TransactionRecord, error)
	Ready(ctx context.Context) error
}

// Handler реализует HTTP-обработчики сервиса пополнения баланса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	allowedOrigins []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, allowedOrigins []string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		allowedOrigins: allowedOrigins,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Root отвечает на проверку доступности сервиса.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rootMessage)
}

// Health проверяет доступность хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.Warn("store is unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateOrder создаёт заказ на пополнение в платёжном шлюзе и возвращает ответ шлюза без изменений.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req model.DepositRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateOrderBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: service.ErrInvalidDeposit.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrInvalidDeposit.Error()})
		return
	}

	resp, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeposit) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrInvalidDeposit.Error()})
			return
		}

		fields := []zap.Field{zap.Error(err), zap.String("user_id", req.UserID)}
		var upstream *gateway.UpstreamError
		if errors.As(err, &upstream) {
			fields = append(fields, zap.Int("upstream_status", upstream.StatusCode), zap.String("upstream_body", upstream.Body))
		}
		h.logger.Error("create order error", fields...)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: createOrderFailure})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Raw)
}

// Webhook принимает уведомление платёжного шлюза и зачисляет оплаченную сумму.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	event := model.WebhookEvent{
		Payload:   payload,
		Signature: r.Header.Get(SignatureHeader),
		Timestamp: r.Header.Get(TimestampHeader),
	}

	result, outcome, err := h.service.ProcessWebhook(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, signature.ErrMissingHeaders),
			errors.Is(err, signature.ErrInvalidSignature),
			errors.Is(err, signature.ErrStaleTimestamp):
			h.logger.Warn("webhook rejected", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, service.ErrMalformedEvent):
			h.logger.Warn("malformed webhook", zap.Error(err), zap.String("order_id", outcome.OrderID))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("webhook processing error", zap.Error(err),
				zap.String("order_id", outcome.OrderID), zap.String("user_id", outcome.CustomerID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("webhook processed",
		zap.String("result", string(result)),
		zap.String("order_id", outcome.OrderID),
		zap.String("user_id", outcome.CustomerID),
		zap.String("order_status", string(outcome.OrderStatus)),
		zap.String("amount", outcome.Amount.String()),
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// GetBalance возвращает баланс пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.String("user_id", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// GetTransactions возвращает историю зачислений пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	txs, err := h.service.GetTransactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.String("user_id", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}
