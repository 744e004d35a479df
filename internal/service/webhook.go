package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/deposit-gateway/internal/model"
	"github.com/mmeshcher/deposit-gateway/internal/repository"
	"github.com/mmeshcher/deposit-gateway/internal/validation"
)

// ErrMalformedEvent возвращается, если подписанное уведомление не удалось разобрать.
var ErrMalformedEvent = errors.New("malformed webhook event")

// WebhookResult описывает итог обработки уведомления.
type WebhookResult string

const (
	// WebhookIgnored уведомление не подтверждает оплату, хранилище не изменялось.
	WebhookIgnored WebhookResult = "ignored"
	// WebhookCredited средства зачислены на баланс.
	WebhookCredited WebhookResult = "credited"
	// WebhookDuplicate заказ уже был зачислен ранее.
	WebhookDuplicate WebhookResult = "duplicate"
)

type webhookPayload struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID       string              `json:"order_id"`
			OrderAmount   decimal.NullDecimal `json:"order_amount"`
			OrderCurrency string              `json:"order_currency"`
			OrderStatus   string              `json:"order_status"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   flexibleID          `json:"cf_payment_id"`
			PaymentStatus string              `json:"payment_status"`
			PaymentAmount decimal.NullDecimal `json:"payment_amount"`
		} `json:"payment"`
		CustomerDetails struct {
			CustomerID string `json:"customer_id"`
		} `json:"customer_details"`
	} `json:"data"`
}

// flexibleID принимает идентификатор, пришедший как строкой, так и числом.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// ParseOutcome извлекает результат оплаты из тела уведомления.
// Вызывать только после успешной проверки подписи.
func ParseOutcome(payload []byte) (model.PaymentOutcome, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	outcome := model.PaymentOutcome{
		EventType:     p.Type,
		EventTime:     p.EventTime,
		OrderID:       p.Data.Order.OrderID,
		OrderStatus:   model.OrderStatus(p.Data.Order.OrderStatus),
		PaymentStatus: model.PaymentStatus(p.Data.Payment.PaymentStatus),
		Currency:      p.Data.Order.OrderCurrency,
		PaymentID:     string(p.Data.Payment.CFPaymentID),
		CustomerID:    p.Data.CustomerDetails.CustomerID,
	}

	switch {
	case p.Data.Payment.PaymentAmount.Valid && p.Data.Payment.PaymentAmount.Decimal.IsPositive():
		outcome.Amount = p.Data.Payment.PaymentAmount.Decimal
	case p.Data.Order.OrderAmount.Valid:
		outcome.Amount = p.Data.Order.OrderAmount.Decimal
	}

	// Уведомления без оплаты (возвраты, истёкшие заказы) подтверждаются без проверки полей.
	if !outcome.IsPaid() {
		return outcome, nil
	}

	if outcome.OrderID == "" {
		return outcome, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	if outcome.CustomerID == "" {
		return outcome, fmt.Errorf("%w: missing customer_id", ErrMalformedEvent)
	}
	if !validation.IsValidAmount(outcome.Amount) {
		return outcome, fmt.Errorf("%w: invalid amount %s", ErrMalformedEvent, outcome.Amount)
	}

	return outcome, nil
}

// ProcessWebhook проверяет подпись уведомления, разбирает его и зачисляет оплаченную сумму.
// Подпись проверяется над исходными байтами до любого разбора.
func (s *Service) ProcessWebhook(ctx context.Context, event model.WebhookEvent) (WebhookResult, model.PaymentOutcome, error) {
	if err := s.verifier.Verify(event.Timestamp, event.Payload, event.Signature); err != nil {
		return "", model.PaymentOutcome{}, err
	}

	outcome, err := ParseOutcome(event.Payload)
	if err != nil {
		return "", outcome, err
	}

	if !outcome.IsPaid() {
		return WebhookIgnored, outcome, nil
	}

	res, err := s.Credit(ctx, outcome)
	if err != nil {
		return "", outcome, err
	}
	if !res.Applied {
		return WebhookDuplicate, outcome, nil
	}
	return WebhookCredited, outcome, nil
}

// Credit атомарно увеличивает баланс пользователя на оплаченную сумму и записывает транзакцию.
// Повторное зачисление того же заказа не меняет баланс и возвращает Applied = false.
func (s *Service) Credit(ctx context.Context, outcome model.PaymentOutcome) (*model.CreditResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	var result model.CreditResult
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.CreditTx) error {
		result = model.CreditResult{}

		// Блокировка строки баланса сериализует зачисления одному пользователю.
		balance, err := tx.LockBalance(ctx, outcome.CustomerID)
		if err != nil {
			return err
		}

		existing, err := tx.TransactionByOrderID(ctx, outcome.OrderID)
		if err == nil {
			result = model.CreditResult{Applied: false, Balance: balance, Transaction: *existing}
			return nil
		}
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			return err
		}

		newBalance := balance.Add(outcome.Amount)
		if err := tx.SetBalance(ctx, outcome.CustomerID, newBalance); err != nil {
			return err
		}

		rec := &model.TransactionRecord{
			UserID:    outcome.CustomerID,
			Amount:    outcome.Amount,
			OrderID:   outcome.OrderID,
			PaymentID: outcome.PaymentID,
			Status:    model.TransactionStatusSuccess,
		}
		if err := tx.InsertTransaction(ctx, rec); err != nil {
			return err
		}

		result = model.CreditResult{Applied: true, Balance: newBalance, Transaction: *rec}
		return nil
	})
	if err != nil {
		// Заказ уже зачислен параллельной доставкой того же уведомления.
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return &model.CreditResult{Applied: false}, nil
		}
		return nil, fmt.Errorf("credit order %s for user %s: %w", outcome.OrderID, outcome.CustomerID, err)
	}

	return &result, nil
}
