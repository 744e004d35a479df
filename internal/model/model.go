// Package model содержит доменные сущности сервиса пополнения баланса.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositRequest описывает запрос клиента на пополнение баланса.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	UserID string          `json:"userId"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Phone  string          `json:"phone"`
}

// Customer содержит данные покупателя, передаваемые платёжному шлюзу.
type Customer struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// DepositOrder описывает заказ на пополнение, создаваемый в платёжном шлюзе.
// Сервис не хранит заказ: после создания его жизненным циклом управляет шлюз.
type DepositOrder struct {
	ID        string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
	ReturnURL string
}

// OrderStatus описывает статус заказа на стороне шлюза.
type OrderStatus string

const (
	OrderStatusActive     OrderStatus = "ACTIVE"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusExpired    OrderStatus = "EXPIRED"
	OrderStatusTerminated OrderStatus = "TERMINATED"
)

// PaymentStatus описывает статус отдельной попытки оплаты.
type PaymentStatus string

const (
	PaymentStatusSuccess     PaymentStatus = "SUCCESS"
	PaymentStatusFailed      PaymentStatus = "FAILED"
	PaymentStatusPending     PaymentStatus = "PENDING"
	PaymentStatusUserDropped PaymentStatus = "USER_DROPPED"
)

// WebhookEvent содержит входящее уведомление шлюза в исходном виде.
// Payload хранит байты тела ровно в том виде, в каком они были получены.
type WebhookEvent struct {
	Payload   []byte
	Signature string
	Timestamp string
}

// PaymentOutcome описывает результат оплаты, извлечённый из уведомления.
type PaymentOutcome struct {
	EventType     string
	EventTime     string
	OrderID       string
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Amount        decimal.Decimal
	Currency      string
	PaymentID     string
	CustomerID    string
}

// IsPaid сообщает, подтверждает ли уведомление успешную оплату заказа.
// Статус заказа приоритетнее статуса платежа, если шлюз прислал оба.
func (o PaymentOutcome) IsPaid() bool {
	if o.OrderStatus != "" {
		return OrderStatus(strings.ToUpper(string(o.OrderStatus))) == OrderStatusPaid
	}
	return PaymentStatus(strings.ToUpper(string(o.PaymentStatus))) == PaymentStatusSuccess
}

// UserBalance содержит текущий баланс пополнений пользователя.
type UserBalance struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TransactionStatus описывает статус записи о зачислении.
type TransactionStatus string

const TransactionStatusSuccess TransactionStatus = "SUCCESS"

// TransactionRecord описывает неизменяемую запись о зачислении средств.
type TransactionRecord struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"userId"`
	Amount    decimal.Decimal   `json:"amount"`
	OrderID   string            `json:"orderId"`
	PaymentID string            `json:"paymentId"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CreditResult описывает итог попытки зачисления.
// Applied равен false, если заказ уже был зачислен ранее.
type CreditResult struct {
	Applied     bool
	Balance     decimal.Decimal
	Transaction TransactionRecord
}
