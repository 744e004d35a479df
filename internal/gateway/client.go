// Package gateway предоставляет клиент платёжного шлюза Cashfree для создания заказов.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/mmeshcher/deposit-gateway/internal/model"
)

const (
	// DefaultBaseURL адрес production-окружения Cashfree PG.
	DefaultBaseURL = "https://api.cashfree.com/pg"
	// DefaultAPIVersion версия API, с которой совместим формат запроса.
	DefaultAPIVersion = "2022-09-01"

	maxErrorBody = 1 << 10
)

var (
	// ErrNotConfigured возвращается, если не заданы учётные данные шлюза.
	ErrNotConfigured = errors.New("gateway client not configured")
	// ErrMissingSessionID возвращается, если шлюз ответил успехом без payment_session_id.
	ErrMissingSessionID = errors.New("gateway response has no payment_session_id")
)

// UpstreamError описывает неуспешный ответ шлюза.
// Тело ответа предназначено только для логов и не должно уходить клиенту.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Config содержит параметры подключения к шлюзу.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIVersion   string
	Timeout      time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с API заказов шлюза.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	apiVersion   string
	httpClient   *http.Client
}

// OrderResponse содержит ответ шлюза на создание заказа.
// Raw хранит тело ответа без изменений для передачи клиенту.
type OrderResponse struct {
	Raw              json.RawMessage
	PaymentSessionID string
	OrderID          string
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type createOrderRequest struct {
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
	OrderID         string          `json:"order_id"`
	OrderAmount     json.Number     `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
}

type createOrderResponse struct {
	PaymentSessionID string `json:"payment_session_id"`
	OrderID          string `json:"order_id"`
}

// NewClient создаёт HTTP-клиент шлюза с указанными параметрами.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiVersion:   apiVersion,
		httpClient: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   timeout,
		},
	}
}

// Configured сообщает, заданы ли учётные данные шлюза.
func (c *Client) Configured() bool {
	return c != nil && c.clientID != "" && c.clientSecret != ""
}

// CreateOrder создаёт заказ в шлюзе и возвращает ответ вместе с идентификатором платёжной сессии.
func (c *Client) CreateOrder(ctx context.Context, order model.DepositOrder) (*OrderResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(createOrderRequest{
		CustomerDetails: customerDetails{
			CustomerID:    order.Customer.ID,
			CustomerEmail: order.Customer.Email,
			CustomerPhone: order.Customer.Phone,
			CustomerName:  order.Customer.Name,
		},
		OrderMeta: orderMeta{
			ReturnURL: order.ReturnURL,
		},
		OrderID:       order.ID,
		OrderAmount:   json.Number(order.Amount.StringFixed(2)),
		OrderCurrency: order.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-version", c.apiVersion)
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.clientSecret)
	req.Header.Set("x-request-id", order.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed createOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if parsed.PaymentSessionID == "" {
		return nil, ErrMissingSessionID
	}

	return &OrderResponse{
		Raw:              raw,
		PaymentSessionID: parsed.PaymentSessionID,
		OrderID:          parsed.OrderID,
	}, nil
}
