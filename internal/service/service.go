// Package service реализует бизнес-логику сервиса пополнения баланса.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmeshcher/deposit-gateway/internal/gateway"
	"github.com/mmeshcher/deposit-gateway/internal/model"
	"github.com/mmeshcher/deposit-gateway/internal/repository"
	"github.com/mmeshcher/deposit-gateway/internal/validation"
)

const (
	defaultOrderPrefix    = "TFZ"
	defaultCurrency       = "INR"
	defaultGatewayTimeout = 10 * time.Second
	defaultStoreTimeout   = 5 * time.Second

	orderSuffixBytes = 4
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.CreditTx) error) error
	GetBalance(ctx context.Context, userID string) (*model.UserBalance, error)
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.TransactionRecord, error)
}

// Gateway описывает клиент платёжного шлюза.
type Gateway interface {
	CreateOrder(ctx context.Context, order model.DepositOrder) (*gateway.OrderResponse, error)
}

// Verifier проверяет подпись входящего уведомления.
type Verifier interface {
	Verify(timestamp string, payload []byte, sig string) error
}

// Options содержит неизменяемые параметры сервиса, заданные при запуске.
type Options struct {
	OrderPrefix    string
	Currency       string
	ReturnURL      string
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration
}

// Service содержит бизнес-логику сервиса пополнения баланса.
type Service struct {
	repo     Repository
	gateway  Gateway
	verifier Verifier
	opts     Options

	now    func() time.Time
	random io.Reader
}

// NewService создаёт новый сервис с указанным репозиторием, клиентом шлюза и проверкой подписи.
func NewService(repo Repository, gw Gateway, verifier Verifier, opts Options) *Service {
	if opts.OrderPrefix == "" {
		opts.OrderPrefix = defaultOrderPrefix
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}

	return &Service{
		repo:     repo,
		gateway:  gw,
		verifier: verifier,
		opts:     opts,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ready проверяет доступность хранилища.
func (s *Service) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.repo.Ping(ctx)
}

// ErrInvalidDeposit возвращается, если запрос на пополнение не прошёл валидацию.
var ErrInvalidDeposit = errors.New("invalid deposit request")

// InvalidDepositError перечисляет поля запроса, не прошедшие валидацию.
type InvalidDepositError struct {
	Fields []validation.FieldError
}

func (e *InvalidDepositError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrInvalidDeposit.Error() + ": " + strings.Join(parts, "; ")
}

func (e *InvalidDepositError) Unwrap() error {
	return ErrInvalidDeposit
}

// CreateOrder проверяет запрос, создаёт заказ в платёжном шлюзе и возвращает ответ шлюза.
func (s *Service) CreateOrder(ctx context.Context, req model.DepositRequest) (*gateway.OrderResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if fields := validation.ValidateDeposit(req); len(fields) > 0 {
		return nil, &InvalidDepositError{Fields: fields}
	}

	orderID, err := s.newOrderID(req.UserID)
	if err != nil {
		return nil, err
	}

	order := model.DepositOrder{
		ID:       orderID,
		Amount:   req.Amount,
		Currency: s.opts.Currency,
		Customer: model.Customer{
			ID:    req.UserID,
			Email: req.Email,
			Phone: req.Phone,
			Name:  req.Name,
		},
		ReturnURL: s.opts.ReturnURL,
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	resp, err := s.gateway.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order %s: %w", orderID, err)
	}

	return resp, nil
}

// newOrderID строит номер заказа вида <prefix>-<userID>-<unix millis>-<random hex>.
func (s *Service) newOrderID(userID string) (string, error) {
	suffix := make([]byte, orderSuffixBytes)
	if _, err := io.ReadFull(s.random, suffix); err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d-%s", s.opts.OrderPrefix, userID, s.now().UnixMilli(), hex.EncodeToString(suffix)), nil
}

// GetBalance возвращает баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.repo.GetBalance(ctx, userID)
}

// GetTransactions возвращает историю зачислений пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID string) ([]model.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.repo.GetTransactionsByUser(ctx, userID)
}
