// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/deposit-gateway/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrUserNotFound возвращается, если запись баланса пользователя не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrTransactionNotFound возвращается, если транзакция по заказу не найдена.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateOrder возвращается при попытке повторно записать транзакцию по тому же заказу.
	ErrDuplicateOrder = errors.New("transaction for order already exists")
)

// CreditTx описывает операции, доступные внутри транзакции зачисления.
type CreditTx interface {
	LockBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	TransactionByOrderID(ctx context.Context, orderID string) (*model.TransactionRecord, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, rec *model.TransactionRecord) error
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	backoff func() retry.Backoff
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:    pool,
		backoff: defaultBackoff,
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
}

// withRetry повторяет fn при конфликте сериализации, дедлоке или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// WithinTx выполняет fn в одной транзакции БД. Любая ошибка fn откатывает все изменения.
// Попытка целиком повторяется при конфликте сериализации или дедлоке.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx CreditTx) error) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgCreditTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetBalance возвращает баланс пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	var b model.UserBalance
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM user_balances WHERE user_id = $1`,
		userID,
	).Scan(&b.UserID, &b.Balance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

// GetTransactionsByUser возвращает историю зачислений пользователя, новые первыми.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID string) ([]model.TransactionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, order_id, payment_id, status, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type pgCreditTx struct {
	tx pgx.Tx
}

// LockBalance блокирует строку баланса до конца транзакции и возвращает текущее значение.
func (t *pgCreditTx) LockBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT balance FROM user_balances WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// TransactionByOrderID возвращает транзакцию по номеру заказа.
func (t *pgCreditTx) TransactionByOrderID(ctx context.Context, orderID string) (*model.TransactionRecord, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, user_id, amount, order_id, payment_id, status, created_at
		 FROM transactions
		 WHERE order_id = $1`,
		orderID,
	)
	rec, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("select transaction: %w", err)
	}
	return rec, nil
}

// SetBalance записывает новое значение баланса.
func (t *pgCreditTx) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE user_balances SET balance = $2, updated_at = now() WHERE user_id = $1`,
		userID, balance.String(),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

// InsertTransaction добавляет запись о зачислении. Время создания назначает БД.
func (t *pgCreditTx) InsertTransaction(ctx context.Context, rec *model.TransactionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, amount, order_id, payment_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		rec.ID, rec.UserID, rec.Amount.String(), rec.OrderID, rec.PaymentID, string(rec.Status),
	).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, rec.OrderID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*model.TransactionRecord, error) {
	var (
		rec    model.TransactionRecord
		status string
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Amount, &rec.OrderID, &rec.PaymentID, &status, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Status = model.TransactionStatus(status)
	return &rec, nil
}
