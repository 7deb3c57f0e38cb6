// Package orders implements the Order Store (C4): the single source of
// truth for order records, backed by Postgres. Every mutation runs in a
// transaction that locks the order's row with SELECT ... FOR UPDATE before
// its single-row UPDATE, so concurrent mutations of one order serialize.
// Grounded on the
// teacher's pkg/database/postgres.go connection wrapper and its
// error-wrapping idiom throughout internal/web3/solana/defi_service.go.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	status         TEXT NOT NULL,
	token_in       TEXT NOT NULL,
	token_out      TEXT NOT NULL,
	amount_in      NUMERIC(20,8) NOT NULL,
	amount_out     NUMERIC(20,8),
	expected_price NUMERIC(20,8),
	executed_price NUMERIC(20,8),
	slippage       NUMERIC(5,4) NOT NULL,
	venue          TEXT,
	tx_ref         TEXT,
	error_message  TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
`

// Draft is the input to Create: everything the caller supplies before the
// Store assigns an id and timestamps.
type Draft struct {
	Type     domain.OrderType
	TokenIn  solana.PublicKey
	TokenOut solana.PublicKey
	AmountIn decimal.Decimal
	Slippage decimal.Decimal
}

// Filter narrows List/Count to a status.
type Filter struct {
	Status domain.OrderStatus // empty means "any"
}

// Store is the Order Store (C4).
type Store struct {
	db *database.DB
}

// New wraps db as an order Store, creating the schema if absent.
func New(ctx context.Context, db *database.DB) (*Store, error) {
	if _, err := db.ExecWithMetrics(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create orders schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create persists a new order in Pending status.
func (s *Store) Create(ctx context.Context, id string, draft Draft) (domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:        id,
		Type:      draft.Type,
		Status:    domain.StatusPending,
		TokenIn:   draft.TokenIn,
		TokenOut:  draft.TokenOut,
		AmountIn:  draft.AmountIn,
		Slippage:  draft.Slippage,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecWithMetrics(ctx, `
		INSERT INTO orders (id, type, status, token_in, token_out, amount_in, slippage,
			retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
		order.ID, order.Type, order.Status, order.TokenIn.String(), order.TokenOut.String(),
		order.AmountIn.String(), order.Slippage.String(), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

// Find looks up an order by id.
func (s *Store) Find(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRowWithMetrics(ctx, selectColumns+` WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return domain.Order{}, fmt.Errorf("%w: order %s", engineerr.ErrNotFound, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to find order: %w", err)
	}
	return order, nil
}

// List returns orders matching filter, newest first, bounded by limit/offset.
func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]domain.Order, error) {
	query := selectColumns
	args := []interface{}{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrderRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// Count returns the number of orders matching filter.
func (s *Store) Count(ctx context.Context, filter Filter) (int, error) {
	query := `SELECT COUNT(*) FROM orders`
	args := []interface{}{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}

	var count int
	if err := s.db.QueryRowWithMetrics(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// Transition atomically moves an order to newStatus, applying patch fields,
// rejecting illegal edges and mutation of terminal orders.
func (s *Store) Transition(ctx context.Context, id string, newStatus domain.OrderStatus, patch func(*domain.Order)) (domain.Order, error) {
	var result domain.Order
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id)
		current, err := scanOrder(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: order %s", engineerr.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read order for transition: %w", err)
		}

		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is already terminal (%s)", engineerr.ErrIllegalTransition, id, current.Status)
		}
		if !domain.CanTransition(current.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s not permitted", engineerr.ErrIllegalTransition, current.Status, newStatus)
		}

		current.Status = newStatus
		if patch != nil {
			patch(&current)
		}
		current.UpdatedAt = time.Now().UTC()
		if newStatus.IsTerminal() {
			completedAt := current.UpdatedAt
			current.CompletedAt = &completedAt
		}

		if err := s.update(ctx, tx, current); err != nil {
			return err
		}
		result = current
		return nil
	})

	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// RecordExecution records a successful swap and transitions
// Submitted -> Confirmed in one atomic step.
func (s *Store) RecordExecution(ctx context.Context, id string, venue, txRef string, executedPrice, amountOut decimal.Decimal) (domain.Order, error) {
	return s.Transition(ctx, id, domain.StatusConfirmed, func(o *domain.Order) {
		o.Venue = venue
		o.TxRef = txRef
		o.ExecutedPrice = executedPrice
		o.AmountOut = amountOut
	})
}

// IncrementRetry bumps retryCount without changing status.
func (s *Store) IncrementRetry(ctx context.Context, id string) (domain.Order, error) {
	var result domain.Order
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id)
		current, err := scanOrder(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: order %s", engineerr.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read order for retry increment: %w", err)
		}

		current.RetryCount++
		current.UpdatedAt = time.Now().UTC()

		if err := s.update(ctx, tx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// MarkFailed transitions an order to terminal Failed with an error message.
func (s *Store) MarkFailed(ctx context.Context, id string, errorMessage string) (domain.Order, error) {
	return s.Transition(ctx, id, domain.StatusFailed, func(o *domain.Order) {
		o.ErrorMessage = errorMessage
	})
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	var amountOut, expectedPrice, executedPrice interface{}
	if !o.AmountOut.IsZero() {
		amountOut = o.AmountOut.String()
	}
	if !o.ExecutedPrice.IsZero() {
		executedPrice = o.ExecutedPrice.String()
	}
	_ = expectedPrice

	var venue, txRef, errMsg interface{}
	if o.Venue != "" {
		venue = o.Venue
	}
	if o.TxRef != "" {
		txRef = o.TxRef
	}
	if o.ErrorMessage != "" {
		errMsg = o.ErrorMessage
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, amount_out = $2, executed_price = $3,
			venue = $4, tx_ref = $5, error_message = $6, retry_count = $7,
			updated_at = $8, completed_at = $9
		WHERE id = $10`,
		o.Status, amountOut, executedPrice, venue, txRef, errMsg, o.RetryCount,
		o.UpdatedAt, o.CompletedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

const selectColumns = `
SELECT id, type, status, token_in, token_out, amount_in, amount_out, executed_price,
	slippage, venue, tx_ref, error_message, retry_count, created_at, updated_at, completed_at
FROM orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	return scanInto(row)
}

func scanOrderRows(rows *sql.Rows) (domain.Order, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (domain.Order, error) {
	var (
		o                                        domain.Order
		tokenIn, tokenOut, amountIn               string
		amountOut, executedPrice, slippageStr     sql.NullString
		venue, txRef, errMsg                      sql.NullString
		completedAt                               sql.NullTime
	)

	if err := row.Scan(
		&o.ID, &o.Type, &o.Status, &tokenIn, &tokenOut, &amountIn, &amountOut, &executedPrice,
		&slippageStr, &venue, &txRef, &errMsg, &o.RetryCount, &o.CreatedAt, &o.UpdatedAt, &completedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var err error
	if o.TokenIn, err = solana.PublicKeyFromBase58(tokenIn); err != nil {
		return domain.Order{}, fmt.Errorf("corrupt token_in in store: %w", err)
	}
	if o.TokenOut, err = solana.PublicKeyFromBase58(tokenOut); err != nil {
		return domain.Order{}, fmt.Errorf("corrupt token_out in store: %w", err)
	}
	if o.AmountIn, err = decimal.NewFromString(amountIn); err != nil {
		return domain.Order{}, fmt.Errorf("corrupt amount_in in store: %w", err)
	}
	if slippageStr.Valid {
		if o.Slippage, err = decimal.NewFromString(slippageStr.String); err != nil {
			return domain.Order{}, fmt.Errorf("corrupt slippage in store: %w", err)
		}
	}
	if amountOut.Valid {
		if o.AmountOut, err = decimal.NewFromString(amountOut.String); err != nil {
			return domain.Order{}, fmt.Errorf("corrupt amount_out in store: %w", err)
		}
	}
	if executedPrice.Valid {
		if o.ExecutedPrice, err = decimal.NewFromString(executedPrice.String); err != nil {
			return domain.Order{}, fmt.Errorf("corrupt executed_price in store: %w", err)
		}
	}
	o.Venue = venue.String
	o.TxRef = txRef.String
	o.ErrorMessage = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		o.CompletedAt = &t
	}

	return o, nil
}
