// Package repository implements the booking store on PostgreSQL.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

const uniqueViolation = "23505"

var tracer = otel.Tracer("bookable/repository")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// helper runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of service.Store.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ service.Store = (*Store)(nil)

// NewStore constructs a Store.
func NewStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// InTx runs fn inside a transaction.
//
// Concurrent bookings of one item are serialized by the row lock that
// GetItemForUpdate takes with SELECT … FOR UPDATE: a second transaction
// blocks on the same SELECT until the first commits or rolls back, so the
// capacity and overlap checks always see every committed booking.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Tx) error) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.tx")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved, even if ctx was cancelled.
	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = fn(&txStore{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements service.Tx on an open pgx transaction.
type txStore struct {
	q pgx.Tx
}

var _ service.Tx = (*txStore)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFoundOr maps pgx.ErrNoRows to apperr.ErrNotFound for the named entity.
func notFoundOr(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s %v not found", entity, id)
	}
	return fmt.Errorf("get %s: %w", entity, err)
}
