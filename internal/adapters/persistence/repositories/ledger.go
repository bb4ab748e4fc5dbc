package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chamahub/internal/core/domain"
)

// Ledger owns the database handle and the transaction boundary. Engine
// operations receive the open *gorm.DB as their first parameter and never
// open or close it themselves; WithTx is the only place a transaction
// begins or ends.
//
// Lock order inside a transaction is fixed: chama → member → loan →
// installment. Every repository helper that takes a row lock is named
// *ForUpdate and must be called in that order.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger over an open gorm handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// DB exposes the raw handle for read-only queries outside a transaction.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// WithTx runs fn inside a single transaction carrying ctx's deadline.
// Any error rolls back every effect; the returned error is mapped to a
// domain kind.
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := l.db.WithContext(ctx).Transaction(fn)
	return MapError(err)
}

// MapError translates store-level failures into domain error kinds.
// Domain errors pass through untouched so engine guards survive the
// transaction wrapper.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %v", domain.ErrIntegrityViolation, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
}

// IsNotFound reports whether err is a missing-row error, mapped or raw.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, domain.ErrNotFound)
}

func isDomainError(err error) bool {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrForbidden,
		domain.ErrIllegalTransition,
		domain.ErrIntegrityViolation,
		domain.ErrInsufficientFunds,
		domain.ErrConflict,
		domain.ErrUnavailable,
		domain.ErrInvalidInput,
		domain.ErrInvalidCredentials,
		domain.ErrUserAlreadyExists,
		domain.ErrTokenExpired,
		domain.ErrTokenInvalid,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support it.
// The sqlite test database is single-writer, so the clause is skipped there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
