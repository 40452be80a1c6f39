package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store opens units of work over the claims datastore.
type Store interface {
	// WithinTx runs fn in one transaction. A non-nil error from fn rolls back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// FindActiveRun looks up the active run for key outside of a run.
	FindActiveRun(ctx context.Context, key RunKey) (*BatchRun, error)
}

// Tx is the transactional view used by a batch run.
type Tx interface {
	// LockRunKey serializes concurrent runs of the same key until commit.
	LockRunKey(ctx context.Context, key RunKey) error
	FindActiveRun(ctx context.Context, key RunKey) (*BatchRun, error)
	// InsertBatchRun persists run; it returns an AlreadyRun error when an
	// active run for the same key exists.
	InsertBatchRun(ctx context.Context, run *BatchRun) error

	ListProducts(ctx context.Context, locationID *int64, endDate time.Time) ([]Product, error)
	ListPaymentPlans(ctx context.Context, productID int64, endDate time.Time) ([]PaymentPlan, error)

	ListWindowItems(ctx context.Context, productID int64, start, end time.Time) ([]ClaimDetail, error)
	ListWindowServices(ctx context.Context, productID int64, start, end time.Time) ([]ClaimDetail, error)
	ListWindowClaims(ctx context.Context, productID int64, start, end time.Time) ([]Claim, error)
	ListWindowPremiums(ctx context.Context, productID int64, start, end time.Time) ([]Premium, error)

	// SetValuatedPrice records a calculated price on an item or service.
	SetValuatedPrice(ctx context.Context, kind DetailKind, detailID int64, price decimal.Decimal) error
	// FinalizeValuatedClaims moves fully valuated claims among claimIDs to
	// VALUATED and returns the ids it updated.
	FinalizeValuatedClaims(ctx context.Context, runID int64, claimIDs []int64) ([]int64, error)

	GetLocation(ctx context.Context, id int64) (*Location, error)
	ListCapitationProducts(ctx context.Context, locationID *int64) ([]int64, error)
	Capitation() CapitationData

	// RecordEvent appends event to the transactional outbox.
	RecordEvent(ctx context.Context, event any) error
}

// CapitationData is the downstream capitation report data service.
type CapitationData interface {
	Exists(ctx context.Context, key CapitationKey) (bool, error)
	Generate(ctx context.Context, key CapitationKey) error
}
