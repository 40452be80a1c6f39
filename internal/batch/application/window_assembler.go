package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	batch "claim-batch/internal/batch/domain"
)

// RunContext carries per-run state through the call chain. It is created
// for one run and dropped when the run ends.
type RunContext struct {
	Run         *batch.BatchRun
	EndDate     time.Time
	AuditUserID int64
	LocationID  *int64

	allocated map[string]decimal.Decimal
	touched   map[int64]struct{}
}

// NewRunContext constructs an empty run context.
func NewRunContext(run *batch.BatchRun, endDate time.Time) *RunContext {
	rc := &RunContext{
		Run:       run,
		EndDate:   endDate,
		allocated: make(map[string]decimal.Decimal),
		touched:   make(map[int64]struct{}),
	}
	if run != nil {
		rc.AuditUserID = run.AuditUserID()
		rc.LocationID = run.Key().LocationID
	}
	return rc
}

// Allocations are cached per product and start date calendar value.
func allocationKey(productID int64, start time.Time) string {
	return fmt.Sprintf("%d|%s", productID, batch.DateKey(start))
}

func (rc *RunContext) cachedAllocation(productID int64, start time.Time) (decimal.Decimal, bool) {
	value, ok := rc.allocated[allocationKey(productID, start)]
	return value, ok
}

func (rc *RunContext) storeAllocation(productID int64, start time.Time, value decimal.Decimal) {
	rc.allocated[allocationKey(productID, start)] = value
}

// Touch records claims seen by a window.
func (rc *RunContext) Touch(claimIDs ...int64) {
	for _, id := range claimIDs {
		rc.touched[id] = struct{}{}
	}
}

// TouchedClaims returns the claim ids seen during the run.
func (rc *RunContext) TouchedClaims() []int64 {
	ids := make([]int64, 0, len(rc.touched))
	for id := range rc.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WindowAssembler gathers the data slice of a settlement window.
type WindowAssembler struct{}

// NewWindowAssembler constructs an assembler.
func NewWindowAssembler() *WindowAssembler {
	return &WindowAssembler{}
}

// Assemble loads items, services, contributions and claims for product in
// [start, end] and attaches the allocated contribution for start.
func (a *WindowAssembler) Assemble(ctx context.Context, tx batch.Tx, rc *RunContext, product batch.Product, start, end time.Time) (*batch.Window, error) {
	if tx == nil {
		return nil, fmt.Errorf("window assembler: nil tx")
	}
	if rc == nil {
		return nil, fmt.Errorf("window assembler: nil run context")
	}
	items, err := tx.ListWindowItems(ctx, product.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window items: %w", err)
	}
	services, err := tx.ListWindowServices(ctx, product.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window services: %w", err)
	}
	premiums, err := tx.ListWindowPremiums(ctx, product.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window contributions: %w", err)
	}
	claims, err := tx.ListWindowClaims(ctx, product.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window claims: %w", err)
	}

	allocated, ok := rc.cachedAllocation(product.ID, start)
	if !ok {
		allocated, err = batch.AllocatedContribution(premiums, start, end)
		if err != nil {
			return nil, err
		}
		rc.storeAllocation(product.ID, start, allocated)
	}

	return &batch.Window{
		Product:               product,
		StartDate:             start,
		EndDate:               end,
		Items:                 items,
		Services:              services,
		Contributions:         premiums,
		Claims:                claims,
		AllocatedContribution: allocated,
	}, nil
}
