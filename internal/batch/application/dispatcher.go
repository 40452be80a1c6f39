package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
)

// CalculationContext names the phase a calculation runs for.
type CalculationContext string

const (
	ContextBatchValuate CalculationContext = "BatchValuate"
	ContextBatchPayment CalculationContext = "BatchPayment"
)

// CalculationRequest is passed to a calculation implementation.
type CalculationRequest struct {
	Context     CalculationContext
	Plan        batch.PaymentPlan
	Window      *batch.Window
	AuditUserID int64
	LocationID  *int64
	StartDate   time.Time
	EndDate     time.Time
	// Tx is the unit of work of the enclosing run.
	Tx batch.Tx
}

// CalculationResult is an opaque outcome reported by a calculation.
type CalculationResult struct {
	Reference string
	Detail    string
}

// Calculation is a pluggable calculation rule.
type Calculation interface {
	CalculateIfActive(ctx context.Context, req CalculationRequest) ([]CalculationResult, error)
}

// CalculationResolver resolves calculation ids.
type CalculationResolver interface {
	Resolve(id string) (Calculation, bool)
}

// Registry maps calculation ids to implementations.
type Registry struct {
	mu    sync.RWMutex
	impls map[string]Calculation
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[string]Calculation)}
}

// Register binds id to calc, replacing any previous binding.
func (r *Registry) Register(id string, calc Calculation) {
	if r == nil || id == "" || calc == nil {
		return
	}
	r.mu.Lock()
	r.impls[id] = calc
	r.mu.Unlock()
}

// Resolve returns the calculation bound to id.
func (r *Registry) Resolve(id string) (Calculation, bool) {
	if r == nil || id == "" {
		return nil, false
	}
	r.mu.RLock()
	calc, ok := r.impls[id]
	r.mu.RUnlock()
	return calc, ok
}

// IDs lists registered calculation ids.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]string, 0, len(r.impls))
	for id := range r.impls {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Dispatcher invokes the calculation attached to a payment plan.
type Dispatcher struct {
	resolver CalculationResolver
	logger   *zap.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(resolver CalculationResolver, logger *zap.Logger) (*Dispatcher, error) {
	if resolver == nil {
		return nil, errors.New("calculation dispatcher: nil resolver")
	}
	return &Dispatcher{resolver: resolver, logger: logging.OrNop(logger)}, nil
}

// Dispatch runs the plan's calculation for req.Context. Plans whose
// calculation is not registered are skipped without error.
func (d *Dispatcher) Dispatch(ctx context.Context, req CalculationRequest) ([]CalculationResult, error) {
	calc, ok := d.resolver.Resolve(req.Plan.CalculationID)
	if !ok {
		d.logger.Debug("calculation not registered",
			zap.String("calculation_id", req.Plan.CalculationID),
			zap.Int64("plan_id", req.Plan.ID),
			zap.String("context", string(req.Context)),
		)
		metrics.IncCalculationDispatch(string(req.Context), "unregistered")
		return nil, nil
	}
	results, err := calc.CalculateIfActive(ctx, req)
	if err != nil {
		metrics.IncCalculationDispatch(string(req.Context), metrics.ResultError)
		return nil, fmt.Errorf("calculation %s (%s) for plan %d: %w", req.Plan.CalculationID, req.Context, req.Plan.ID, err)
	}
	metrics.IncCalculationDispatch(string(req.Context), metrics.ResultSuccess)
	if len(results) > 0 {
		d.logger.Debug("calculation processed",
			zap.String("calculation_id", req.Plan.CalculationID),
			zap.String("context", string(req.Context)),
			zap.String("reference", results[0].Reference),
			zap.Int("results", len(results)),
		)
	}
	return results, nil
}

// DispatchValuateAndPay runs BatchValuate and then BatchPayment for one
// (product, plan, window).
func (d *Dispatcher) DispatchValuateAndPay(ctx context.Context, req CalculationRequest) error {
	for _, calcCtx := range []CalculationContext{ContextBatchValuate, ContextBatchPayment} {
		req.Context = calcCtx
		if _, err := d.Dispatch(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
