package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RunCommand requests a batch run.
type RunCommand struct {
	AuditUserID int64
	LocationID  *int64
	Month       int
	Year        int
}

// Key returns the run identity key for the command.
func (c RunCommand) Key() batch.RunKey {
	return batch.NewRunKey(c.Year, c.Month, c.LocationID)
}

// RunSummary reports what a committed run did.
type RunSummary struct {
	Run               *batch.BatchRun
	Products          int
	PlansProcessed    int
	ClaimsValuated    []int64
	CapitationCreated int
}

// BatchRunService sequences a batch run inside one unit of work.
type BatchRunService struct {
	store      batch.Store
	assembler  *WindowAssembler
	dispatcher *Dispatcher
	capitation *CapitationTrigger
	clock      Clock
	logger     *zap.Logger
}

// Option configures a BatchRunService.
type Option func(*BatchRunService)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *BatchRunService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *BatchRunService) {
		s.logger = logging.OrNop(logger)
	}
}

// WithCapitationTrigger overrides the capitation trigger.
func WithCapitationTrigger(trigger *CapitationTrigger) Option {
	return func(s *BatchRunService) {
		if trigger != nil {
			s.capitation = trigger
		}
	}
}

// NewBatchRunService constructs the orchestrator.
func NewBatchRunService(store batch.Store, dispatcher *Dispatcher, opts ...Option) (*BatchRunService, error) {
	if store == nil {
		return nil, errors.New("batch run service: nil store")
	}
	if dispatcher == nil {
		return nil, errors.New("batch run service: nil dispatcher")
	}
	s := &BatchRunService{
		store:      store,
		assembler:  NewWindowAssembler(),
		dispatcher: dispatcher,
		clock:      SystemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capitation == nil {
		s.capitation = NewCapitationTrigger(s.logger)
	}
	return s, nil
}

// AlreadyExecuted reports whether an active run exists for key.
func (s *BatchRunService) AlreadyExecuted(ctx context.Context, key batch.RunKey) (bool, error) {
	run, err := s.store.FindActiveRun(ctx, key)
	if err != nil {
		return false, err
	}
	return run != nil, nil
}

// Run executes a batch run. It returns an AlreadyRun error when the key was
// processed before and a ProcessingError, wrapping the cause, for any other
// failure. Failed runs leave no trace.
func (s *BatchRunService) Run(ctx context.Context, cmd RunCommand) (*RunSummary, error) {
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBatchRun(result, time.Since(start))
	}()

	key := cmd.Key()
	if err := key.Validate(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	log := s.logger.With(
		zap.Int("year", key.Year),
		zap.Int("month", key.Month),
		zap.Int64("location_id", key.LocationOrSentinel()),
		zap.Int64("audit_user_id", cmd.AuditUserID),
	)

	var summary *RunSummary
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx batch.Tx) error {
		var err error
		summary, err = s.runInTx(ctx, tx, key, cmd.AuditUserID, log)
		return err
	})
	if err != nil {
		summary = nil
		if errors.Is(err, batch.ErrAlreadyRun) {
			result = metrics.ResultAlreadyRun
			log.Info("batch already run")
			return nil, err
		}
		result = metrics.ResultError
		log.Warn("batch run failed", zap.Error(err))
		if errors.Is(err, batch.ErrProcessing) {
			return nil, err
		}
		return nil, batch.NewProcessingError(err)
	}

	metrics.AddClaimsValuated(len(summary.ClaimsValuated))
	log.Info("batch run completed",
		zap.Int64("run_id", summary.Run.ID()),
		zap.Int("products", summary.Products),
		zap.Int("plans", summary.PlansProcessed),
		zap.Int("claims_valuated", len(summary.ClaimsValuated)),
		zap.Int("capitation_generated", summary.CapitationCreated),
	)
	return summary, nil
}

func (s *BatchRunService) runInTx(ctx context.Context, tx batch.Tx, key batch.RunKey, auditUserID int64, log *zap.Logger) (*RunSummary, error) {
	if err := tx.LockRunKey(ctx, key); err != nil {
		return nil, err
	}
	existing, err := tx.FindActiveRun(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, batch.NewAlreadyRun(key)
	}

	endDate := key.EndDate()
	run, err := batch.NewBatchRun(key, auditUserID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.InsertBatchRun(ctx, run); err != nil {
		return nil, err
	}
	log.Debug("batch run created", zap.Int64("run_id", run.ID()))

	rc := NewRunContext(run, endDate)
	summary := &RunSummary{Run: run}

	products, err := tx.ListProducts(ctx, key.LocationID, endDate)
	if err != nil {
		return nil, err
	}
	summary.Products = len(products)
	if len(products) == 0 {
		log.Info("no product found for batch run")
	}

	for _, product := range products {
		plans, err := tx.ListPaymentPlans(ctx, product.ID, endDate)
		if err != nil {
			return nil, err
		}
		for _, plan := range plans {
			startDate, ok := batch.ResolveStart(endDate, plan.Periodicity)
			if !ok {
				continue
			}
			window, err := s.assembler.Assemble(ctx, tx, rc, product, startDate, endDate)
			if err != nil {
				return nil, err
			}
			rc.Touch(window.ClaimIDs()...)
			err = s.dispatcher.DispatchValuateAndPay(ctx, CalculationRequest{
				Plan:        plan,
				Window:      window,
				AuditUserID: auditUserID,
				LocationID:  key.LocationID,
				StartDate:   startDate,
				EndDate:     endDate,
				Tx:          tx,
			})
			if err != nil {
				return nil, err
			}
			summary.PlansProcessed++
		}
	}

	valuated, err := tx.FinalizeValuatedClaims(ctx, run.ID(), rc.TouchedClaims())
	if err != nil {
		return nil, err
	}
	summary.ClaimsValuated = valuated

	generated, err := s.capitation.Trigger(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	summary.CapitationCreated = generated

	if err := tx.RecordEvent(ctx, batch.BatchRunCompleted{
		RunID:          run.ID(),
		LocationID:     key.LocationID,
		Year:           key.Year,
		Month:          key.Month,
		AuditUserID:    auditUserID,
		Products:       summary.Products,
		PlansProcessed: summary.PlansProcessed,
		ClaimsValuated: len(valuated),
		OccurredAt:     s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	return summary, nil
}
