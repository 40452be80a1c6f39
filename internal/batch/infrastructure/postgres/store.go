package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/eventing"
	"claim-batch/internal/observability/logging"
)

const uniqueViolation = "23505"

// EventRecorder appends events to the outbox through an open transaction.
type EventRecorder interface {
	Record(ctx context.Context, exec eventing.Execer, event any) error
}

// Store is the Postgres implementation of the batch store.
type Store struct {
	db       *sql.DB
	recorder EventRecorder
	clock    func() time.Time
	logger   *zap.Logger
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithRecorder sets the outbox recorder.
func WithRecorder(recorder EventRecorder) StoreOption {
	return func(s *Store) {
		s.recorder = recorder
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logging.OrNop(logger)
	}
}

// NewStore constructs a store.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx runs fn in a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx batch.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errors.New("batch store: nil db")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{tx: sqlTx, store: s}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// FindActiveRun looks up the active run for key outside a transaction.
func (s *Store) FindActiveRun(ctx context.Context, key batch.RunKey) (*batch.BatchRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("batch store: nil db")
	}
	return findActiveRun(ctx, s.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const findActiveRunQuery = `
SELECT id, location_id, run_year, run_month, run_date, audit_user_id, validity_from, validity_to
FROM batch_runs
WHERE run_year = $1 AND run_month = $2 AND COALESCE(location_id, -1) = $3 AND validity_to IS NULL
ORDER BY id DESC
LIMIT 1`

func findActiveRun(ctx context.Context, q queryer, key batch.RunKey) (*batch.BatchRun, error) {
	var (
		id           int64
		locationID   sql.NullInt64
		year, month  int
		runDate      time.Time
		auditUserID  int64
		validityFrom time.Time
		validityTo   sql.NullTime
	)
	row := q.QueryRowContext(ctx, findActiveRunQuery, key.Year, key.Month, key.LocationOrSentinel())
	if err := row.Scan(&id, &locationID, &year, &month, &runDate, &auditUserID, &validityFrom, &validityTo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active run: %w", err)
	}
	return batch.RestoreBatchRun(id, batch.NewRunKey(year, month, nullInt64(locationID)), runDate, auditUserID, validityFrom, nullTime(validityTo)), nil
}

type pgTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *pgTx) LockRunKey(ctx context.Context, key batch.RunKey) error {
	k1, k2 := key.LockKey()
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, k1, k2); err != nil {
		return fmt.Errorf("lock run key %s: %w", key, err)
	}
	return nil
}

func (t *pgTx) FindActiveRun(ctx context.Context, key batch.RunKey) (*batch.BatchRun, error) {
	return findActiveRun(ctx, t.tx, key)
}

func (t *pgTx) InsertBatchRun(ctx context.Context, run *batch.BatchRun) error {
	if run == nil {
		return errors.New("insert batch run: nil run")
	}
	key := run.Key()
	var id int64
	err := t.tx.QueryRowContext(ctx, `
INSERT INTO batch_runs (location_id, run_year, run_month, run_date, audit_user_id, validity_from)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		nullableID(key.LocationID), key.Year, key.Month, run.RunDate(), run.AuditUserID(), run.ValidityFrom(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return batch.NewAlreadyRun(key)
		}
		return fmt.Errorf("insert batch run: %w", err)
	}
	run.MarkPersisted(id)
	return nil
}

func (t *pgTx) ListProducts(ctx context.Context, locationID *int64, endDate time.Time) ([]batch.Product, error) {
	loc := batch.NoLocation
	if locationID != nil {
		loc = *locationID
	}
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, code, name, location_id, date_from, date_to, ceiling_interpretation, COALESCE(acc_code_remuneration, '')
FROM products
WHERE validity_to IS NULL
  AND COALESCE(location_id, -1) = $1
  AND date_from <= $2
  AND (date_to IS NULL OR date_to >= $2)
ORDER BY id`, loc, endDate)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []batch.Product
	for rows.Next() {
		var (
			p      batch.Product
			locID  sql.NullInt64
			dateTo sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &locID, &p.DateFrom, &dateTo, &p.CeilingInterpretation, &p.AccCodeRemuneration); err != nil {
			return nil, err
		}
		p.LocationID = nullInt64(locID)
		p.DateTo = nullTime(dateTo)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) ListPaymentPlans(ctx context.Context, productID int64, endDate time.Time) ([]batch.PaymentPlan, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, product_id, code, calculation_id, periodicity, date_valid_from, date_valid_to
FROM payment_plans
WHERE product_id = $1
  AND NOT is_deleted
  AND date_valid_from <= $2
  AND date_valid_to >= $2
ORDER BY id`, productID, endDate)
	if err != nil {
		return nil, fmt.Errorf("list payment plans: %w", err)
	}
	defer rows.Close()

	var out []batch.PaymentPlan
	for rows.Next() {
		var p batch.PaymentPlan
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Code, &p.CalculationID, &p.Periodicity, &p.DateValidFrom, &p.DateValidTo); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func detailTable(kind batch.DetailKind) string {
	if kind == batch.DetailService {
		return "claim_services"
	}
	return "claim_items"
}

func (t *pgTx) listWindowDetails(ctx context.Context, kind batch.DetailKind, productID int64, start, end time.Time) ([]batch.ClaimDetail, error) {
	query := fmt.Sprintf(`
SELECT d.id, d.claim_id, d.product_id, d.status, d.qty, d.price_asked, d.price_approved, d.price_adjusted, d.price_valuated
FROM %s d
JOIN claims c ON c.id = d.claim_id
WHERE d.validity_to IS NULL
  AND d.product_id = $1
  AND c.process_stamp::date BETWEEN $2 AND $3
ORDER BY d.id`, detailTable(kind))

	rows, err := t.tx.QueryContext(ctx, query, productID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list window %ss: %w", kind, err)
	}
	defer rows.Close()

	var out []batch.ClaimDetail
	for rows.Next() {
		d := batch.ClaimDetail{Kind: kind}
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.ProductID, &d.Status, &d.Qty, &d.PriceAsked, &d.PriceApproved, &d.PriceAdjusted, &d.PriceValuated); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *pgTx) ListWindowItems(ctx context.Context, productID int64, start, end time.Time) ([]batch.ClaimDetail, error) {
	return t.listWindowDetails(ctx, batch.DetailItem, productID, start, end)
}

func (t *pgTx) ListWindowServices(ctx context.Context, productID int64, start, end time.Time) ([]batch.ClaimDetail, error) {
	return t.listWindowDetails(ctx, batch.DetailService, productID, start, end)
}

func (t *pgTx) ListWindowClaims(ctx context.Context, productID int64, start, end time.Time) ([]batch.Claim, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT c.id, c.code, c.status, c.health_facility_id, hf.level, c.process_stamp, c.validity_from,
       c.date_from, c.date_to, c.adjustment, c.remunerated, c.batch_run_id
FROM claims c
JOIN health_facilities hf ON hf.id = c.health_facility_id
WHERE c.validity_to IS NULL
  AND c.validity_from::date BETWEEN $2 AND $3
  AND c.process_stamp::date <= $3
  AND (
    EXISTS (SELECT 1 FROM claim_items ci WHERE ci.claim_id = c.id AND ci.product_id = $1 AND ci.validity_to IS NULL)
    OR EXISTS (SELECT 1 FROM claim_services cs WHERE cs.claim_id = c.id AND cs.product_id = $1 AND cs.validity_to IS NULL)
  )
ORDER BY c.id`, productID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list window claims: %w", err)
	}
	defer rows.Close()

	var out []batch.Claim
	for rows.Next() {
		var (
			c          batch.Claim
			dateTo     sql.NullTime
			batchRunID sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.Status, &c.HealthFacilityID, &c.FacilityLevel, &c.ProcessStamp, &c.ValidityFrom,
			&c.DateFrom, &dateTo, &c.Adjustment, &c.Remunerated, &batchRunID); err != nil {
			return nil, err
		}
		c.DateTo = nullTime(dateTo)
		c.BatchRunID = nullInt64(batchRunID)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) ListWindowPremiums(ctx context.Context, productID int64, start, end time.Time) ([]batch.Premium, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT pr.id, pr.amount, p.id, p.product_id, p.effective_date, p.expiry_date
FROM premiums pr
JOIN policies p ON p.id = pr.policy_id
WHERE pr.validity_to IS NULL
  AND p.product_id = $1
  AND p.effective_date <= $3
  AND p.expiry_date >= $2
ORDER BY pr.id`, productID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list window premiums: %w", err)
	}
	defer rows.Close()

	var out []batch.Premium
	for rows.Next() {
		var p batch.Premium
		if err := rows.Scan(&p.ID, &p.Amount, &p.Policy.ID, &p.Policy.ProductID, &p.Policy.EffectiveDate, &p.Policy.ExpiryDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) SetValuatedPrice(ctx context.Context, kind batch.DetailKind, detailID int64, price decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE %s SET price_valuated = $1 WHERE id = $2`, detailTable(kind))
	res, err := t.tx.ExecContext(ctx, query, price, detailID)
	if err != nil {
		return fmt.Errorf("set valuated price %s %d: %w", kind, detailID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return batch.NewDataError("claim %s %d not found", kind, detailID)
	}
	return nil
}

var finalizeQuery = fmt.Sprintf(`
UPDATE claims c
SET status = %[1]d,
    batch_run_id = $1,
    remunerated = COALESCE((
        SELECT SUM(ci.price_valuated) FROM claim_items ci
        WHERE ci.claim_id = c.id AND ci.validity_to IS NULL AND ci.legacy_id IS NULL), 0)
      + COALESCE((
        SELECT SUM(cs.price_valuated) FROM claim_services cs
        WHERE cs.claim_id = c.id AND cs.validity_to IS NULL AND cs.legacy_id IS NULL), 0)
      + COALESCE(c.adjustment, 0)
WHERE c.id = ANY($2::bigint[])
  AND c.validity_to IS NULL
  AND c.status NOT IN (%[1]d, %[2]d)
  AND NOT EXISTS (
    SELECT 1 FROM claim_items ci
    WHERE ci.claim_id = c.id AND ci.validity_to IS NULL AND ci.legacy_id IS NULL
      AND ci.status <> %[3]d AND ci.price_valuated IS NULL)
  AND NOT EXISTS (
    SELECT 1 FROM claim_services cs
    WHERE cs.claim_id = c.id AND cs.validity_to IS NULL AND cs.legacy_id IS NULL
      AND cs.status <> %[3]d AND cs.price_valuated IS NULL)
RETURNING c.id`, batch.ClaimStatusValuated, batch.ClaimStatusRejected, batch.DetailStatusRejected)

func (t *pgTx) FinalizeValuatedClaims(ctx context.Context, runID int64, claimIDs []int64) ([]int64, error) {
	if len(claimIDs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.QueryContext(ctx, finalizeQuery, runID, claimIDs)
	if err != nil {
		return nil, fmt.Errorf("finalize valuated claims: %w", err)
	}
	defer rows.Close()

	var updated []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}
	return updated, rows.Err()
}

func (t *pgTx) GetLocation(ctx context.Context, id int64) (*batch.Location, error) {
	var (
		loc    batch.Location
		parent sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT id, code, name, type, parent_id
FROM locations
WHERE id = $1`, id).Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &parent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get location %d: %w", id, err)
	}
	loc.ParentID = nullInt64(parent)
	return &loc, nil
}

var capitationProductsQuery = fmt.Sprintf(`
SELECT DISTINCT d.product_id
FROM (
    SELECT claim_id, product_id, status, validity_to FROM claim_items
    UNION ALL
    SELECT claim_id, product_id, status, validity_to FROM claim_services
) d
JOIN claims c ON c.id = d.claim_id
JOIN products p ON p.id = d.product_id
WHERE d.validity_to IS NULL
  AND d.status = %d
  AND c.validity_to IS NULL
  AND c.status = %d
  AND COALESCE(p.location_id, -1) = $1
ORDER BY d.product_id`, batch.DetailStatusPassed, batch.ClaimStatusValuated)

func (t *pgTx) ListCapitationProducts(ctx context.Context, locationID *int64) ([]int64, error) {
	loc := batch.NoLocation
	if locationID != nil {
		loc = *locationID
	}
	rows, err := t.tx.QueryContext(ctx, capitationProductsQuery, loc)
	if err != nil {
		return nil, fmt.Errorf("list capitation products: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *pgTx) Capitation() batch.CapitationData {
	return &capitationData{tx: t}
}

func (t *pgTx) RecordEvent(ctx context.Context, event any) error {
	if t.store.recorder == nil {
		return nil
	}
	return t.store.recorder.Record(ctx, t.tx, event)
}

// capitationData checks and requests rows of capitation_payments.
type capitationData struct {
	tx *pgTx
}

func (c *capitationData) Exists(ctx context.Context, key batch.CapitationKey) (bool, error) {
	var exists bool
	err := c.tx.tx.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM capitation_payments
    WHERE COALESCE(region_id, -1) = $1
      AND COALESCE(district_id, -1) = $2
      AND product_id = $3
      AND year = $4
      AND month = $5
)`, idOrSentinel(key.RegionID), idOrSentinel(key.DistrictID), key.ProductID, key.Year, key.Month).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("capitation exists: %w", err)
	}
	return exists, nil
}

func (c *capitationData) Generate(ctx context.Context, key batch.CapitationKey) error {
	now := c.tx.store.clock()
	_, err := c.tx.tx.ExecContext(ctx, `
INSERT INTO capitation_payments (region_id, district_id, product_id, year, month, status, requested_at)
VALUES ($1, $2, $3, $4, $5, 'requested', $6)
ON CONFLICT DO NOTHING`, nullableID(key.RegionID), nullableID(key.DistrictID), key.ProductID, key.Year, key.Month, now)
	if err != nil {
		return fmt.Errorf("capitation generate: %w", err)
	}
	return c.tx.RecordEvent(ctx, batch.CapitationRequested{
		RegionID:   key.RegionID,
		DistrictID: key.DistrictID,
		ProductID:  key.ProductID,
		Year:       key.Year,
		Month:      key.Month,
		OccurredAt: now,
	})
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func idOrSentinel(id *int64) int64 {
	if id == nil {
		return batch.NoLocation
	}
	return *id
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
