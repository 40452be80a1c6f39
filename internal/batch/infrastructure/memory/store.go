package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	batch "claim-batch/internal/batch/domain"
)

// ClaimRecord is a stored claim with its validity.
type ClaimRecord struct {
	batch.Claim
	ValidityTo *time.Time
}

// DetailRecord is a stored claim item or service.
type DetailRecord struct {
	batch.ClaimDetail
	ValidityTo *time.Time
	LegacyID   *int64
}

// PremiumRecord is a stored contribution.
type PremiumRecord struct {
	batch.Premium
	ValidityTo *time.Time
}

type state struct {
	nextRunID          int64
	runs               []*batch.BatchRun
	products           []batch.Product
	plans              []batch.PaymentPlan
	claims             map[int64]*ClaimRecord
	items              map[int64]*DetailRecord
	services           map[int64]*DetailRecord
	premiums           []PremiumRecord
	locations          map[int64]batch.Location
	capitationExisting map[string]bool
	capitationCreated  []batch.CapitationKey
	events             []any
}

func newState() *state {
	return &state{
		claims:             make(map[int64]*ClaimRecord),
		items:              make(map[int64]*DetailRecord),
		services:           make(map[int64]*DetailRecord),
		locations:          make(map[int64]batch.Location),
		capitationExisting: make(map[string]bool),
	}
}

func (s *state) clone() *state {
	cp := newState()
	cp.nextRunID = s.nextRunID
	for _, run := range s.runs {
		cp.runs = append(cp.runs, run.Clone())
	}
	cp.products = append(cp.products, s.products...)
	cp.plans = append(cp.plans, s.plans...)
	for id, c := range s.claims {
		rec := *c
		cp.claims[id] = &rec
	}
	for id, d := range s.items {
		rec := *d
		cp.items[id] = &rec
	}
	for id, d := range s.services {
		rec := *d
		cp.services[id] = &rec
	}
	cp.premiums = append(cp.premiums, s.premiums...)
	for id, loc := range s.locations {
		cp.locations[id] = loc
	}
	for key, v := range s.capitationExisting {
		cp.capitationExisting[key] = v
	}
	cp.capitationCreated = append(cp.capitationCreated, s.capitationCreated...)
	cp.events = append(cp.events, s.events...)
	return cp
}

// Store is an in-memory batch store. Transactions are serialized and work on
// a snapshot that replaces the state only when fn succeeds.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a snapshot and commits it on success.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx batch.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{st: snapshot}); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

// FindActiveRun looks up the committed active run for key.
func (s *Store) FindActiveRun(ctx context.Context, key batch.RunKey) (*batch.BatchRun, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findActive(s.st, key), nil
}

func (s *Store) update(fn func(st *state)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	fn(s.st)
	s.mu.Unlock()
}

// AddProduct seeds a product.
func (s *Store) AddProduct(p batch.Product) {
	s.update(func(st *state) { st.products = append(st.products, p) })
}

// AddPaymentPlan seeds a payment plan.
func (s *Store) AddPaymentPlan(p batch.PaymentPlan) {
	s.update(func(st *state) { st.plans = append(st.plans, p) })
}

// AddClaim seeds a claim.
func (s *Store) AddClaim(c ClaimRecord) {
	s.update(func(st *state) { st.claims[c.ID] = &c })
}

// AddDetail seeds an item or service depending on its kind.
func (s *Store) AddDetail(d DetailRecord) {
	s.update(func(st *state) {
		if d.Kind == batch.DetailService {
			st.services[d.ID] = &d
			return
		}
		d.Kind = batch.DetailItem
		st.items[d.ID] = &d
	})
}

// AddPremium seeds a contribution.
func (s *Store) AddPremium(p PremiumRecord) {
	s.update(func(st *state) { st.premiums = append(st.premiums, p) })
}

// AddLocation seeds a location.
func (s *Store) AddLocation(l batch.Location) {
	s.update(func(st *state) { st.locations[l.ID] = l })
}

// MarkCapitationExisting records capitation data as already available.
func (s *Store) MarkCapitationExisting(key batch.CapitationKey) {
	s.update(func(st *state) { st.capitationExisting[capitationKey(key)] = true })
}

// Runs returns all committed runs.
func (s *Store) Runs() []*batch.BatchRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*batch.BatchRun, 0, len(s.st.runs))
	for _, run := range s.st.runs {
		out = append(out, run.Clone())
	}
	return out
}

// Claim returns a committed claim.
func (s *Store) Claim(id int64) (ClaimRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.claims[id]
	if !ok {
		return ClaimRecord{}, false
	}
	return *c, true
}

// Detail returns a committed item or service.
func (s *Store) Detail(kind batch.DetailKind, id int64) (DetailRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table := s.st.items
	if kind == batch.DetailService {
		table = s.st.services
	}
	d, ok := table[id]
	if !ok {
		return DetailRecord{}, false
	}
	return *d, true
}

// Events returns committed outbox events.
func (s *Store) Events() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]any(nil), s.st.events...)
}

// GeneratedCapitation returns capitation keys generated by committed runs.
func (s *Store) GeneratedCapitation() []batch.CapitationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]batch.CapitationKey(nil), s.st.capitationCreated...)
}

func findActive(st *state, key batch.RunKey) *batch.BatchRun {
	want := key.LocationOrSentinel()
	for _, run := range st.runs {
		k := run.Key()
		if run.Active() && k.Year == key.Year && k.Month == key.Month && k.LocationOrSentinel() == want {
			return run.Clone()
		}
	}
	return nil
}

func capitationKey(key batch.CapitationKey) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d", optID(key.RegionID), optID(key.DistrictID), key.ProductID, key.Year, key.Month)
}

func optID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func between(t, start, end time.Time) bool {
	d := day(t)
	return !d.Before(day(start)) && !d.After(day(end))
}

type memTx struct {
	st *state
}

func (tx *memTx) LockRunKey(ctx context.Context, key batch.RunKey) error {
	return nil
}

func (tx *memTx) FindActiveRun(ctx context.Context, key batch.RunKey) (*batch.BatchRun, error) {
	return findActive(tx.st, key), nil
}

func (tx *memTx) InsertBatchRun(ctx context.Context, run *batch.BatchRun) error {
	if run == nil {
		return fmt.Errorf("insert batch run: nil run")
	}
	if findActive(tx.st, run.Key()) != nil {
		return batch.NewAlreadyRun(run.Key())
	}
	tx.st.nextRunID++
	run.MarkPersisted(tx.st.nextRunID)
	tx.st.runs = append(tx.st.runs, run.Clone())
	return nil
}

func (tx *memTx) ListProducts(ctx context.Context, locationID *int64, endDate time.Time) ([]batch.Product, error) {
	want := batch.NoLocation
	if locationID != nil {
		want = *locationID
	}
	var out []batch.Product
	for _, p := range tx.st.products {
		loc := batch.NoLocation
		if p.LocationID != nil {
			loc = *p.LocationID
		}
		if loc != want {
			continue
		}
		if day(p.DateFrom).After(day(endDate)) {
			continue
		}
		if p.DateTo != nil && day(*p.DateTo).Before(day(endDate)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) ListPaymentPlans(ctx context.Context, productID int64, endDate time.Time) ([]batch.PaymentPlan, error) {
	var out []batch.PaymentPlan
	for _, p := range tx.st.plans {
		if p.ProductID != productID {
			continue
		}
		if day(p.DateValidFrom).After(day(endDate)) || day(p.DateValidTo).Before(day(endDate)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) windowDetails(table map[int64]*DetailRecord, productID int64, start, end time.Time) []batch.ClaimDetail {
	var out []batch.ClaimDetail
	for _, d := range table {
		if d.ValidityTo != nil || d.ProductID != productID {
			continue
		}
		claim, ok := tx.st.claims[d.ClaimID]
		if !ok || !between(claim.ProcessStamp, start, end) {
			continue
		}
		out = append(out, d.ClaimDetail)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (tx *memTx) ListWindowItems(ctx context.Context, productID int64, start, end time.Time) ([]batch.ClaimDetail, error) {
	return tx.windowDetails(tx.st.items, productID, start, end), nil
}

func (tx *memTx) ListWindowServices(ctx context.Context, productID int64, start, end time.Time) ([]batch.ClaimDetail, error) {
	return tx.windowDetails(tx.st.services, productID, start, end), nil
}

func (tx *memTx) hasDetailOf(claimID, productID int64) bool {
	for _, table := range []map[int64]*DetailRecord{tx.st.items, tx.st.services} {
		for _, d := range table {
			if d.ClaimID == claimID && d.ProductID == productID && d.ValidityTo == nil {
				return true
			}
		}
	}
	return false
}

func (tx *memTx) ListWindowClaims(ctx context.Context, productID int64, start, end time.Time) ([]batch.Claim, error) {
	var out []batch.Claim
	for _, c := range tx.st.claims {
		if c.ValidityTo != nil || !between(c.ValidityFrom, start, end) {
			continue
		}
		if day(c.ProcessStamp).After(day(end)) {
			continue
		}
		if !tx.hasDetailOf(c.ID, productID) {
			continue
		}
		out = append(out, c.Claim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) ListWindowPremiums(ctx context.Context, productID int64, start, end time.Time) ([]batch.Premium, error) {
	var out []batch.Premium
	for _, p := range tx.st.premiums {
		if p.ValidityTo != nil || p.Policy.ProductID != productID {
			continue
		}
		if day(p.Policy.EffectiveDate).After(day(end)) || day(p.Policy.ExpiryDate).Before(day(start)) {
			continue
		}
		out = append(out, p.Premium)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) SetValuatedPrice(ctx context.Context, kind batch.DetailKind, detailID int64, price decimal.Decimal) error {
	table := tx.st.items
	if kind == batch.DetailService {
		table = tx.st.services
	}
	d, ok := table[detailID]
	if !ok {
		return batch.NewDataError("claim %s %d not found", kind, detailID)
	}
	d.PriceValuated = decimal.NewNullDecimal(price)
	return nil
}

func (tx *memTx) FinalizeValuatedClaims(ctx context.Context, runID int64, claimIDs []int64) ([]int64, error) {
	var updated []int64
	for _, id := range claimIDs {
		claim, ok := tx.st.claims[id]
		if !ok || claim.ValidityTo != nil {
			continue
		}
		if claim.Status == batch.ClaimStatusValuated || claim.Status == batch.ClaimStatusRejected {
			continue
		}
		itemSum, itemsOK := valuatedSum(tx.st.items, id)
		serviceSum, servicesOK := valuatedSum(tx.st.services, id)
		if !itemsOK || !servicesOK {
			continue
		}
		total := itemSum.Add(serviceSum)
		if claim.Adjustment.Valid {
			total = total.Add(claim.Adjustment.Decimal)
		}
		run := runID
		claim.Status = batch.ClaimStatusValuated
		claim.BatchRunID = &run
		claim.Remunerated = decimal.NewNullDecimal(total)
		updated = append(updated, id)
	}
	return updated, nil
}

// valuatedSum sums price_valuated over the claim's current lines; ok is false
// when a non-rejected line is not valuated yet.
func valuatedSum(table map[int64]*DetailRecord, claimID int64) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, d := range table {
		if d.ClaimID != claimID || d.ValidityTo != nil || d.LegacyID != nil {
			continue
		}
		if d.Status != batch.DetailStatusRejected && !d.PriceValuated.Valid {
			return decimal.Zero, false
		}
		if d.PriceValuated.Valid {
			sum = sum.Add(d.PriceValuated.Decimal)
		}
	}
	return sum, true
}

func (tx *memTx) GetLocation(ctx context.Context, id int64) (*batch.Location, error) {
	loc, ok := tx.st.locations[id]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (tx *memTx) ListCapitationProducts(ctx context.Context, locationID *int64) ([]int64, error) {
	want := batch.NoLocation
	if locationID != nil {
		want = *locationID
	}
	productLocation := make(map[int64]int64, len(tx.st.products))
	for _, p := range tx.st.products {
		loc := batch.NoLocation
		if p.LocationID != nil {
			loc = *p.LocationID
		}
		productLocation[p.ID] = loc
	}
	seen := make(map[int64]struct{})
	for _, table := range []map[int64]*DetailRecord{tx.st.items, tx.st.services} {
		for _, d := range table {
			if d.ValidityTo != nil || d.Status != batch.DetailStatusPassed {
				continue
			}
			claim, ok := tx.st.claims[d.ClaimID]
			if !ok || claim.ValidityTo != nil || claim.Status != batch.ClaimStatusValuated {
				continue
			}
			loc, ok := productLocation[d.ProductID]
			if !ok || loc != want {
				continue
			}
			seen[d.ProductID] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (tx *memTx) Capitation() batch.CapitationData {
	return memCapitation{st: tx.st}
}

func (tx *memTx) RecordEvent(ctx context.Context, event any) error {
	if event == nil {
		return fmt.Errorf("record event: nil event")
	}
	tx.st.events = append(tx.st.events, event)
	return nil
}

type memCapitation struct {
	st *state
}

func (c memCapitation) Exists(ctx context.Context, key batch.CapitationKey) (bool, error) {
	return c.st.capitationExisting[capitationKey(key)], nil
}

func (c memCapitation) Generate(ctx context.Context, key batch.CapitationKey) error {
	c.st.capitationExisting[capitationKey(key)] = true
	c.st.capitationCreated = append(c.st.capitationCreated, key)
	return nil
}
