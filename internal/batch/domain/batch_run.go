package domain

import (
	"fmt"
	"time"
)

// NoLocation is the sentinel used when comparing run keys without a location.
const NoLocation int64 = -1

// RunKey addresses a batch run: (location | none, year, month).
type RunKey struct {
	Year       int
	Month      int
	LocationID *int64
}

// NewRunKey builds a key, mapping a -1 location to "no location".
func NewRunKey(year, month int, locationID *int64) RunKey {
	if locationID != nil && *locationID == NoLocation {
		locationID = nil
	}
	return RunKey{Year: year, Month: month, LocationID: locationID}
}

// Validate checks year and month ranges.
func (k RunKey) Validate() error {
	if k.Year < 1900 || k.Year > 9999 {
		return NewInvalidCommand("year %d out of range", k.Year)
	}
	if k.Month < 1 || k.Month > 12 {
		return NewInvalidCommand("month %d out of range", k.Month)
	}
	return nil
}

// LocationOrSentinel returns the location id or NoLocation.
func (k RunKey) LocationOrSentinel() int64 {
	if k.LocationID == nil {
		return NoLocation
	}
	return *k.LocationID
}

// LockKey returns the two-part advisory lock key for the run.
func (k RunKey) LockKey() (int32, int32) {
	return int32(k.Year*100 + k.Month), int32(k.LocationOrSentinel())
}

// EndDate returns the last day of the run month.
func (k RunKey) EndDate() time.Time {
	return EndOfMonth(k.Year, k.Month)
}

func (k RunKey) String() string {
	if k.LocationID == nil {
		return fmt.Sprintf("%04d-%02d location=none", k.Year, k.Month)
	}
	return fmt.Sprintf("%04d-%02d location=%d", k.Year, k.Month, *k.LocationID)
}

// BatchRun is one execution of the valuation pipeline.
type BatchRun struct {
	id           int64
	key          RunKey
	runDate      time.Time
	auditUserID  int64
	validityFrom time.Time
	validityTo   *time.Time
}

// NewBatchRun creates an open run for key.
func NewBatchRun(key RunKey, auditUserID int64, now time.Time) (*BatchRun, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &BatchRun{
		key:          key,
		runDate:      now,
		auditUserID:  auditUserID,
		validityFrom: now,
	}, nil
}

// RestoreBatchRun rebuilds a run from storage.
func RestoreBatchRun(id int64, key RunKey, runDate time.Time, auditUserID int64, validityFrom time.Time, validityTo *time.Time) *BatchRun {
	return &BatchRun{
		id:           id,
		key:          key,
		runDate:      runDate,
		auditUserID:  auditUserID,
		validityFrom: validityFrom,
		validityTo:   validityTo,
	}
}

// ID returns the run id; zero until persisted.
func (r *BatchRun) ID() int64 { return r.id }

// Key returns the run identity key.
func (r *BatchRun) Key() RunKey { return r.key }

// RunDate returns the run timestamp.
func (r *BatchRun) RunDate() time.Time { return r.runDate }

// AuditUserID returns the user that started the run.
func (r *BatchRun) AuditUserID() int64 { return r.auditUserID }

// ValidityFrom returns when the run became active.
func (r *BatchRun) ValidityFrom() time.Time { return r.validityFrom }

// ValidityTo returns when the run was superseded, nil while active.
func (r *BatchRun) ValidityTo() *time.Time { return r.validityTo }

// Active reports whether the run is the current one for its key.
func (r *BatchRun) Active() bool { return r.validityTo == nil }

// MarkPersisted assigns the storage id.
func (r *BatchRun) MarkPersisted(id int64) { r.id = id }

// Clone returns a deep copy.
func (r *BatchRun) Clone() *BatchRun {
	if r == nil {
		return nil
	}
	cp := *r
	if r.key.LocationID != nil {
		loc := *r.key.LocationID
		cp.key.LocationID = &loc
	}
	if r.validityTo != nil {
		v := *r.validityTo
		cp.validityTo = &v
	}
	return &cp
}
