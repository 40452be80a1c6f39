package domain

import (
	"fmt"
	"time"
)

// BatchRunCompleted is emitted when a run commits.
type BatchRunCompleted struct {
	RunID          int64     `json:"run_id"`
	LocationID     *int64    `json:"location_id,omitempty"`
	Year           int       `json:"year"`
	Month          int       `json:"month"`
	AuditUserID    int64     `json:"audit_user_id"`
	Products       int       `json:"products"`
	PlansProcessed int       `json:"plans_processed"`
	ClaimsValuated int       `json:"claims_valuated"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventName is the wire type of run completion events.
func (BatchRunCompleted) EventName() string { return "batch.run.completed" }

// EventKey partitions run events by run key.
func (e BatchRunCompleted) EventKey() string {
	return runPartition(e.Year, e.Month, e.LocationID)
}

// CapitationRequested asks the capitation service to build report data.
type CapitationRequested struct {
	RegionID   *int64    `json:"region_id,omitempty"`
	DistrictID *int64    `json:"district_id,omitempty"`
	ProductID  int64     `json:"prod_id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventName is the wire type of capitation requests.
func (CapitationRequested) EventName() string { return "batch.capitation.requested" }

// EventKey partitions capitation requests by product.
func (e CapitationRequested) EventKey() string {
	return fmt.Sprintf("capitation-%d-%04d-%02d", e.ProductID, e.Year, e.Month)
}

func runPartition(year, month int, locationID *int64) string {
	loc := NoLocation
	if locationID != nil {
		loc = *locationID
	}
	return fmt.Sprintf("batch-%04d-%02d-%d", year, month, loc)
}
