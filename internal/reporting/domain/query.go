package domain

import (
	"fmt"
	"strings"
	"time"
)

// Group selects the third aggregation level.
type Group string

const (
	GroupFacility Group = "H"
	GroupProduct  Group = "P"
)

// ParseGroup normalizes a group flag; empty means facility.
func ParseGroup(value string) (Group, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(GroupFacility):
		return GroupFacility, nil
	case string(GroupProduct):
		return GroupProduct, nil
	}
	return "", invalidQuery("unknown group %q", value)
}

// FacilityLevel filters facilities by level.
type FacilityLevel string

const (
	LevelAny          FacilityLevel = ""
	LevelDispensary   FacilityLevel = "D"
	LevelHealthCentre FacilityLevel = "C"
	LevelHospital     FacilityLevel = "H"
)

// FacilityLevels lists the known levels with their display names.
var FacilityLevels = map[FacilityLevel]string{
	LevelDispensary:   "Dispensary",
	LevelHealthCentre: "Health Centre",
	LevelHospital:     "Hospital",
}

// Query filters the processed-batch report. Zero values mean "any".
type Query struct {
	LocationID int64
	ProductID  int64
	RunID      int64
	HFID       int64
	HFLevel    FacilityLevel
	DateFrom   *time.Time
	DateTo     *time.Time
	ShowClaims bool
	Group      Group
}

// Validate checks the filter values.
func (q Query) Validate() error {
	if q.LocationID < 0 || q.ProductID < 0 || q.RunID < 0 || q.HFID < 0 {
		return invalidQuery("ids must not be negative")
	}
	if q.HFLevel != LevelAny {
		if _, ok := FacilityLevels[q.HFLevel]; !ok {
			return invalidQuery("unknown facility level %q", q.HFLevel)
		}
	}
	if q.Group != GroupFacility && q.Group != GroupProduct {
		return invalidQuery("unknown group %q", q.Group)
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateTo.Before(*q.DateFrom) {
		return invalidQuery("dateTo before dateFrom")
	}
	return nil
}

// Template returns the report template for the query.
func (q Query) Template() string {
	return TemplateName(q.ShowClaims, q.Group)
}

// CacheKey identifies the raw row set fetched for q. Group does not change the rows.
func (q Query) CacheKey() string {
	mode := "summary"
	if q.ShowClaims {
		mode = "claims"
	}
	return fmt.Sprintf("report:%s:loc=%d:prod=%d:run=%d:hf=%d:lvl=%s:from=%s:to=%s",
		mode, q.LocationID, q.ProductID, q.RunID, q.HFID, q.HFLevel, dateKey(q.DateFrom), dateKey(q.DateTo))
}

// TemplateName selects the report template by mode and group.
func TemplateName(showClaims bool, group Group) string {
	switch {
	case showClaims:
		return "claim_batch_pbc_" + string(group)
	case group == GroupFacility:
		return "claim_batch_pbh"
	default:
		return "claim_batch_pbp"
	}
}

func dateKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
