package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim statuses.
const (
	ClaimStatusRejected  = 1
	ClaimStatusEntered   = 2
	ClaimStatusChecked   = 4
	ClaimStatusProcessed = 8
	ClaimStatusValuated  = 16
)

// Claim item and service statuses.
const (
	DetailStatusPassed   = 1
	DetailStatusRejected = 2
)

// Location types.
const (
	LocationRegion   = "R"
	LocationDistrict = "D"
	LocationWard     = "W"
	LocationVillage  = "V"
)

// Ceiling interpretations of a product.
const (
	CeilingHospital     = "H"
	CeilingInOutPatient = "I"
)

// FacilityLevelHospital is the health facility level of hospitals.
const FacilityLevelHospital = "H"

// Product is a benefit plan valid over a date range.
type Product struct {
	ID                    int64
	Code                  string
	Name                  string
	LocationID            *int64
	DateFrom              time.Time
	DateTo                *time.Time
	CeilingInterpretation string
	AccCodeRemuneration   string
}

// PaymentPlan attaches a calculation rule and periodicity to a product.
type PaymentPlan struct {
	ID            int64
	ProductID     int64
	Code          string
	CalculationID string
	Periodicity   int
	DateValidFrom time.Time
	DateValidTo   time.Time
}

// Claim is the window view of a claim.
type Claim struct {
	ID               int64
	Code             string
	Status           int
	HealthFacilityID int64
	FacilityLevel    string
	ProcessStamp     time.Time
	ValidityFrom     time.Time
	DateFrom         time.Time
	DateTo           *time.Time
	Adjustment       decimal.NullDecimal
	Remunerated      decimal.NullDecimal
	BatchRunID       *int64
}

// DetailKind distinguishes claim items from claim services.
type DetailKind string

const (
	DetailItem    DetailKind = "item"
	DetailService DetailKind = "service"
)

// ClaimDetail is a claim item or claim service line.
type ClaimDetail struct {
	ID            int64
	Kind          DetailKind
	ClaimID       int64
	ProductID     int64
	Status        int
	Qty           decimal.Decimal
	PriceAsked    decimal.Decimal
	PriceApproved decimal.NullDecimal
	PriceAdjusted decimal.NullDecimal
	PriceValuated decimal.NullDecimal
}

// Policy is the coverage a contribution is paid against.
type Policy struct {
	ID            int64
	ProductID     int64
	EffectiveDate time.Time
	ExpiryDate    time.Time
}

// Premium is a contribution paid for a policy.
type Premium struct {
	ID     int64
	Amount decimal.Decimal
	Policy Policy
}

// Location is an administrative area.
type Location struct {
	ID       int64
	Code     string
	Name     string
	Type     string
	ParentID *int64
}

// CapitationKey addresses downstream capitation report data.
type CapitationKey struct {
	RegionID   *int64
	DistrictID *int64
	ProductID  int64
	Year       int
	Month      int
}

// HospitalClaim reports whether a claim counts as in-patient under the
// product's ceiling interpretation.
func HospitalClaim(ceilingInterpretation string, claim Claim) bool {
	if ceilingInterpretation == CeilingHospital {
		return claim.FacilityLevel == FacilityLevelHospital
	}
	return claim.DateTo != nil && claim.DateTo.After(claim.DateFrom)
}
