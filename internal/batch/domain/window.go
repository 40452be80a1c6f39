package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Window is the data slice of one (product, payment plan, date range).
type Window struct {
	Product               Product
	StartDate             time.Time
	EndDate               time.Time
	Items                 []ClaimDetail
	Services              []ClaimDetail
	Contributions         []Premium
	Claims                []Claim
	AllocatedContribution decimal.Decimal
}

// Period returns the period classification of the window.
func (w *Window) Period() (PeriodType, int) {
	return PeriodOf(w.StartDate, w.EndDate)
}

// ClaimIDs returns the distinct ids of claims touched by the window, sorted.
func (w *Window) ClaimIDs() []int64 {
	seen := make(map[int64]struct{}, len(w.Claims)+len(w.Items)+len(w.Services))
	for _, claim := range w.Claims {
		seen[claim.ID] = struct{}{}
	}
	for _, item := range w.Items {
		seen[item.ClaimID] = struct{}{}
	}
	for _, service := range w.Services {
		seen[service.ClaimID] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HospitalClaimCount counts in-patient claims in the window.
func (w *Window) HospitalClaimCount() int {
	count := 0
	for _, claim := range w.Claims {
		if HospitalClaim(w.Product.CeilingInterpretation, claim) {
			count++
		}
	}
	return count
}

// AllocatedContribution prorates each premium over the part of its policy
// coverage that overlaps [start, end]. Day counts include both endpoints.
func AllocatedContribution(premiums []Premium, start, end time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, premium := range premiums {
		policy := premium.Policy
		if policy.ExpiryDate.Before(policy.EffectiveDate) {
			return decimal.Zero, NewDataError("policy %d expires %s before effective date %s",
				policy.ID, DateKey(policy.ExpiryDate), DateKey(policy.EffectiveDate))
		}
		allocationStart := maxTime(truncateDay(policy.EffectiveDate), truncateDay(start))
		allocationStop := minTime(truncateDay(end), truncateDay(policy.ExpiryDate))
		overlap := daysInclusive(allocationStart, allocationStop)
		if overlap <= 0 {
			continue
		}
		duration := daysInclusive(policy.EffectiveDate, policy.ExpiryDate)
		share := premium.Amount.Mul(decimal.NewFromInt(int64(overlap))).Div(decimal.NewFromInt(int64(duration)))
		total = total.Add(share)
	}
	return total, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
