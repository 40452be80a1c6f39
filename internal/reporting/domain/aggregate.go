package domain

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Options controls aggregation.
type Options struct {
	Group      Group
	ShowClaims bool
}

// Measures returns the summed columns for the options.
func (o Options) Measures() []Measure {
	if o.ShowClaims {
		return []Measure{MeasurePriceAsked, MeasurePriceApproved, MeasurePriceAdjusted, MeasureRemuneratedAmount}
	}
	return []Measure{MeasureRemuneratedAmount}
}

func (o Options) leafPrefix() string {
	if o.Group == GroupProduct {
		return "SUMP_"
	}
	return "SUMHF_"
}

func (o Options) leafCode(r Row) string {
	if o.Group == GroupProduct {
		return r.ProductCode
	}
	return r.HFCode
}

// AggregatedRow is a report row enriched with its region, district and
// facility or product subtotals.
type AggregatedRow struct {
	Row
	Sums map[string]decimal.Decimal

	withClaims bool
}

// Fields flattens identity fields and subtotals into one mapping.
func (r AggregatedRow) Fields() map[string]any {
	fields := r.Row.Fields(r.withClaims)
	for name, value := range r.Sums {
		fields[name] = number(value)
	}
	return fields
}

// MarshalJSON renders the flattened fields.
func (r AggregatedRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// Sum returns a subtotal by field name, such as SUMR_RemuneratedAmount.
func (r AggregatedRow) Sum(field string) decimal.Decimal {
	return r.Sums[field]
}

// Report is an aggregated report ready for rendering.
type Report struct {
	Template   string          `json:"template"`
	Group      Group           `json:"group"`
	ShowClaims bool            `json:"show_claims"`
	Rows       []AggregatedRow `json:"rows"`
}

// SumFields lists subtotal field names in display order.
func (rep *Report) SumFields() []string {
	opts := Options{Group: rep.Group, ShowClaims: rep.ShowClaims}
	var names []string
	for _, prefix := range []string{"SUMR_", "SUMD_", opts.leafPrefix()} {
		for _, m := range opts.Measures() {
			names = append(names, prefix+string(m))
		}
	}
	return names
}

type districtKey struct {
	region   string
	district string
}

type leafKey struct {
	region   string
	district string
	code     string
}

type totals map[Measure]decimal.Decimal

func (t totals) add(r Row, measures []Measure) {
	for _, m := range measures {
		t[m] = t[m].Add(r.Amount(m))
	}
}

// Aggregate computes region, district and facility-or-product subtotals for
// every row and returns the rows sorted by region, district and code.
func Aggregate(rows []Row, opts Options) (*Report, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	if opts.Group == "" {
		opts.Group = GroupFacility
	}
	if opts.Group != GroupFacility && opts.Group != GroupProduct {
		return nil, invalidQuery("unknown group %q", opts.Group)
	}
	measures := opts.Measures()

	regions := make(map[string]totals)
	districts := make(map[districtKey]totals)
	leaves := make(map[leafKey]totals)
	for _, r := range rows {
		rk := r.RegionName
		dk := districtKey{region: r.RegionName, district: r.DistrictName}
		lk := leafKey{region: r.RegionName, district: r.DistrictName, code: opts.leafCode(r)}
		if regions[rk] == nil {
			regions[rk] = totals{}
		}
		if districts[dk] == nil {
			districts[dk] = totals{}
		}
		if leaves[lk] == nil {
			leaves[lk] = totals{}
		}
		regions[rk].add(r, measures)
		districts[dk].add(r, measures)
		leaves[lk].add(r, measures)
	}

	out := make([]AggregatedRow, 0, len(rows))
	leafPrefix := opts.leafPrefix()
	for _, r := range rows {
		region := regions[r.RegionName]
		district := districts[districtKey{region: r.RegionName, district: r.DistrictName}]
		leaf := leaves[leafKey{region: r.RegionName, district: r.DistrictName, code: opts.leafCode(r)}]
		sums := make(map[string]decimal.Decimal, 3*len(measures))
		for _, m := range measures {
			sums["SUMR_"+string(m)] = region[m]
			sums["SUMD_"+string(m)] = district[m]
			sums[leafPrefix+string(m)] = leaf[m]
		}
		out = append(out, AggregatedRow{Row: r, Sums: sums, withClaims: opts.ShowClaims})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RegionName != b.RegionName {
			return a.RegionName < b.RegionName
		}
		if a.DistrictName != b.DistrictName {
			return a.DistrictName < b.DistrictName
		}
		return opts.leafCode(a.Row) < opts.leafCode(b.Row)
	})

	return &Report{
		Template:   TemplateName(opts.ShowClaims, opts.Group),
		Group:      opts.Group,
		ShowClaims: opts.ShowClaims,
		Rows:       out,
	}, nil
}
