package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	reporting "claim-batch/internal/reporting/domain"
)

const dateLayout = "2006-01-02"

// Source runs the processed-batch report queries against Postgres.
type Source struct {
	db *sql.DB
}

// NewSource constructs a report source.
func NewSource(db *sql.DB) (*Source, error) {
	if db == nil {
		return nil, errors.New("report source: nil db")
	}
	return &Source{db: db}, nil
}

const detailLines = `
	SELECT claim_id, product_id, status, validity_to, legacy_id,
		price_asked * qty AS asked,
		COALESCE(price_approved, price_asked) * qty AS approved,
		COALESCE(price_adjusted, price_approved, price_asked) * qty AS adjusted,
		COALESCE(price_valuated, 0) AS valuated
	FROM claim_items
	UNION ALL
	SELECT claim_id, product_id, status, validity_to, legacy_id,
		price_asked * qty,
		COALESCE(price_approved, price_asked) * qty,
		COALESCE(price_adjusted, price_approved, price_asked) * qty,
		COALESCE(price_valuated, 0)
	FROM claim_services`

const reportFilter = `
WHERE c.validity_to IS NULL
	AND c.batch_run_id IS NOT NULL
	AND c.status = 16
	AND l.validity_to IS NULL
	AND l.legacy_id IS NULL
	AND l.status = 1
	AND ($1::bigint = 0 OR d.id = $1::bigint OR r.id = $1::bigint)
	AND ($2::bigint = 0 OR p.id = $2::bigint)
	AND ($3::bigint = 0 OR c.batch_run_id = $3::bigint)
	AND ($4::bigint = 0 OR hf.id = $4::bigint)
	AND ($5::text = '' OR hf.level::text = $5::text)
	AND ($6::date IS NULL OR c.date_from >= $6::date)
	AND ($7::date IS NULL OR COALESCE(c.date_to, c.date_from) <= $7::date)`

const reportJoins = `
FROM claims c
JOIN (` + detailLines + `
) l ON l.claim_id = c.id
JOIN health_facilities hf ON hf.id = c.health_facility_id
JOIN locations d ON d.id = hf.location_id
JOIN locations r ON r.id = d.parent_id
JOIN products p ON p.id = l.product_id`

const summaryQuery = `
SELECT r.name, d.name, hf.code, hf.name, p.code, p.name,
	SUM(l.valuated),
	COALESCE(p.acc_code_remuneration, ''), COALESCE(hf.acc_code, '')` + reportJoins + reportFilter + `
GROUP BY r.name, d.name, hf.code, hf.name, p.code, p.name, p.acc_code_remuneration, hf.acc_code`

const claimQuery = `
SELECT c.code, c.date_claimed,
	COALESCE(a.other_names, ''), COALESCE(a.last_name, ''),
	c.date_from, c.date_to,
	COALESCE(i.chf_id, ''), COALESCE(i.other_names, ''), COALESCE(i.last_name, ''),
	hf.id, hf.code, hf.name, COALESCE(hf.acc_code, ''),
	p.id, p.code, p.name,
	SUM(l.asked), SUM(l.approved), SUM(l.adjusted), SUM(l.valuated),
	d.id, d.name, r.id, r.name` + reportJoins + `
LEFT JOIN claim_admins a ON a.id = c.admin_id
LEFT JOIN insurees i ON i.id = c.insuree_id` + reportFilter + `
GROUP BY c.id, c.code, c.date_claimed, a.other_names, a.last_name, c.date_from, c.date_to,
	i.chf_id, i.other_names, i.last_name, hf.id, hf.code, hf.name, hf.acc_code,
	p.id, p.code, p.name, d.id, d.name, r.id, r.name`

// SummaryRows returns per facility and product remunerated totals.
func (s *Source) SummaryRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery, queryArgs(q)...)
	if err != nil {
		return nil, fmt.Errorf("summary rows: %w", err)
	}
	defer rows.Close()

	var out []reporting.Row
	for rows.Next() {
		var row reporting.Row
		if err := rows.Scan(
			&row.RegionName, &row.DistrictName,
			&row.HFCode, &row.HFName,
			&row.ProductCode, &row.ProductName,
			&row.RemuneratedAmount,
			&row.AccCodeRemuneration, &row.AccCode,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ClaimRows returns per claim and product lines with the price breakdown.
func (s *Source) ClaimRows(ctx context.Context, q reporting.Query) ([]reporting.Row, error) {
	rows, err := s.db.QueryContext(ctx, claimQuery, queryArgs(q)...)
	if err != nil {
		return nil, fmt.Errorf("claim rows: %w", err)
	}
	defer rows.Close()

	var out []reporting.Row
	for rows.Next() {
		var (
			row                       reporting.Row
			claimed, dateFrom, dateTo sql.NullTime
		)
		if err := rows.Scan(
			&row.ClaimCode, &claimed,
			&row.OtherNamesAdmin, &row.LastNameAdmin,
			&dateFrom, &dateTo,
			&row.CHFID, &row.OtherNames, &row.LastName,
			&row.HFID, &row.HFCode, &row.HFName, &row.AccCode,
			&row.ProdID, &row.ProductCode, &row.ProductName,
			&row.PriceAsked, &row.PriceApproved, &row.PriceAdjusted, &row.RemuneratedAmount,
			&row.DistrictID, &row.DistrictName, &row.RegionID, &row.RegionName,
		); err != nil {
			return nil, err
		}
		row.DateClaimed = formatDate(claimed)
		row.DateFrom = formatDate(dateFrom)
		row.DateTo = formatDate(dateTo)
		out = append(out, row)
	}
	return out, rows.Err()
}

func queryArgs(q reporting.Query) []any {
	return []any{
		q.LocationID,
		q.ProductID,
		q.RunID,
		q.HFID,
		string(q.HFLevel),
		dateArg(q.DateFrom),
		dateArg(q.DateTo),
	}
}

func dateArg(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(dateLayout)
}
