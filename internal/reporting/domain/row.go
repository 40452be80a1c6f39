package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Measure names a monetary column that can be summed.
type Measure string

const (
	MeasurePriceAsked        Measure = "PriceAsked"
	MeasurePriceApproved     Measure = "PriceApproved"
	MeasurePriceAdjusted     Measure = "PriceAdjusted"
	MeasureRemuneratedAmount Measure = "RemuneratedAmount"
)

// Row is one line of the processed-batch report.
// Summary rows carry the facility/product identity and the remunerated amount;
// claim rows add claim, claimant and admin identity plus the price breakdown.
type Row struct {
	RegionID     int64  `json:"RegionID,omitempty"`
	RegionName   string `json:"RegionName"`
	DistrictID   int64  `json:"DistrictID,omitempty"`
	DistrictName string `json:"DistrictName"`

	HFID    int64  `json:"HFID,omitempty"`
	HFCode  string `json:"HFCode"`
	HFName  string `json:"HFName"`
	AccCode string `json:"AccCode,omitempty"`

	ProdID              int64  `json:"ProdID,omitempty"`
	ProductCode         string `json:"ProductCode"`
	ProductName         string `json:"ProductName"`
	AccCodeRemuneration string `json:"AccCodeRemuneration,omitempty"`

	ClaimCode       string `json:"ClaimCode,omitempty"`
	DateClaimed     string `json:"DateClaimed,omitempty"`
	OtherNamesAdmin string `json:"OtherNamesAdmin,omitempty"`
	LastNameAdmin   string `json:"LastNameAdmin,omitempty"`
	DateFrom        string `json:"DateFrom,omitempty"`
	DateTo          string `json:"DateTo,omitempty"`
	CHFID           string `json:"CHFID,omitempty"`
	OtherNames      string `json:"OtherNames,omitempty"`
	LastName        string `json:"LastName,omitempty"`

	PriceAsked        decimal.Decimal `json:"PriceAsked"`
	PriceApproved     decimal.Decimal `json:"PriceApproved"`
	PriceAdjusted     decimal.Decimal `json:"PriceAdjusted"`
	RemuneratedAmount decimal.Decimal `json:"RemuneratedAmount"`
}

// Amount returns the value of measure m.
func (r Row) Amount(m Measure) decimal.Decimal {
	switch m {
	case MeasurePriceAsked:
		return r.PriceAsked
	case MeasurePriceApproved:
		return r.PriceApproved
	case MeasurePriceAdjusted:
		return r.PriceAdjusted
	case MeasureRemuneratedAmount:
		return r.RemuneratedAmount
	}
	return decimal.Zero
}

// Fields flattens the row into named report fields.
func (r Row) Fields(withClaims bool) map[string]any {
	fields := map[string]any{
		"RegionName":        r.RegionName,
		"DistrictName":      r.DistrictName,
		"HFCode":            r.HFCode,
		"HFName":            r.HFName,
		"ProductCode":       r.ProductCode,
		"ProductName":       r.ProductName,
		"RemuneratedAmount": number(r.RemuneratedAmount),
		"AccCode":           r.AccCode,
	}
	if !withClaims {
		fields["AccCodeRemuneration"] = r.AccCodeRemuneration
		return fields
	}
	fields["RegionID"] = r.RegionID
	fields["DistrictID"] = r.DistrictID
	fields["HFID"] = r.HFID
	fields["ProdID"] = r.ProdID
	fields["ClaimCode"] = r.ClaimCode
	fields["DateClaimed"] = nullable(r.DateClaimed)
	fields["OtherNamesAdmin"] = r.OtherNamesAdmin
	fields["LastNameAdmin"] = r.LastNameAdmin
	fields["DateFrom"] = nullable(r.DateFrom)
	fields["DateTo"] = nullable(r.DateTo)
	fields["CHFID"] = r.CHFID
	fields["OtherNames"] = r.OtherNames
	fields["LastName"] = r.LastName
	fields["PriceAsked"] = number(r.PriceAsked)
	fields["PriceApproved"] = number(r.PriceApproved)
	fields["PriceAdjusted"] = number(r.PriceAdjusted)
	return fields
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
