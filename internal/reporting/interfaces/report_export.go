package interfaces

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reporting "claim-batch/internal/reporting/domain"
)

// column is one exported report column.
type column struct {
	Title string
	Field string
	Width float64
}

func identityColumns(rep *reporting.Report) []column {
	cols := []column{
		{Title: "Region", Field: "RegionName", Width: 25},
		{Title: "District", Field: "DistrictName", Width: 25},
	}
	if rep.ShowClaims {
		cols = append(cols,
			column{Title: "Claim", Field: "ClaimCode", Width: 22},
			column{Title: "Claimed", Field: "DateClaimed", Width: 20},
			column{Title: "CHFID", Field: "CHFID", Width: 20},
		)
	}
	if rep.Group == reporting.GroupProduct {
		cols = append(cols,
			column{Title: "Product", Field: "ProductCode", Width: 18},
			column{Title: "Facility", Field: "HFCode", Width: 18},
		)
	} else {
		cols = append(cols,
			column{Title: "Facility", Field: "HFCode", Width: 18},
			column{Title: "Product", Field: "ProductCode", Width: 18},
		)
	}
	if rep.ShowClaims {
		cols = append(cols,
			column{Title: "Asked", Field: string(reporting.MeasurePriceAsked), Width: 20},
			column{Title: "Approved", Field: string(reporting.MeasurePriceApproved), Width: 20},
			column{Title: "Adjusted", Field: string(reporting.MeasurePriceAdjusted), Width: 20},
		)
	}
	return append(cols, column{Title: "Remunerated", Field: string(reporting.MeasureRemuneratedAmount), Width: 24})
}

func exportColumns(rep *reporting.Report) []column {
	cols := identityColumns(rep)
	for _, name := range rep.SumFields() {
		cols = append(cols, column{Title: name, Field: name, Width: 26})
	}
	return cols
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// BuildReportXLSX renders the report rows and a filter summary sheet.
func BuildReportXLSX(rep *reporting.Report, filters map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	rowsSheet := "rows"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Processed Batch Report")
	_ = f.SetCellValue(summarySheet, "A3", "Template")
	_ = f.SetCellValue(summarySheet, "B3", rep.Template)
	_ = f.SetCellValue(summarySheet, "A4", "Rows")
	_ = f.SetCellValue(summarySheet, "B4", len(rep.Rows))
	line := 5
	for _, key := range sortedKeys(filters) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), key)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), filters[key])
		line++
	}

	cols := exportColumns(rep)
	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(rowsSheet, cell, col.Title)
	}
	for r, row := range rep.Rows {
		fields := row.Fields()
		for i, col := range cols {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if sum, ok := row.Sums[col.Field]; ok {
				_ = f.SetCellValue(rowsSheet, cell, sum.InexactFloat64())
				continue
			}
			switch col.Field {
			case string(reporting.MeasurePriceAsked), string(reporting.MeasurePriceApproved),
				string(reporting.MeasurePriceAdjusted), string(reporting.MeasureRemuneratedAmount):
				_ = f.SetCellValue(rowsSheet, cell, row.Amount(reporting.Measure(col.Field)).InexactFloat64())
			default:
				_ = f.SetCellValue(rowsSheet, cell, cellText(fields[col.Field]))
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportPDF renders the identity columns with region, district and leaf totals.
func BuildReportPDF(rep *reporting.Report, filters map[string]string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Processed Batch Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 5, fmt.Sprintf("Template: %s", rep.Template))
	pdf.Ln(5)
	for _, key := range sortedKeys(filters) {
		pdf.Cell(0, 5, fmt.Sprintf("%s: %s", key, filters[key]))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	cols := identityColumns(rep)
	remunerated := string(reporting.MeasureRemuneratedAmount)
	leaf := "SUMHF_" + remunerated
	if rep.Group == reporting.GroupProduct {
		leaf = "SUMP_" + remunerated
	}
	totals := []column{
		{Title: "Region total", Field: "SUMR_" + remunerated, Width: 26},
		{Title: "District total", Field: "SUMD_" + remunerated, Width: 26},
		{Title: "Group total", Field: leaf, Width: 26},
	}
	if !rep.ShowClaims {
		cols = append(cols, totals...)
	}

	pdf.SetFont("Arial", "B", 8)
	for _, col := range cols {
		pdf.CellFormat(col.Width, 6, col.Title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range rep.Rows {
		fields := row.Fields()
		for _, col := range cols {
			align := "L"
			if _, ok := row.Sums[col.Field]; ok {
				align = "R"
			}
			pdf.CellFormat(col.Width, 6, cellText(fields[col.Field]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
