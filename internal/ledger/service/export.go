package service

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// XLSXContentType is the media type of ExportXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetSummary     = "Summary"
	sheetByCategory  = "Revenue by Category"
	sheetPassThrough = "Pass-through"
)

// ExportXLSX writes totals, revenue by category and pass-through totals of a
// window as a workbook with one sheet each.
func (s *ReportService) ExportXLSX(ctx context.Context, caller *actor.Actor, q domain.ReportQuery, w io.Writer) error {
	if err := s.authorize(ctx, caller, &q, permissions.ReportsExport); err != nil {
		return err
	}

	totals, err := s.reports.Totals(ctx, q)
	if err != nil {
		return err
	}
	byCategory, err := s.reports.RevenueByCategory(ctx, q)
	if err != nil {
		return err
	}
	passThrough, err := s.reports.PassThroughTotals(ctx, q)
	if err != nil {
		return err
	}

	f, err := buildWorkbook(q, totals, byCategory, passThrough)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Write(w)
}

func buildWorkbook(q domain.ReportQuery, totals *domain.Totals, byCategory []domain.CategoryRevenue, passThrough []domain.PassThroughTotal) (*excelize.File, error) {
	f := excelize.NewFile()

	// The default sheet becomes the summary.
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"Restaurant", q.RestaurantID},
		{"From", q.StartDate},
		{"To", q.EndDate},
		{"View", string(totals.View)},
		{},
		{"Count", totals.Count},
		{"Unique items", totals.UniqueItems},
		{"Revenue", totals.Revenue.InexactFloat64()},
		{"Discounts", totals.Discounts.InexactFloat64()},
		{"Voids", totals.Voids.InexactFloat64()},
		{"Pass-through", totals.PassThroughAmount.InexactFloat64()},
		{"Collected at POS", totals.CollectedAtPOS.InexactFloat64()},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}

	categoryRows := [][]interface{}{{"Account code", "Account name", "Account type", "Count", "Total"}}
	for _, c := range byCategory {
		categoryRows = append(categoryRows, []interface{}{
			deref(c.AccountCode), c.AccountName, deref(c.AccountType), c.Count, c.Total.InexactFloat64(),
		})
	}
	if _, err := f.NewSheet(sheetByCategory); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetByCategory, categoryRows); err != nil {
		return nil, err
	}

	passRows := [][]interface{}{{"Adjustment type", "Count", "Total"}}
	for _, p := range passThrough {
		passRows = append(passRows, []interface{}{string(p.AdjustmentType), p.Count, p.Total.InexactFloat64()})
	}
	if _, err := f.NewSheet(sheetPassThrough); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetPassThrough, passRows); err != nil {
		return nil, err
	}

	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
