// Package spreadsheet renders and parses the xlsx files exchanged with the
// server's import endpoints, and exports the classified inventory view.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/xuri/excelize/v2"
)

// Sheet names
const (
	InboundSheet  = "Inbound"
	MaterialSheet = "Materials"
	ReportSheet   = "Inventory"
)

// InboundHeader is the column layout of the inbound import template.
var InboundHeader = []string{
	"Batch No", "Inbound No", "Material Code", "Material Name", "Category",
	"Spec", "Unit", "Brand", "Quantity", "Expiry Date",
}

// MaterialHeader is the column layout of the material import template.
var MaterialHeader = []string{
	"Code", "Name", "Category", "Spec", "Unit", "Brand",
	"Safety Stock", "Expiry Alert Days", "Opened Expiry Days",
}

// ReportHeader is the column layout of the inventory export.
var ReportHeader = []string{
	"Batch No", "Inbound No", "Material Code", "Material Name", "Spec", "Unit",
	"Initial Qty", "Current Qty", "Expiry Date", "Days Remaining", "Status",
}

// ReportRow is one batch of the inventory export.
type ReportRow struct {
	Item   domain.InventoryItem
	Status expiry.Status
}

// InboundWorkbook renders inbound records in the import template layout.
func InboundWorkbook(reqs []domain.InboundRequest) ([]byte, error) {
	rows := make([][]interface{}, len(reqs))
	for i, r := range reqs {
		rows[i] = []interface{}{
			r.BatchNo, r.InboundNo, r.MaterialCode, r.MaterialName, r.Category,
			r.Spec, r.Unit, r.Brand, r.Quantity, r.ExpiryDate,
		}
	}
	return build(InboundSheet, InboundHeader, rows)
}

// MaterialWorkbook renders material definitions in the import template
// layout. Unset optional numbers are left blank.
func MaterialWorkbook(reqs []domain.CreateMaterialRequest) ([]byte, error) {
	rows := make([][]interface{}, len(reqs))
	for i, r := range reqs {
		rows[i] = []interface{}{
			r.Code, r.Name, r.Category, r.Spec, r.Unit, r.Brand,
			optional(r.SafetyStock), optional(r.ExpiryAlertDays), optional(r.OpenedExpiryDays),
		}
	}
	return build(MaterialSheet, MaterialHeader, rows)
}

// InventoryReport renders classified batches.
func InventoryReport(items []ReportRow) ([]byte, error) {
	rows := make([][]interface{}, len(items))
	for i, r := range items {
		code, spec, unit := "", "", ""
		if m := r.Item.Material; m != nil {
			code, spec, unit = m.Code, m.Spec, m.Unit
		}
		rows[i] = []interface{}{
			r.Item.BatchNo, r.Item.InboundNo, code, r.Item.MaterialName(), spec, unit,
			r.Item.InitialQty, r.Item.CurrentQty, r.Item.ExpiryDate.String(),
			r.Status.DaysRemaining, r.Status.Label,
		}
	}
	return build(ReportSheet, ReportHeader, rows)
}

func optional(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func build(sheet string, header []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheet, "A", last, 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadInboundSheet parses the first sheet of an inbound template. Columns
// are located by header text, case-insensitively; blank rows are skipped.
func ReadInboundSheet(r io.Reader) ([]domain.InboundRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range InboundHeader {
		if _, ok := cols[strings.ToLower(h)]; !ok {
			return nil, fmt.Errorf("missing column %q", h)
		}
	}

	get := func(row []string, name string) string {
		i := cols[strings.ToLower(name)]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := []domain.InboundRequest{}
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		line := n + 2

		qty, err := strconv.Atoi(get(row, "Quantity"))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity %q", line, get(row, "Quantity"))
		}

		out = append(out, domain.InboundRequest{
			BatchNo:      get(row, "Batch No"),
			InboundNo:    get(row, "Inbound No"),
			MaterialCode: get(row, "Material Code"),
			MaterialName: get(row, "Material Name"),
			Category:     get(row, "Category"),
			Spec:         get(row, "Spec"),
			Unit:         get(row, "Unit"),
			Brand:        get(row, "Brand"),
			Quantity:     qty,
			ExpiryDate:   get(row, "Expiry Date"),
		})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
