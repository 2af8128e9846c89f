// Package spreadsheet reads customer rows from, and writes them to, .xlsx workbooks.
//
// The two directions are compatible: a file produced by WriteCustomers can be
// fed back to ReadCustomers, because header matching ignores case and spaces
// ("Box ID" and "boxId" are the same column).
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sakif/billing-tracker/internal/model"
)

// SheetName is the worksheet WriteCustomers produces.
const SheetName = "Customers"

// exportHeader is the first row of an exported workbook.
var exportHeader = []any{"Name", "Box ID", "Street Name", "Recharge Amount", "Status", "Last Payment"}

// Row is one data row of an imported sheet, as raw cell text.
// Line is the spreadsheet row number (the header is line 1), used in error messages.
type Row struct {
	Line           int
	Name           string
	BoxID          string
	StreetName     string
	RechargeAmount string
	Status         string
}

// columns maps normalised header text to the Row field it fills.
var columns = map[string]func(*Row, string){
	"name":           func(r *Row, v string) { r.Name = v },
	"boxid":          func(r *Row, v string) { r.BoxID = v },
	"streetname":     func(r *Row, v string) { r.StreetName = v },
	"street":         func(r *Row, v string) { r.StreetName = v },
	"rechargeamount": func(r *Row, v string) { r.RechargeAmount = v },
	"amount":         func(r *Row, v string) { r.RechargeAmount = v },
	"status":         func(r *Row, v string) { r.Status = v },
}

func normaliseHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// ReadCustomers parses the first worksheet of an .xlsx file.
//
// The first row is the header. Unknown columns are ignored and blank rows are
// skipped; whether a row is complete is for the caller to decide.
func ReadCustomers(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet: workbook has no sheets")
	}

	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: reading sheet %q: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return []Row{}, nil
	}

	setters := make([]func(*Row, string), len(grid[0]))
	for i, h := range grid[0] {
		setters[i] = columns[normaliseHeader(h)]
	}

	rows := []Row{}
	for i, cells := range grid[1:] {
		row := Row{Line: i + 2}
		blank := true
		for j, cell := range cells {
			cell = strings.TrimSpace(cell)
			if cell != "" {
				blank = false
			}
			if j < len(setters) && setters[j] != nil {
				setters[j](&row, cell)
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}

	return rows, nil
}

// WriteCustomers writes customers as a single "Customers" sheet.
func WriteCustomers(w io.Writer, customers []model.Customer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("spreadsheet: naming sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("spreadsheet: writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("spreadsheet: creating header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", bold); err != nil {
		return fmt.Errorf("spreadsheet: styling header: %w", err)
	}

	for i, c := range customers {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("spreadsheet: addressing row %d: %w", i+2, err)
		}
		values := []any{
			c.Name,
			c.BoxID,
			c.StreetName,
			c.RechargeAmount,
			string(c.Status),
			model.FormatPaymentDate(c.LastPaymentDate),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("spreadsheet: writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "F", 18); err != nil {
		return fmt.Errorf("spreadsheet: sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("spreadsheet: writing workbook: %w", err)
	}
	return nil
}
