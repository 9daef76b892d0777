package tabular

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

type xlsxCodec struct{}

// load reads the first sheet; the first row is the header
func (xlsxCodec) load(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	return build(rows[0], rows[1:])
}

func (xlsxCodec) save(path string, d *Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, col := range d.Columns {
		if err := setCell(f, i+1, 1, col); err != nil {
			return err
		}
	}

	for r, row := range d.Rows {
		for i, col := range d.Columns {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			if err := setCell(f, i+1, r+2, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(defaultSheet, cell, v); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}
