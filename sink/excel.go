package sink

import (
	"fmt"
	"io"

	"github.com/pevans/wfleet/ship"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the worksheet records are written to.
const DefaultSheet = "ships"

// ExcelSink writes records to an xlsx workbook with a header row.
type ExcelSink struct {
	Sheet string
}

// NewExcelSink creates an Excel sink writing to DefaultSheet.
func NewExcelSink() *ExcelSink {
	return &ExcelSink{Sheet: DefaultSheet}
}

func (s *ExcelSink) Write(records []ship.Record, destination string) error {
	return writeAtomic(destination, func(w io.Writer) error {
		return s.write(records, w)
	})
}

func (s *ExcelSink) write(records []ship.Record, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(ship.Header))
	for i, h := range ship.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		fields := r.Fields()
		row := make([]any, len(fields))
		for j, v := range fields {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
