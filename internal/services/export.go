package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"driveguardian/go-backend/internal/models"
)

var (
	ErrNoHistory     = errors.New("no history to export")
	ErrUnknownFormat = errors.New("unknown export format")
)

type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatXLSX ExportFormat = "xlsx"

	historySheet = "History"
)

// ParseExportFormat treats an empty value as JSON.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

func ExportFilename(now time.Time, f ExportFormat) string {
	return fmt.Sprintf("driveguardian-history-%s.%s", now.Format("2006-01-02"), f)
}

// Export renders the full history in the requested format.
func Export(records []models.SessionRecord, f ExportFormat) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoHistory
	}
	switch f {
	case FormatJSON:
		return json.MarshalIndent(records, "", "  ")
	case FormatXLSX:
		return exportXLSX(records)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

var historyHeader = []interface{}{"ID", "Date", "Duration (min)", "Score", "Alerts", "Status", "Notes"}

func exportXLSX(records []models.SessionRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return nil, err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.ID,
			r.Date.Format(time.RFC3339),
			r.Duration,
			r.Score,
			r.Alerts,
			string(r.Status),
			r.Notes,
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
