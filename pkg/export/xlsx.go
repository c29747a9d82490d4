package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/errors"
)

// WriteXLSX writes a session report workbook with three sheets: Statistics,
// Highlights (key events only), and Entries.
func WriteXLSX(a *archive.Archive, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create style")
	}

	if err := writeStatsSheet(f, a, headerStyle); err != nil {
		return err
	}
	if err := writeHighlightsSheet(f, a, headerStyle); err != nil {
		return err
	}
	if err := writeEntriesSheet(f, a, headerStyle); err != nil {
		return err
	}

	// Drop the default sheet and land on Statistics.
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex("Statistics"); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to save workbook")
	}
	return nil
}

func writeStatsSheet(f *excelize.File, a *archive.Archive, headerStyle int) error {
	const sheet = "Statistics"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create sheet")
	}

	rows := [][2]interface{}{
		{"Session", a.SessionID},
		{"Session start", formatMillis(a.SessionStart)},
		{"Archive", a.ID},
		{"Original messages", a.OriginalMessageCount},
		{"Compressed entries", a.CompressedEntryCount},
		{"Compression ratio", fmt.Sprintf("%d%%", a.CompressionRatio)},
		{"Encounters", a.Statistics.Encounters},
		{"Rolls", a.Statistics.Rolls},
		{"Critical successes", a.Statistics.CriticalSuccesses},
		{"Critical failures", a.Statistics.CriticalFailures},
		{"Item transfers", a.Statistics.ItemTransfers},
		{"XP events", a.Statistics.XPEvents},
		{"Key events", a.Statistics.KeyEvents},
	}

	for i, row := range rows {
		labelCell := fmt.Sprintf("A%d", i+1)
		f.SetCellValue(sheet, labelCell, row[0])
		f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), row[1])
		f.SetCellStyle(sheet, labelCell, labelCell, headerStyle)
	}
	f.SetColWidth(sheet, "A", "A", 22)
	f.SetColWidth(sheet, "B", "B", 40)
	return nil
}

func writeHighlightsSheet(f *excelize.File, a *archive.Archive, headerStyle int) error {
	const sheet = "Highlights"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create sheet")
	}

	headers := []string{"Time", "Kind", "Highlight"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	row := 2
	for _, e := range a.Entries {
		if !e.KeyEvent {
			continue
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), formatMillis(e.Timestamp))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), string(e.Kind))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), e.DisplayText)
		row++
	}
	f.SetColWidth(sheet, "A", "A", 20)
	f.SetColWidth(sheet, "C", "C", 80)
	return nil
}

func writeEntriesSheet(f *excelize.File, a *archive.Archive, headerStyle int) error {
	const sheet = "Entries"
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create sheet")
	}

	headers := []string{"Time", "Kind", "Categories", "Key event", "Records", "Text"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, e := range a.Entries {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), formatMillis(e.Timestamp))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), string(e.Kind))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), strings.Join(e.Categories, ", "))
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), e.KeyEvent)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), len(e.RecordIDs))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), e.DisplayText)
	}
	f.SetColWidth(sheet, "A", "A", 20)
	f.SetColWidth(sheet, "F", "F", 80)
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}
