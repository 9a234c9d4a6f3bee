package export

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet    = "Sheet1"
	maxSheetNameLen = 31
	newRowFill      = "FFFF00"
	firstSeenHeader = "first_seen_at"
)

// Sheet is one category rendered into the workbook.
type Sheet struct {
	Name        string
	ExtraFields []string
	Postings    []jobs.Posting
}

type XLSXExporter struct {
	path string
}

func NewXLSXExporter(path string) *XLSXExporter {
	return &XLSXExporter{path: path}
}

func (e *XLSXExporter) Path() string {
	return e.path
}

// Export writes every sheet into a fresh workbook and atomically replaces
// the file at the exporter's path.
func (e *XLSXExporter) Export(sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	newStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{newRowFill}},
	})
	if err != nil {
		return fmt.Errorf("failed to create row style: %w", err)
	}

	used := make(map[string]bool, len(sheets))
	for _, sheet := range sheets {
		name := uniqueSheetName(sheetName(sheet.Name), used)
		if err := writeSheet(f, name, sheet, newStyle); err != nil {
			return err
		}
	}

	if len(sheets) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("failed to delete default sheet: %w", err)
		}
		f.SetActiveSheet(0)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.path), ".export-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}

	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", e.path, err)
	}

	return nil
}

func writeSheet(f *excelize.File, name string, sheet Sheet, newStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	columns := sheetColumns(sheet)

	header := make([]any, 0, len(columns)+1)
	header = append(header, firstSeenHeader)
	for _, column := range columns {
		header = append(header, column)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}

	for i, p := range sheet.Postings {
		row := make([]any, 0, len(columns)+1)
		if p.FirstSeenAt != nil {
			row = append(row, p.FirstSeenAt.Format(jobs.PublishTimeLayout))
		} else {
			row = append(row, "")
		}
		for _, column := range columns {
			row = append(row, p.String(column))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, name, err)
		}

		if p.New() {
			last, err := excelize.CoordinatesToCellName(len(row), i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(name, cell, last, newStyle); err != nil {
				return fmt.Errorf("failed to highlight row %d of %s: %w", i+2, name, err)
			}
		}
	}

	return nil
}

// sheetColumns orders columns as schema fields, then the category's extra
// fields, then anything else found in the postings. Columns no posting uses
// are left out.
func sheetColumns(sheet Sheet) []string {
	present := make(map[string]bool)
	for _, p := range sheet.Postings {
		for key := range p.Fields {
			present[key] = true
		}
	}

	var columns []string
	seen := make(map[string]bool)
	add := func(name string) {
		if present[name] && !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	for _, name := range jobs.SchemaFields() {
		add(name)
	}
	for _, name := range sheet.ExtraFields {
		add(name)
	}

	var rest []string
	for key := range present {
		if !seen[key] && key != jobs.IsNewKey && key != jobs.FirstSeenKey {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)

	return append(columns, rest...)
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	if name == "" {
		name = "postings"
	}

	runes := []rune(name)
	if len(runes) > maxSheetNameLen {
		runes = runes[:maxSheetNameLen]
	}
	return string(runes)
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)] || strings.EqualFold(candidate, defaultSheet); n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(name)
		if len(runes)+len(suffix) > maxSheetNameLen {
			runes = runes[:maxSheetNameLen-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
