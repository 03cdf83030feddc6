package roster

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// dobLayouts are tried in order when normalizing a date of birth. Unparseable
// values are kept verbatim (trimmed) — equality matching still works as long
// as both sides use the same format.
var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
}

// Loader parses roster export files into SourceRecords.
type Loader struct {
	aliases AliasTable
	logger  zerolog.Logger
}

// NewLoader creates a Loader with the given alias table. A nil table falls
// back to DefaultAliases.
func NewLoader(aliases AliasTable, logger zerolog.Logger) *Loader {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Loader{aliases: aliases, logger: logger}
}

// Load reads every file in order and returns the merged record set. Rows from
// later files whose identity (name+dob) matches an earlier record merge their
// non-empty fields into it — a second export often carries only an
// eligibility flag for patients already listed. File order is preserved so
// downstream reporting is deterministic.
func (l *Loader) Load(ctx context.Context, paths []string) (*LoadResult, error) {
	result := &LoadResult{}
	index := make(map[string]int) // identityKey -> position in result.Records

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, read, skipped, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		result.RowsRead += read
		result.RowsSkipped += skipped

		for _, rec := range records {
			key := rec.identityKey()
			if pos, ok := index[key]; ok {
				mergeRecord(&result.Records[pos], &rec)
				continue
			}
			index[key] = len(result.Records)
			result.Records = append(result.Records, rec)
		}
	}

	l.logger.Info().
		Int("files", len(paths)).
		Int("rows_read", result.RowsRead).
		Int("rows_skipped", result.RowsSkipped).
		Int("records", len(result.Records)).
		Msg("roster loaded")

	return result, nil
}

func (l *Loader) loadFile(path string) ([]SourceRecord, int, int, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: %s is empty", ErrSourceUnavailable, path)
	}

	cols, err := resolveColumns(filepath.Base(path), rows[0], l.aliases)
	if err != nil {
		return nil, 0, 0, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var records []SourceRecord
	read, skipped := 0, 0

	for i, row := range rows[1:] {
		read++
		rec := SourceRecord{
			SourceID: fmt.Sprintf("%s:%d", stem, i+2), // 1-based, after header
			Name:     strings.TrimSpace(cell(row, cols[FieldName])),
			DOB:      normalizeDOB(cell(row, cols[FieldDOB])),
			Phone:    strings.TrimSpace(cell(row, cols[FieldPhone])),
			Email:    strings.TrimSpace(cell(row, cols[FieldEmail])),
			MRN:      strings.TrimSpace(cell(row, cols[FieldMRN])),
		}
		if v := strings.TrimSpace(cell(row, cols[FieldAPCM])); v != "" {
			flag := parseFlag(v)
			rec.APCM = &flag
		}
		if rec.Name == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, read, skipped, nil
}

// readRows returns all rows of a roster file including the header. CSV and
// XLSX (first sheet) are supported.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	default:
		return readCSV(path)
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // exports are ragged more often than not
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrSourceUnavailable, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return rows, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func normalizeDOB(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true", "1", "eligible":
		return true
	}
	return false
}

// mergeRecord copies non-empty fields from src into dst without overwriting
// values dst already has.
func mergeRecord(dst, src *SourceRecord) {
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.MRN == "" {
		dst.MRN = src.MRN
	}
	if dst.APCM == nil {
		dst.APCM = src.APCM
	}
}
