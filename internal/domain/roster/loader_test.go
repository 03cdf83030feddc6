package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}
	return path
}

func testLoader() *Loader {
	return NewLoader(nil, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// CSV loading
// ---------------------------------------------------------------------------

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "roster.csv",
		"Patient Name,DOB,Cell Phone,Email\n"+
			"Jane Doe,1985-03-02,(555) 123-4567,jane@example.com\n"+
			"John Q Public,05/15/1960,000-000-0000,\n")

	result, err := testLoader().Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.RowsRead != 2 || result.RowsSkipped != 0 {
		t.Errorf("expected read=2 skipped=0, got read=%d skipped=%d", result.RowsRead, result.RowsSkipped)
	}

	jane := result.Records[0]
	if jane.SourceID != "roster:2" {
		t.Errorf("expected SourceID=roster:2, got %s", jane.SourceID)
	}
	if jane.Name != "Jane Doe" {
		t.Errorf("expected name Jane Doe, got %q", jane.Name)
	}
	if jane.Phone != "(555) 123-4567" {
		t.Errorf("unexpected phone: %q", jane.Phone)
	}

	john := result.Records[1]
	if john.DOB != "1960-05-15" {
		t.Errorf("expected DOB normalized to 1960-05-15, got %q", john.DOB)
	}
}

func TestLoadSkipsBlankRows(t *testing.T) {
	path := writeCSV(t, "roster.csv",
		"Name,Phone\n"+
			"Jane Doe,5551234567\n"+
			",\n"+
			"   ,\n"+
			"Bob Roe,5559876543\n")

	result, err := testLoader().Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.RowsSkipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", result.RowsSkipped)
	}
}

func TestLoadStripsBOM(t *testing.T) {
	path := writeCSV(t, "roster.csv", "\uFEFFName,Phone\nJane Doe,5551234567\n")

	result, err := testLoader().Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
}

// ---------------------------------------------------------------------------
// Error conditions
// ---------------------------------------------------------------------------

func TestLoadMissingFile(t *testing.T) {
	_, err := testLoader().Load(context.Background(), []string{"/nonexistent/roster.csv"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	path := writeCSV(t, "weird.csv", "Patient,Tel\nJane Doe,5551234567\n")

	_, err := testLoader().Load(context.Background(), []string{path})
	var sm *SchemaMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if sm.Field != FieldName {
		t.Errorf("expected mismatch on name, got %s", sm.Field)
	}
	msg := sm.Error()
	for _, want := range []string{"Patient", "Tel", "Patient Name", "Full Name"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message should list %q, got: %s", want, msg)
		}
	}
}

// ---------------------------------------------------------------------------
// Supplemental-file merge
// ---------------------------------------------------------------------------

func TestLoadMergesSupplementalFile(t *testing.T) {
	main := writeCSV(t, "roster.csv",
		"Patient Name,DOB,Phone\n"+
			"Jane Doe,1985-03-02,5551234567\n"+
			"Bob Roe,1970-01-01,5550001111\n")
	apcm := writeCSV(t, "apcm.csv",
		"Full Name,Date of Birth,APCM Eligible\n"+
			"Jane Doe,1985-03-02,Yes\n"+
			"New Person,1999-09-09,No\n")

	result, err := testLoader().Load(context.Background(), []string{main, apcm})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 3 {
		t.Fatalf("expected 3 records (2 + 1 new), got %d", len(result.Records))
	}

	jane := result.Records[0]
	if jane.APCM == nil || !*jane.APCM {
		t.Errorf("expected Jane's APCM flag merged as true, got %v", jane.APCM)
	}
	if jane.Phone != "5551234567" {
		t.Errorf("merge must not clobber existing fields, got phone %q", jane.Phone)
	}

	bob := result.Records[1]
	if bob.APCM != nil {
		t.Errorf("Bob has no supplemental row, APCM should be nil")
	}

	np := result.Records[2]
	if np.Name != "New Person" {
		t.Errorf("expected appended record New Person, got %q", np.Name)
	}
	if np.APCM == nil || *np.APCM {
		t.Errorf("expected New Person APCM=false, got %v", np.APCM)
	}
}

// ---------------------------------------------------------------------------
// XLSX loading
// ---------------------------------------------------------------------------

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := map[string]string{
		"A1": "Patient Name", "B1": "DOB", "C1": "Phone",
		"A2": "Jane Doe", "B2": "1985-03-02", "C2": "5551234567",
	}
	for ref, val := range cells {
		if err := f.SetCellValue(sheet, ref, val); err != nil {
			t.Fatalf("SetCellValue: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	result, err := testLoader().Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].SourceID != "roster:2" {
		t.Errorf("unexpected SourceID: %s", result.Records[0].SourceID)
	}
}

// ---------------------------------------------------------------------------
// Alias table
// ---------------------------------------------------------------------------

func TestLoadAliasesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	content := `{"name": ["Member"], "phone": ["Contact Number"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write aliases: %v", err)
	}

	table, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table[FieldName]) != 1 || table[FieldName][0] != "Member" {
		t.Errorf("expected name aliases overridden, got %v", table[FieldName])
	}
	// Untouched fields keep defaults.
	if len(table[FieldDOB]) == 0 {
		t.Error("expected default dob aliases preserved")
	}

	csvPath := writeCSV(t, "roster.csv", "Member,Contact Number\nJane Doe,5551234567\n")
	result, err := NewLoader(table, zerolog.Nop()).Load(context.Background(), []string{csvPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Records[0].Phone != "5551234567" {
		t.Errorf("custom alias not applied, phone=%q", result.Records[0].Phone)
	}
}

func TestNormalizeDOB(t *testing.T) {
	cases := map[string]string{
		"1985-03-02":   "1985-03-02",
		"05/15/1960":   "1960-05-15",
		"1/2/1960":     "1960-01-02",
		"Jan 2, 1960":  "1960-01-02",
		"not-a-date":   "not-a-date",
		"  1985-03-02": "1985-03-02",
		"":             "",
	}
	for in, want := range cases {
		if got := normalizeDOB(in); got != want {
			t.Errorf("normalizeDOB(%q) = %q, want %q", in, got, want)
		}
	}
}
