package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Field names the logical columns a roster file can carry.
const (
	FieldName  = "name"
	FieldDOB   = "dob"
	FieldPhone = "phone"
	FieldEmail = "email"
	FieldMRN   = "mrn"
	FieldAPCM  = "apcm"
)

// ErrSourceUnavailable marks a roster file that is missing or unreadable.
// The pipeline treats it as fatal before any contact fetch happens.
var ErrSourceUnavailable = errors.New("roster source unavailable")

// SchemaMismatchError reports a required column that could not be resolved
// through the alias table. It lists what the file actually contains and what
// was tried, so the operator can extend the alias table instead of guessing.
type SchemaMismatchError struct {
	File         string
	Field        string
	FoundColumns []string
	TriedAliases []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: required column %q not found; file has columns [%s], tried aliases [%s]",
		e.File, e.Field,
		strings.Join(e.FoundColumns, ", "),
		strings.Join(e.TriedAliases, ", "))
}

// AliasTable maps a logical field to the column headings that may carry it.
// Matching is case-insensitive on trimmed headings.
type AliasTable map[string][]string

// DefaultAliases covers the roster exports seen in practice.
func DefaultAliases() AliasTable {
	return AliasTable{
		FieldName:  {"Patient Name", "Full Name", "Name"},
		FieldDOB:   {"DOB", "Date of Birth", "Birth Date", "Birthdate"},
		FieldPhone: {"Phone", "Cell Phone", "Phone Number", "Mobile"},
		FieldEmail: {"Email", "Email Address", "E-mail"},
		FieldMRN:   {"MRN", "Medical Record Number", "Record Number"},
		FieldAPCM:  {"APCM", "APCM Eligible", "Eligibility"},
	}
}

// LoadAliases reads an alias table from a JSON file. Fields absent from the
// file fall back to the defaults.
func LoadAliases(path string) (AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file %s: %w", path, err)
	}
	var custom AliasTable
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	table := DefaultAliases()
	for field, aliases := range custom {
		table[field] = aliases
	}
	return table, nil
}

// resolveColumns maps logical fields to column indexes in the given header
// row. Only the name field is required; everything else resolves to -1 when
// absent.
func resolveColumns(file string, header []string, aliases AliasTable) (map[string]int, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	cols := make(map[string]int, len(aliases))
	for field, candidates := range aliases {
		cols[field] = -1
		for _, cand := range candidates {
			want := strings.ToLower(strings.TrimSpace(cand))
			for i, h := range normalized {
				if h == want {
					cols[field] = i
					break
				}
			}
			if cols[field] >= 0 {
				break
			}
		}
	}

	if cols[FieldName] < 0 {
		return nil, &SchemaMismatchError{
			File:         file,
			Field:        FieldName,
			FoundColumns: header,
			TriedAliases: aliases[FieldName],
		}
	}
	return cols, nil
}
