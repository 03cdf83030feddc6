// Package roster loads tabular patient-roster exports (CSV or XLSX) into
// normalized in-memory records. Export files name their columns
// inconsistently, so column resolution goes through a configurable alias
// table and fails fast when a required column cannot be found.
package roster

import "strings"

// SourceRecord is one row of a patient roster export. Only the name is
// guaranteed; every other field is optional and merely reduces the record's
// matchability downstream when absent.
type SourceRecord struct {
	// SourceID is "<file-stem>:<row>" — stable across identical inputs and
	// free of identifying information.
	SourceID string `json:"sourceId"`
	Name     string `json:"name"`
	DOB      string `json:"dob,omitempty"` // normalized to YYYY-MM-DD when parseable
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	MRN      string `json:"mrn,omitempty"`
	APCM     *bool  `json:"apcm,omitempty"`
}

// identityKey is used to merge supplemental files (e.g. an eligibility-only
// export) into records loaded earlier. Name is case/whitespace-insensitive.
func (r *SourceRecord) identityKey() string {
	name := strings.ToLower(strings.Join(strings.Fields(r.Name), " "))
	return name + "|" + r.DOB
}

// LoadResult is the outcome of loading one or more roster files.
type LoadResult struct {
	Records     []SourceRecord
	RowsRead    int
	RowsSkipped int
}
