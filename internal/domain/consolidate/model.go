// Package consolidate joins the patient roster with the messaging platform's
// contact list. The matcher runs three sequential passes (phone, name+dob,
// email), each requiring a unique unclaimed candidate, and the writer emits
// the result as a byte-stable JSON master document.
package consolidate

import (
	"time"

	"github.com/google/uuid"
)

// MatchMethod records which pass associated a record with a contact.
type MatchMethod string

const (
	MatchPhone     MatchMethod = "phone"
	MatchNameDOB   MatchMethod = "name_dob"
	MatchEmail     MatchMethod = "email"
	MatchUnmatched MatchMethod = "unmatched"
)

// Confidence is the ordinal implied by the pass order: phone > name+dob >
// email > unmatched.
func (m MatchMethod) Confidence() int {
	switch m {
	case MatchPhone:
		return 3
	case MatchNameDOB:
		return 2
	case MatchEmail:
		return 1
	}
	return 0
}

// Valid reports whether m is one of the four known methods.
func (m MatchMethod) Valid() bool {
	switch m {
	case MatchPhone, MatchNameDOB, MatchEmail, MatchUnmatched:
		return true
	}
	return false
}

// ConsolidatedRecord is one roster entry annotated with its match outcome.
// MatchedContactID is null when unmatched. MatchedAt is shared by every
// record of a run so that identical inputs render identical bytes.
type ConsolidatedRecord struct {
	SourceID         string      `json:"sourceId"`
	Name             string      `json:"name"`
	DOB              string      `json:"dob,omitempty"`
	Phone            string      `json:"phone,omitempty"`
	Email            string      `json:"email,omitempty"`
	MRN              string      `json:"mrn,omitempty"`
	APCM             *bool       `json:"apcm,omitempty"`
	MatchedContactID *string     `json:"matchedContactId"`
	MatchMethod      MatchMethod `json:"matchMethod"`
	MatchConfidence  int         `json:"matchConfidence"`
	MatchedAt        string      `json:"matchedAt"`
}

// RunSummary is the aggregate outcome of one pipeline run. It carries counts
// only, never record-level fields, so it is safe to log and print.
type RunSummary struct {
	RunID             uuid.UUID `json:"runId"`
	StartedAt         time.Time `json:"startedAt"`
	Total             int       `json:"total"`
	MatchedPhone      int       `json:"matchedPhone"`
	MatchedNameDOB    int       `json:"matchedNameDob"`
	MatchedEmail      int       `json:"matchedEmail"`
	Unmatched         int       `json:"unmatched"`
	AmbiguousPhone    int       `json:"ambiguousPhone"`
	AmbiguousNameDOB  int       `json:"ambiguousNameDob"`
	AmbiguousEmail    int       `json:"ambiguousEmail"`
	UnclaimedContacts int       `json:"unclaimedContacts"`
}

// Matched returns the number of records associated with a contact.
func (s *RunSummary) Matched() int {
	return s.MatchedPhone + s.MatchedNameDOB + s.MatchedEmail
}
