package consolidate

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/outreach/internal/domain/contacts"
	"github.com/careops/outreach/internal/domain/roster"
)

// MatchResult is the in-memory outcome of one matcher run. Records are in
// roster input order and there is exactly one per source record.
type MatchResult struct {
	Records             []ConsolidatedRecord
	Summary             RunSummary
	UnclaimedContactIDs []string
}

// Matcher reconciles roster records against the contact list.
type Matcher struct {
	logger zerolog.Logger
}

func NewMatcher(logger zerolog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match runs the three passes in priority order. Each pass only matches a
// source record when exactly one unclaimed contact qualifies; collisions are
// counted and deferred to the next pass. A claimed contact leaves the pool,
// so two sources sharing a phone resolve first-claimed-wins in input order.
func (m *Matcher) Match(sources []roster.SourceRecord, contactList []contacts.ContactRecord, startedAt time.Time) *MatchResult {
	idx := buildContactIndex(contactList)
	claimed := make([]bool, len(contactList))
	matched := make([]int, len(sources)) // contact position, -1 when unmatched
	methods := make([]MatchMethod, len(sources))
	for i := range matched {
		matched[i] = -1
		methods[i] = MatchUnmatched
	}

	summary := RunSummary{
		RunID:     uuid.New(),
		StartedAt: startedAt.UTC(),
		Total:     len(sources),
	}

	// Pass 1: phone.
	for i, src := range sources {
		key := normalizePhone(src.Phone)
		if key == "" {
			continue
		}
		switch pos, n := uniqueCandidate(idx.byPhone[key], claimed); n {
		case 1:
			claimed[pos] = true
			matched[i] = pos
			methods[i] = MatchPhone
			summary.MatchedPhone++
		default:
			if n > 1 {
				summary.AmbiguousPhone++
			}
		}
	}

	// Pass 2: name + date of birth.
	for i, src := range sources {
		if methods[i] != MatchUnmatched || src.DOB == "" {
			continue
		}
		key := normalizeName(src.Name) + "|" + src.DOB
		switch pos, n := uniqueCandidate(idx.byNameDOB[key], claimed); n {
		case 1:
			claimed[pos] = true
			matched[i] = pos
			methods[i] = MatchNameDOB
			summary.MatchedNameDOB++
		default:
			if n > 1 {
				summary.AmbiguousNameDOB++
			}
		}
	}

	// Pass 3: email.
	for i, src := range sources {
		if methods[i] != MatchUnmatched || src.Email == "" {
			continue
		}
		switch pos, n := uniqueCandidate(idx.byEmail[normalizeEmail(src.Email)], claimed); n {
		case 1:
			claimed[pos] = true
			matched[i] = pos
			methods[i] = MatchEmail
			summary.MatchedEmail++
		default:
			if n > 1 {
				summary.AmbiguousEmail++
			}
		}
	}

	matchedAt := startedAt.UTC().Format(time.RFC3339)
	result := &MatchResult{Records: make([]ConsolidatedRecord, 0, len(sources))}
	for i, src := range sources {
		rec := ConsolidatedRecord{
			SourceID:        src.SourceID,
			Name:            src.Name,
			DOB:             src.DOB,
			Phone:           src.Phone,
			Email:           src.Email,
			MRN:             src.MRN,
			APCM:            src.APCM,
			MatchMethod:     methods[i],
			MatchConfidence: methods[i].Confidence(),
			MatchedAt:       matchedAt,
		}
		if pos := matched[i]; pos >= 0 {
			id := contactList[pos].ID
			rec.MatchedContactID = &id
		} else {
			summary.Unmatched++
		}
		result.Records = append(result.Records, rec)
	}

	for pos, c := range contactList {
		if !claimed[pos] {
			result.UnclaimedContactIDs = append(result.UnclaimedContactIDs, c.ID)
		}
	}
	summary.UnclaimedContacts = len(result.UnclaimedContactIDs)
	result.Summary = summary

	m.logger.Info().
		Int("total", summary.Total).
		Int("matched_phone", summary.MatchedPhone).
		Int("matched_name_dob", summary.MatchedNameDOB).
		Int("matched_email", summary.MatchedEmail).
		Int("unmatched", summary.Unmatched).
		Int("ambiguous_phone", summary.AmbiguousPhone).
		Int("ambiguous_name_dob", summary.AmbiguousNameDOB).
		Int("ambiguous_email", summary.AmbiguousEmail).
		Int("unclaimed_contacts", summary.UnclaimedContacts).
		Msg("matching complete")

	return result
}

// contactIndex maps normalized keys to contact positions. A contact appears
// under every phone number it carries, under name|dob only when the platform
// exposes its date of birth, and under its email when present.
type contactIndex struct {
	byPhone   map[string][]int
	byNameDOB map[string][]int
	byEmail   map[string][]int
}

func buildContactIndex(contactList []contacts.ContactRecord) *contactIndex {
	idx := &contactIndex{
		byPhone:   make(map[string][]int),
		byNameDOB: make(map[string][]int),
		byEmail:   make(map[string][]int),
	}
	for pos, c := range contactList {
		seen := map[string]bool{}
		for _, p := range c.Phones {
			key := normalizePhone(p)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx.byPhone[key] = append(idx.byPhone[key], pos)
		}
		if c.DOB != "" {
			key := normalizeName(c.Name) + "|" + c.DOB
			idx.byNameDOB[key] = append(idx.byNameDOB[key], pos)
		}
		if c.Email != "" {
			key := normalizeEmail(c.Email)
			idx.byEmail[key] = append(idx.byEmail[key], pos)
		}
	}
	return idx
}

// uniqueCandidate filters claimed contacts out of the candidate list and
// returns the surviving position plus the count. Only n == 1 is a match.
func uniqueCandidate(candidates []int, claimed []bool) (int, int) {
	pos, n := -1, 0
	for _, c := range candidates {
		if claimed[c] {
			continue
		}
		pos = c
		n++
	}
	if n != 1 {
		return -1, n
	}
	return pos, 1
}
