// Package pipeline runs one consolidation pass end to end: load the roster
// files, fetch the contact list, match, write the master document, then
// optionally persist the run to Postgres and mirror the document to object
// storage. Any failure before the write leaves the previous master document
// untouched.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/careops/outreach/internal/domain/consolidate"
	"github.com/careops/outreach/internal/domain/contacts"
	"github.com/careops/outreach/internal/domain/roster"
	"github.com/careops/outreach/internal/platform/blobsync"
)

// Pipeline wires the stages together. Repository and Syncer are optional;
// when nil the corresponding stage is skipped.
type Pipeline struct {
	loader  *roster.Loader
	client  *contacts.Client
	matcher *consolidate.Matcher
	writer  *consolidate.Writer
	repo    consolidate.Repository
	syncer  *blobsync.Syncer
	logger  zerolog.Logger

	// now is swappable in tests.
	now func() time.Time
}

func New(loader *roster.Loader, client *contacts.Client, matcher *consolidate.Matcher, writer *consolidate.Writer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		loader:  loader,
		client:  client,
		matcher: matcher,
		writer:  writer,
		logger:  logger,
		now:     time.Now,
	}
}

// WithRepository enables persisting each run to the Postgres store.
func (p *Pipeline) WithRepository(repo consolidate.Repository) *Pipeline {
	p.repo = repo
	return p
}

// WithSyncer enables mirroring the master document to object storage after
// each successful write.
func (p *Pipeline) WithSyncer(s *blobsync.Syncer) *Pipeline {
	p.syncer = s
	return p
}

// Run executes one consolidation pass over the given roster files. The stage
// order is load, fetch, match, write: a roster problem aborts before any
// contact request and a fetch problem aborts before any write, so the master
// document on disk is either the previous run's or this run's, never a blend.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*consolidate.RunSummary, error) {
	startedAt := p.now()

	loaded, err := p.loader.Load(ctx, paths)
	if err != nil {
		return nil, err
	}

	contactList, err := p.client.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	result := p.matcher.Match(loaded.Records, contactList, startedAt)

	if _, err := p.writer.WriteRecords(result.Records); err != nil {
		return nil, err
	}

	if p.repo != nil {
		if err := p.repo.SaveRun(ctx, &result.Summary, result.Records); err != nil {
			return &result.Summary, fmt.Errorf("persist run: %w", err)
		}
	}

	if p.syncer != nil {
		if _, err := p.syncer.Push(ctx, p.writer.Path()); err != nil {
			return &result.Summary, fmt.Errorf("sync master document: %w", err)
		}
	}

	p.logger.Info().
		Str("run_id", result.Summary.RunID.String()).
		Int("total", result.Summary.Total).
		Int("matched", result.Summary.Matched()).
		Int("unmatched", result.Summary.Unmatched).
		Msg("consolidation run complete")

	return &result.Summary, nil
}

// PrintSummary writes the aggregate counts to w. Counts only; record-level
// fields never reach stdout.
func PrintSummary(w io.Writer, s *consolidate.RunSummary) {
	fmt.Fprintf(w, "matched_phone:    %d\n", s.MatchedPhone)
	fmt.Fprintf(w, "matched_name_dob: %d\n", s.MatchedNameDOB)
	fmt.Fprintf(w, "matched_email:    %d\n", s.MatchedEmail)
	fmt.Fprintf(w, "unmatched:        %d\n", s.Unmatched)
	fmt.Fprintf(w, "total:            %d\n", s.Total)
}
