package consolidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const runCols = `id, started_at, total, matched_phone, matched_name_dob, matched_email,
	unmatched, ambiguous_phone, ambiguous_name_dob, ambiguous_email, unclaimed_contacts`

func scanRun(row pgx.Row) (*RunSummary, error) {
	var s RunSummary
	err := row.Scan(&s.RunID, &s.StartedAt, &s.Total,
		&s.MatchedPhone, &s.MatchedNameDOB, &s.MatchedEmail, &s.Unmatched,
		&s.AmbiguousPhone, &s.AmbiguousNameDOB, &s.AmbiguousEmail, &s.UnclaimedContacts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return &s, err
}

const recordCols = `source_id, name, dob, phone, email, mrn, apcm,
	matched_contact_id, match_method, match_confidence, matched_at`

func scanRecord(row pgx.Row) (ConsolidatedRecord, error) {
	var rec ConsolidatedRecord
	err := row.Scan(&rec.SourceID, &rec.Name, &rec.DOB, &rec.Phone, &rec.Email,
		&rec.MRN, &rec.APCM, &rec.MatchedContactID,
		&rec.MatchMethod, &rec.MatchConfidence, &rec.MatchedAt)
	return rec, err
}

func (r *repoPG) SaveRun(ctx context.Context, summary *RunSummary, records []ConsolidatedRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if summary.RunID == uuid.Nil {
		summary.RunID = uuid.New()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (`+runCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		summary.RunID, summary.StartedAt, summary.Total,
		summary.MatchedPhone, summary.MatchedNameDOB, summary.MatchedEmail, summary.Unmatched,
		summary.AmbiguousPhone, summary.AmbiguousNameDOB, summary.AmbiguousEmail,
		summary.UnclaimedContacts)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for pos, rec := range records {
		_, err = tx.Exec(ctx, `
			INSERT INTO consolidated_records (run_id, position, `+recordCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			summary.RunID, pos,
			rec.SourceID, rec.Name, rec.DOB, rec.Phone, rec.Email, rec.MRN, rec.APCM,
			rec.MatchedContactID, rec.MatchMethod, rec.MatchConfidence, rec.MatchedAt)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *repoPG) GetRun(ctx context.Context, id uuid.UUID) (*RunSummary, error) {
	return scanRun(r.pool.QueryRow(ctx, `SELECT `+runCols+` FROM runs WHERE id = $1`, id))
}

func (r *repoPG) ListRuns(ctx context.Context, limit, offset int) ([]*RunSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+runCols+` FROM runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) LatestRun(ctx context.Context) (*RunSummary, error) {
	return scanRun(r.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM runs ORDER BY started_at DESC, created_at DESC LIMIT 1`))
}

func (r *repoPG) ListRecords(ctx context.Context, method MatchMethod, limit, offset int) ([]ConsolidatedRecord, int, error) {
	latest, err := r.LatestRun(ctx)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	where := `WHERE run_id = $1`
	args := []interface{}{latest.RunID}
	if method != "" {
		where += ` AND match_method = $2`
		args = append(args, method)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM consolidated_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+recordCols+` FROM consolidated_records %s
		ORDER BY position LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ConsolidatedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
