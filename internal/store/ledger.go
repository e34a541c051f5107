package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Submission is one recorded handoff of a planned batch to the farm.
type Submission struct {
	Token       string
	BatchName   string
	Entity      string
	Department  string
	Variant     string
	User        string
	Fingerprint string
	SubmittedAt time.Time
	Jobs        []SubmissionJob
}

// SubmissionJob is one job of a recorded submission, in submission order.
type SubmissionJob struct {
	Name   string
	Kind   string
	FarmID string
}

// RecordSubmission writes the submission header and its job rows in one
// transaction. Idempotent on retry: a token already in the ledger leaves
// it untouched and reports inserted=false.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (inserted bool, err error) {
	if sub.Token == "" {
		return false, fmt.Errorf("record submission: empty token")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record submission: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO submissions
		(token, batch_name, entity, department, variant, user, fingerprint, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		sub.Token,
		sub.BatchName,
		sub.Entity,
		sub.Department,
		sub.Variant,
		sub.User,
		sub.Fingerprint,
		sub.SubmittedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("record submission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record submission: rows affected: %w", err)
	}
	if rows == 0 {
		// Token already recorded; the jobs landed with it.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("record submission: commit (existing): %w", err)
		}
		return false, nil
	}

	if err := appendJobs(ctx, tx, sub.Token, sub.Jobs); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record submission: commit: %w", err)
	}
	return true, nil
}

// appendJobs inserts the job rows of a submission within the caller's
// transaction, preserving submission order via the position column.
func appendJobs(ctx context.Context, tx *sql.Tx, token string, jobs []SubmissionJob) error {
	for i, job := range jobs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO submission_jobs
			(submission_token, position, name, kind, farm_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(submission_token, position) DO NOTHING
		`, token, i, job.Name, job.Kind, job.FarmID)
		if err != nil {
			return fmt.Errorf("record submission: job %q: %w", job.Name, err)
		}
	}
	return nil
}

// GetSubmission retrieves one recorded submission with its jobs.
// ok=false means the token was never recorded.
func (s *Store) GetSubmission(ctx context.Context, token string) (Submission, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, batch_name, entity, department, variant, user, fingerprint, submitted_at
		FROM submissions
		WHERE token = ?
	`, token)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, err
	}

	sub.Jobs, err = s.submissionJobs(ctx, token)
	if err != nil {
		return Submission{}, false, err
	}
	return sub, true, nil
}

// Filter selects ledger rows. Zero-valued fields do not constrain;
// Limit <= 0 means unlimited.
type Filter struct {
	Entity     string
	Department string
	User       string
	Since      time.Time
	Limit      int
}

// QuerySubmissions returns recorded submissions matching the filter,
// newest first with the token as a deterministic tiebreaker. All filter
// values are parameterized, never interpolated.
func (s *Store) QuerySubmissions(ctx context.Context, f Filter) ([]Submission, error) {
	var conds []string
	var params []any
	if f.Entity != "" {
		conds = append(conds, "entity = ?")
		params = append(params, f.Entity)
	}
	if f.Department != "" {
		conds = append(conds, "department = ?")
		params = append(params, f.Department)
	}
	if f.User != "" {
		conds = append(conds, "user = ?")
		params = append(params, f.User)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "submitted_at >= ?")
		params = append(params, f.Since.UTC().Format(time.RFC3339))
	}

	query := `
		SELECT token, batch_name, entity, department, variant, user, fingerprint, submitted_at
		FROM submissions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY submitted_at DESC, token COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}

	// Job rows are fetched after the header rows are drained: the store
	// runs on a single connection, so nested queries would block.
	for i := range subs {
		subs[i].Jobs, err = s.submissionJobs(ctx, subs[i].Token)
		if err != nil {
			return nil, err
		}
	}

	if subs == nil {
		subs = []Submission{}
	}
	return subs, nil
}

// submissionJobs returns a submission's job rows in submission order.
func (s *Store) submissionJobs(ctx context.Context, token string) ([]SubmissionJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, farm_id
		FROM submission_jobs
		WHERE submission_token = ?
		ORDER BY position ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query submission jobs: %w", err)
	}
	defer rows.Close()

	var jobs []SubmissionJob
	for rows.Next() {
		var job SubmissionJob
		if err := rows.Scan(&job.Name, &job.Kind, &job.FarmID); err != nil {
			return nil, fmt.Errorf("scan submission job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission jobs: %w", err)
	}
	return jobs, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var submittedAt string
	err := row.Scan(
		&sub.Token,
		&sub.BatchName,
		&sub.Entity,
		&sub.Department,
		&sub.Variant,
		&sub.User,
		&sub.Fingerprint,
		&submittedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, err
	}
	if err != nil {
		return Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	sub.SubmittedAt, err = time.Parse(time.RFC3339, submittedAt)
	if err != nil {
		return Submission{}, fmt.Errorf("scan submission %s: bad timestamp %q: %w", sub.Token, submittedAt, err)
	}
	return sub, nil
}
