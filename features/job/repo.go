package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, opts ListOptions) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const jobColumns = `id, ticker, handler, payload, error, retries, created_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save records a failed task. When the same file already failed under the
// same handler, the earlier row is replaced and its retry counter carried
// forward, so repeated retries leave one row per file.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	retries := 0
	if path := payloadPath(job.Payload); path != "" {
		err = tx.QueryRowContext(ctx,
			`DELETE FROM failed_jobs WHERE handler = $1 AND payload->>'path' = $2 RETURNING retries`,
			job.Handler, path).Scan(&retries)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			retries = 0
		case err != nil:
			return fmt.Errorf("replace prior failure: %w", err)
		default:
			retries++
		}
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO failed_jobs (ticker, handler, payload, error, retries) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		job.Ticker, job.Handler, []byte(job.Payload), job.Error, retries).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return err
	}
	job.Retries = retries
	return tx.Commit()
}

func (r *PostgresRepo) List(ctx context.Context, opts ListOptions) ([]Job, error) {
	var (
		where []string
		args  []any
	)
	if opts.Ticker != "" {
		args = append(args, opts.Ticker)
		where = append(where, fmt.Sprintf("ticker = $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM failed_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM failed_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j, err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*Job, error) {
	var (
		j       Job
		payload []byte
	)
	if err := s.Scan(&j.ID, &j.Ticker, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

func payloadPath(payload []byte) string {
	var task struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(payload, &task); err != nil {
		return ""
	}
	return task.Path
}
