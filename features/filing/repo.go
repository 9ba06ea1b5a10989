package filing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	facts "tenkindex/internal/filing"
)

type Repository interface {
	Upsert(ctx context.Context, f *Filing) error
	Get(ctx context.Context, ticker string) (*Filing, error)
	List(ctx context.Context, opts ListOptions) ([]Filing, error)
	Comparables(ctx context.Context, sector, excludeTicker string, minRevenue, maxRevenue float64, limit int) ([]Filing, error)
	Delete(ctx context.Context, ticker string) error
	Count(ctx context.Context) (int, error)
}

const filingColumns = `id, ticker, company_name, filing_year, ` +
	`cik, commission_file_number, exchange, ticker_symbols, ` +
	`revenue, gross_profit, operating_income, net_income, total_assets, total_liabilities, shareholders_equity, cash_and_equivalents, employees, ` +
	`industry, sector, ` +
	`gross_margin, operating_margin, net_margin, roe, roa, revenue_per_employee, debt_to_equity, ` +
	`chunk_count, source_path, created_at, updated_at`

const upsertFiling = `INSERT INTO filings (ticker, company_name, filing_year, ` +
	`cik, commission_file_number, exchange, ticker_symbols, ` +
	`revenue, gross_profit, operating_income, net_income, total_assets, total_liabilities, shareholders_equity, cash_and_equivalents, employees, ` +
	`industry, sector, ` +
	`gross_margin, operating_margin, net_margin, roe, roa, revenue_per_employee, debt_to_equity, ` +
	`chunk_count, source_path) ` +
	`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27) ` +
	`ON CONFLICT (ticker, filing_year) DO UPDATE SET ` +
	`company_name = EXCLUDED.company_name, ` +
	`cik = EXCLUDED.cik, commission_file_number = EXCLUDED.commission_file_number, ` +
	`exchange = EXCLUDED.exchange, ticker_symbols = EXCLUDED.ticker_symbols, ` +
	`revenue = EXCLUDED.revenue, gross_profit = EXCLUDED.gross_profit, operating_income = EXCLUDED.operating_income, ` +
	`net_income = EXCLUDED.net_income, total_assets = EXCLUDED.total_assets, total_liabilities = EXCLUDED.total_liabilities, ` +
	`shareholders_equity = EXCLUDED.shareholders_equity, cash_and_equivalents = EXCLUDED.cash_and_equivalents, employees = EXCLUDED.employees, ` +
	`industry = EXCLUDED.industry, sector = EXCLUDED.sector, ` +
	`gross_margin = EXCLUDED.gross_margin, operating_margin = EXCLUDED.operating_margin, net_margin = EXCLUDED.net_margin, ` +
	`roe = EXCLUDED.roe, roa = EXCLUDED.roa, revenue_per_employee = EXCLUDED.revenue_per_employee, debt_to_equity = EXCLUDED.debt_to_equity, ` +
	`chunk_count = EXCLUDED.chunk_count, source_path = EXCLUDED.source_path, updated_at = NOW() ` +
	`RETURNING id, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert inserts the filing or replaces the stored one for the same ticker and
// year. A record without a year is stored under year 0.
func (r *PostgresRepo) Upsert(ctx context.Context, f *Filing) error {
	rec := &f.Record
	var year int
	if rec.FilingYear != nil {
		year = *rec.FilingYear
	}
	industry, sector := rec.Industry, rec.Sector
	if industry == "" {
		industry = facts.Other
	}
	if sector == "" {
		sector = facts.Other
	}
	symbols := rec.TickerSymbols
	if symbols == nil {
		symbols = []string{}
	}

	err := r.db.QueryRowContext(ctx, upsertFiling,
		rec.Ticker, rec.CompanyName, year,
		rec.CIK, rec.CommissionFile, rec.Exchange, pq.StringArray(symbols),
		nullable(rec.Revenue), nullable(rec.GrossProfit), nullable(rec.OperatingIncome), nullable(rec.NetIncome),
		nullable(rec.TotalAssets), nullable(rec.TotalLiabilities), nullable(rec.ShareholdersEquity), nullable(rec.CashAndEquivalents),
		nullable(rec.Employees),
		industry, sector,
		nullable(rec.GrossMargin), nullable(rec.OperatingMargin), nullable(rec.NetMargin),
		nullable(rec.ROE), nullable(rec.ROA), nullable(rec.RevenuePerEmployee), nullable(rec.DebtToEquity),
		f.ChunkCount, f.SourcePath,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert filing %s: %w", rec.Ticker, err)
	}
	return nil
}

// SaveRecord persists the outcome of one ingestion run.
func (r *PostgresRepo) SaveRecord(ctx context.Context, rec *facts.Record, chunkCount int, sourcePath string) error {
	return r.Upsert(ctx, &Filing{Record: *rec, ChunkCount: chunkCount, SourcePath: sourcePath})
}

// Get returns the most recent filing year stored for ticker.
func (r *PostgresRepo) Get(ctx context.Context, ticker string) (*Filing, error) {
	query := `SELECT ` + filingColumns + ` FROM filings WHERE ticker = $1 ORDER BY filing_year DESC LIMIT 1`
	f, err := scanFiling(r.db.QueryRowContext(ctx, query, ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepo) List(ctx context.Context, opts ListOptions) ([]Filing, error) {
	query := `SELECT ` + filingColumns + ` FROM filings`
	var args []any
	if opts.Sector != "" {
		query += ` WHERE sector = $1`
		args = append(args, opts.Sector)
	}
	query += fmt.Sprintf(` ORDER BY ticker, filing_year DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Comparables returns the latest filing of every other company in sector whose
// revenue lies in [minRevenue, maxRevenue], largest first. A company is judged
// by its latest filing only; older years never stand in for it.
func (r *PostgresRepo) Comparables(ctx context.Context, sector, excludeTicker string, minRevenue, maxRevenue float64, limit int) ([]Filing, error) {
	query := `SELECT ` + filingColumns + ` FROM (` +
		`SELECT DISTINCT ON (ticker) ` + filingColumns + ` FROM filings ` +
		`ORDER BY ticker, filing_year DESC` +
		`) latest ` +
		`WHERE sector = $1 AND ticker <> $2 AND revenue BETWEEN $3 AND $4 ` +
		`ORDER BY revenue DESC LIMIT $5`

	rows, err := r.db.QueryContext(ctx, query, sector, excludeTicker, minRevenue, maxRevenue, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *PostgresRepo) Delete(ctx context.Context, ticker string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM filings WHERE ticker = $1`, ticker)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM filings`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(s rowScanner) (*Filing, error) {
	var f Filing
	var year int
	rec := &f.Record
	err := s.Scan(
		&f.ID, &rec.Ticker, &rec.CompanyName, &year,
		&rec.CIK, &rec.CommissionFile, &rec.Exchange, pq.Array(&rec.TickerSymbols),
		&rec.Revenue, &rec.GrossProfit, &rec.OperatingIncome, &rec.NetIncome,
		&rec.TotalAssets, &rec.TotalLiabilities, &rec.ShareholdersEquity, &rec.CashAndEquivalents,
		&rec.Employees,
		&rec.Industry, &rec.Sector,
		&rec.GrossMargin, &rec.OperatingMargin, &rec.NetMargin,
		&rec.ROE, &rec.ROA, &rec.RevenuePerEmployee, &rec.DebtToEquity,
		&f.ChunkCount, &f.SourcePath, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if year > 0 {
		rec.FilingYear = &year
	}
	if len(rec.TickerSymbols) == 0 {
		rec.TickerSymbols = nil
	}
	return &f, nil
}

func collect(rows *sql.Rows) ([]Filing, error) {
	var out []Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
