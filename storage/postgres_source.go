package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"leadboard/models"
	"leadboard/source"
)

// PostgresSource serves the upstream page contract straight from a
// writable PostgreSQL copy of the conversation store. The schema is created
// on connect, so the role needs CREATE rights.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresSource.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	return openSource("postgres", dsn, 10, 2*time.Second)
}

// openSource pings up to attempts times, then migrates. The pool is closed
// on every failure path.
func openSource(driverName, dsn string, attempts int, backoff time.Duration) (*PostgresSource, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(backoff)
		}
		if err = db.Ping(); err == nil {
			break
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresSource{db: db}
	if err := ps.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresSource) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS records (
			id               TEXT        NOT NULL,
			account_id       TEXT        NOT NULL REFERENCES accounts(id),
			kind             VARCHAR(20) NOT NULL,
			phone            TEXT        NOT NULL DEFAULT '',
			email            TEXT        NOT NULL DEFAULT '',
			name             TEXT        NOT NULL DEFAULT '',
			profile_name     TEXT        NOT NULL DEFAULT '',
			status           TEXT        NOT NULL DEFAULT '',
			message_count    INTEGER     NOT NULL DEFAULT 0,
			messages         JSONB       NOT NULL DEFAULT '[]',
			matched_keywords TEXT[]      NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ,
			last_activity_at TIMESTAMPTZ,
			PRIMARY KEY (account_id, kind, id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_account_kind ON records(account_id, kind, created_at);
	`)
	return err
}

// ListAccounts returns every account, ordered by id.
func (ps *PostgresSource) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := ps.db.QueryContext(ctx, `SELECT id, name FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: %v", source.ErrAccountsUnavailable, err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const pageQuery = `
	SELECT id, account_id, kind, phone, email, name, profile_name, status,
	       message_count, messages, matched_keywords, created_at, last_activity_at
	FROM records
	WHERE account_id = $1 AND kind = $2
	ORDER BY created_at NULLS LAST, id
	LIMIT $3 OFFSET $4
`

// pageBounds converts a 1-based page into LIMIT/OFFSET.
func pageBounds(page, limit int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// totalPages mirrors the upstream: at least one page, even when empty.
func totalPages(total, limit int) int {
	if limit < 1 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// FetchPage serves one page of an account's collection.
func (ps *PostgresSource) FetchPage(ctx context.Context, req source.PageRequest) (*models.Page, error) {
	var total int
	if err := ps.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE account_id = $1 AND kind = $2`,
		req.AccountID, string(req.Kind),
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count %s/%s: %w", req.AccountID, req.Kind, err)
	}

	limit, offset := pageBounds(req.Page, req.Limit)
	rows, err := ps.db.QueryContext(ctx, pageQuery, req.AccountID, string(req.Kind), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: page %s/%s: %w", req.AccountID, req.Kind, err)
	}
	defer rows.Close()

	page := &models.Page{Items: make([]models.RawRecord, 0, limit)}
	for rows.Next() {
		var (
			r         models.RawRecord
			kind      string
			messages  []byte
			keywords  pq.StringArray
			createdAt sql.NullTime
			activeAt  sql.NullTime
		)
		if err := rows.Scan(
			&r.ID, &r.AccountID, &kind, &r.Phone, &r.Email, &r.Name, &r.ProfileName, &r.Status,
			&r.MessageCount, &messages, &keywords, &createdAt, &activeAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		r.Kind = models.RecordKind(kind)
		r.MatchedKeywords = []string(keywords)
		if createdAt.Valid {
			r.CreatedAt = models.Timestamp{Time: createdAt.Time}
		}
		if activeAt.Valid {
			r.LastActivityAt = models.Timestamp{Time: activeAt.Time}
		}
		if len(messages) > 0 {
			if err := json.Unmarshal(messages, &r.Messages); err != nil {
				return nil, fmt.Errorf("postgres: decode messages of %s: %w", r.ID, err)
			}
		}
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate page: %w", err)
	}

	page.Pagination.Total = total
	page.Pagination.TotalPages = totalPages(total, limit)
	return page, nil
}

func (ps *PostgresSource) Close() error {
	return ps.db.Close()
}
