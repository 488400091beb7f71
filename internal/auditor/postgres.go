// internal/auditor/postgres.go
package auditor

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore persists audit records in Postgres. The table carries no
// UPDATE or DELETE path; retention/pruning is an external policy concern.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a store over the given DSN
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the audit table if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS continuity_audit (
			audit_id     TEXT PRIMARY KEY,
			created_at   TIMESTAMPTZ NOT NULL,
			plan_id      TEXT NOT NULL,
			execution_id TEXT,
			report_id    TEXT,
			manifest     JSONB NOT NULL,
			digest       TEXT NOT NULL,
			signature    TEXT,
			supersedes   TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Append inserts a record. The primary key makes overwrite impossible.
func (s *PostgresStore) Append(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO continuity_audit (
			audit_id, created_at, plan_id, execution_id, report_id,
			manifest, digest, signature, supersedes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.AuditID,
		record.CreatedAt,
		record.PlanID,
		nullString(record.ExecutionID),
		nullString(record.ReportID),
		[]byte(record.Manifest),
		record.Digest,
		nullString(record.Signature),
		nullString(record.Supersedes),
	)
	if err != nil {
		return fmt.Errorf("store: insert audit record: %w", err)
	}
	return nil
}

// Get fetches a record by ID
func (s *PostgresStore) Get(ctx context.Context, auditID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT audit_id, created_at, plan_id, execution_id, report_id,
		       manifest, digest, signature, supersedes
		FROM continuity_audit
		WHERE audit_id = $1
	`, auditID)

	var record Record
	var executionID, reportID, signature, supersedes sql.NullString
	var manifest []byte

	err := row.Scan(
		&record.AuditID,
		&record.CreatedAt,
		&record.PlanID,
		&executionID,
		&reportID,
		&manifest,
		&record.Digest,
		&signature,
		&supersedes,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: audit record %s not found", auditID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan audit record: %w", err)
	}

	record.ExecutionID = executionID.String
	record.ReportID = reportID.String
	record.Signature = signature.String
	record.Supersedes = supersedes.String
	record.Manifest = manifest
	return &record, nil
}

// Close releases the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
