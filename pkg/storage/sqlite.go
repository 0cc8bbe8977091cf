package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/logger"
	"github.com/itohio/emgcap/pkg/metadata"
)

// SQLite stores sessions in a local database file. Sample values are kept
// as JSON arrays.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLite, error) {
	log = logger.OrNop(log)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS raw_sensor_data (
  session_id TEXT PRIMARY KEY,
  variation INTEGER NOT NULL,
  sample_count INTEGER NOT NULL,
  samples TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS normalized_sensor_data (
  session_id TEXT PRIMARY KEY,
  variation INTEGER NOT NULL,
  sample_count INTEGER NOT NULL,
  samples TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_details (
  user_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  gender TEXT NOT NULL,
  age INTEGER NOT NULL,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  nationality TEXT NOT NULL,
  profession TEXT NOT NULL,
  recording_variation INTEGER NOT NULL,
  created_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRow(ctx context.Context, db execer, table string, row export.Row) error {
	samples, err := json.Marshal(row.Values)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s (session_id, variation, sample_count, samples, created_at)
VALUES (?, ?, ?, ?, ?);
`, table)
	if _, err := db.ExecContext(ctx, stmt, row.SessionID, int(row.Variation), len(row.Values), string(samples),
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Append inserts row into table.
func (s *SQLite) Append(ctx context.Context, table string, row export.Row) error {
	if err := checkSensorTable(table); err != nil {
		return err
	}
	return insertRow(ctx, s.db, table, row)
}

// WriteSession inserts both rows in one transaction.
func (s *SQLite) WriteSession(ctx context.Context, raw, norm export.Row) error {
	if err := checkSession(raw, norm); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRow(ctx, tx, TableRaw, raw); err != nil {
		return err
	}
	if err := insertRow(ctx, tx, TableNormalized, norm); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}

	s.log.Debug("session stored", zap.String("session_id", raw.SessionID), zap.Int("values", raw.Len()))
	return nil
}

// ReadRow loads the row of sessionID from table.
func (s *SQLite) ReadRow(ctx context.Context, table, sessionID string) (export.Row, error) {
	if err := checkSensorTable(table); err != nil {
		return export.Row{}, err
	}

	var variation int
	var samples string
	query := fmt.Sprintf(`SELECT variation, samples FROM %s WHERE session_id = ?;`, table)
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&variation, &samples)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Row{}, fmt.Errorf("%w: session %q in %s", ErrNotFound, sessionID, table)
	}
	if err != nil {
		return export.Row{}, fmt.Errorf("read %s: %w", table, err)
	}

	row := export.Row{SessionID: sessionID, Variation: metadata.Variation(variation)}
	if err := json.Unmarshal([]byte(samples), &row.Values); err != nil {
		return export.Row{}, fmt.Errorf("decode samples: %w", err)
	}
	return row, nil
}

// SaveOperator inserts op. Existing IDs are not overwritten.
func (s *SQLite) SaveOperator(ctx context.Context, op metadata.Operator) error {
	if err := op.Validate(); err != nil {
		return err
	}

	const stmt = `
INSERT INTO user_details (user_id, name, gender, age, city, state, nationality, profession, recording_variation, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO NOTHING;
`
	res, err := s.db.ExecContext(ctx, stmt, op.ID, op.Name, string(op.Gender), op.Age, op.City, op.State,
		op.Nationality, op.Profession, int(op.Variation), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrOperatorExists, op.ID)
	}
	return nil
}

// Operator loads the operator with the given ID.
func (s *SQLite) Operator(ctx context.Context, id string) (metadata.Operator, error) {
	const query = `
SELECT user_id, name, gender, age, city, state, nationality, profession, recording_variation
FROM user_details WHERE user_id = ?;
`
	var op metadata.Operator
	var gender string
	var variation int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&op.ID, &op.Name, &gender, &op.Age, &op.City, &op.State,
		&op.Nationality, &op.Profession, &variation)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.Operator{}, fmt.Errorf("%w: operator %q", ErrNotFound, id)
	}
	if err != nil {
		return metadata.Operator{}, fmt.Errorf("read operator: %w", err)
	}
	op.Gender = metadata.Gender(gender)
	op.Variation = metadata.Variation(variation)
	return op, nil
}

// OperatorIDs lists all stored operator IDs in ascending order.
func (s *SQLite) OperatorIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_details ORDER BY user_id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operators: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
