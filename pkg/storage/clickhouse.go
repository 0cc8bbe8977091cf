package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/logger"
	"github.com/itohio/emgcap/pkg/metadata"
)

// clickhouseConn is the subset of driver.Conn used by ClickHouse.
type clickhouseConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, dest any, query string, args ...any) error
	Close() error
}

// ClickHouse stores sessions in ClickHouse with samples in Array(Float64)
// columns.
type ClickHouse struct {
	conn clickhouseConn
	log  *zap.Logger
}

// clickhouseTables holds the schema, one statement per table.
var clickhouseTables = []string{
	`CREATE TABLE IF NOT EXISTS raw_sensor_data (
		session_id String,
		variation UInt8,
		samples Array(Float64),
		created_at DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (session_id)`,
	`CREATE TABLE IF NOT EXISTS normalized_sensor_data (
		session_id String,
		variation UInt8,
		samples Array(Float64),
		created_at DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (session_id)`,
	`CREATE TABLE IF NOT EXISTS user_details (
		user_id String,
		name String,
		gender LowCardinality(String),
		age UInt8,
		city String,
		state String,
		nationality String,
		profession String,
		recording_variation UInt8,
		created_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(created_at)
	ORDER BY (user_id)`,
}

// NewClickHouse connects to ClickHouse and creates the tables.
func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig, log *zap.Logger) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db, err := newClickHouse(ctx, conn, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	db.log.Info("connected to ClickHouse", zap.String("addr", cfg.Addr), zap.String("database", cfg.Database))
	return db, nil
}

func newClickHouse(ctx context.Context, conn clickhouseConn, log *zap.Logger) (*ClickHouse, error) {
	log = logger.OrNop(log)
	db := &ClickHouse{conn: conn, log: log}
	if err := db.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (db *ClickHouse) initSchema(ctx context.Context) error {
	for _, ddl := range clickhouseTables {
		if err := db.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (db *ClickHouse) insertRow(ctx context.Context, table string, row export.Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, variation, samples, created_at)
		VALUES (?, ?, ?, ?)
	`, table)

	err := db.conn.Exec(ctx, query,
		row.SessionID,
		uint8(row.Variation),
		row.Values,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// Append inserts row into table.
func (db *ClickHouse) Append(ctx context.Context, table string, row export.Row) error {
	if err := checkSensorTable(table); err != nil {
		return err
	}
	return db.insertRow(ctx, table, row)
}

// WriteSession inserts the raw row, then the normalized row. If the second
// insert fails the raw row is deleted again.
func (db *ClickHouse) WriteSession(ctx context.Context, raw, norm export.Row) error {
	if err := checkSession(raw, norm); err != nil {
		return err
	}

	if err := db.insertRow(ctx, TableRaw, raw); err != nil {
		return err
	}
	if err := db.insertRow(ctx, TableNormalized, norm); err != nil {
		// Use a fresh context so a cancelled ctx does not prevent the cleanup
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if derr := db.conn.Exec(cleanupCtx, `ALTER TABLE raw_sensor_data DELETE WHERE session_id = ?`, raw.SessionID); derr != nil {
			db.log.Error("failed to remove orphaned raw row",
				zap.String("session_id", raw.SessionID),
				zap.Error(derr),
			)
			return fmt.Errorf("%w (raw row left behind: %v)", err, derr)
		}
		return err
	}

	db.log.Debug("session stored", zap.String("session_id", raw.SessionID), zap.Int("values", raw.Len()))
	return nil
}

// SaveOperator inserts op unless its ID is already stored.
func (db *ClickHouse) SaveOperator(ctx context.Context, op metadata.Operator) error {
	if err := op.Validate(); err != nil {
		return err
	}

	ids, err := db.OperatorIDs(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(ids, op.ID) {
		return fmt.Errorf("%w: %s", ErrOperatorExists, op.ID)
	}

	query := `
		INSERT INTO user_details (user_id, name, gender, age, city, state, nationality, profession, recording_variation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = db.conn.Exec(ctx, query,
		op.ID,
		op.Name,
		string(op.Gender),
		uint8(op.Age),
		op.City,
		op.State,
		op.Nationality,
		op.Profession,
		uint8(op.Variation),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operator: %w", err)
	}
	return nil
}

// OperatorIDs lists all stored operator IDs in ascending order.
func (db *ClickHouse) OperatorIDs(ctx context.Context) ([]string, error) {
	var rows []struct {
		UserID string `ch:"user_id"`
	}
	if err := db.conn.Select(ctx, &rows, `SELECT DISTINCT user_id FROM user_details ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// Close closes the ClickHouse connection.
func (db *ClickHouse) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
	}
	return nil
}
