package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/metadata"
)

// Table names shared by all backends.
const (
	TableRaw        = "raw_sensor_data"
	TableNormalized = "normalized_sensor_data"
	TableOperators  = "user_details"
)

var (
	// ErrUnknownTable is returned when appending to a table that is not a
	// sensor data table.
	ErrUnknownTable = errors.New("unknown table")
	// ErrOperatorExists is returned when saving an operator whose ID is taken.
	ErrOperatorExists = errors.New("operator already exists")
	// ErrNotFound is returned when a stored row does not exist.
	ErrNotFound = errors.New("not found")
)

// Appender appends one exported row to a sensor data table.
type Appender interface {
	Append(ctx context.Context, table string, row export.Row) error
}

// SessionWriter stores the raw and normalized rows of one session. Backends
// write both rows or neither where they can.
type SessionWriter interface {
	WriteSession(ctx context.Context, raw, norm export.Row) error
}

// OperatorStore persists operator details.
type OperatorStore interface {
	SaveOperator(ctx context.Context, op metadata.Operator) error
	OperatorIDs(ctx context.Context) ([]string, error)
}

// OperatorLookup loads stored operator details.
type OperatorLookup interface {
	Operator(ctx context.Context, id string) (metadata.Operator, error)
}

// Store is a complete storage backend.
type Store interface {
	Appender
	SessionWriter
	OperatorStore
	io.Closer
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*ClickHouse)(nil)
	_ Store = (*CSV)(nil)

	_ OperatorLookup = (*SQLite)(nil)
	_ OperatorLookup = (*CSV)(nil)
)

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath, log)
	case "clickhouse":
		return NewClickHouse(ctx, cfg.ClickHouse, log)
	case "csv":
		return NewCSV(cfg.CSVDir, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// checkSensorTable validates a sensor data table name.
func checkSensorTable(table string) error {
	switch table {
	case TableRaw, TableNormalized:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}

// checkSession validates that raw and norm belong to the same session.
func checkSession(raw, norm export.Row) error {
	if raw.SessionID == "" {
		return fmt.Errorf("%w: missing session ID", export.ErrPrecondition)
	}
	if raw.SessionID != norm.SessionID {
		return fmt.Errorf("%w: raw row %q and normalized row %q differ", export.ErrPrecondition, raw.SessionID, norm.SessionID)
	}
	return nil
}
