package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/logger"
	"github.com/itohio/emgcap/pkg/metadata"
)

var operatorHeader = []string{
	"user_id", "name", "gender", "age", "city", "state", "nationality", "profession", "recording_variation",
}

// CSV appends rows to one file per table, mirroring a spreadsheet with one
// sheet per table.
type CSV struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// NewCSV creates dir if needed.
func NewCSV(dir string, log *zap.Logger) (*CSV, error) {
	log = logger.OrNop(log)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}
	return &CSV{dir: dir, log: log}, nil
}

// Path returns the file backing table.
func (c *CSV) Path(table string) string {
	return filepath.Join(c.dir, table+".csv")
}

// sensorHeader names the columns of a row with n values.
func sensorHeader(n int) []string {
	header := []string{"session_id", "variation"}
	per := n / device.NumChannels
	for _, ch := range device.Channels {
		for i := range per {
			header = append(header, fmt.Sprintf("%s_%d", ch, i))
		}
	}
	return header
}

// appendRecord appends record to table, writing header first when the file
// is new. It returns the file size before the write.
func (c *CSV) appendRecord(table string, header func() []string, record []string) (int64, error) {
	path := c.Path(table)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	w := csv.NewWriter(f)
	if size == 0 {
		if err := w.Write(header()); err != nil {
			return size, fmt.Errorf("write header to %s: %w", path, err)
		}
	}
	if err := w.Write(record); err != nil {
		return size, fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return size, fmt.Errorf("write %s: %w", path, err)
	}
	return size, nil
}

func rowRecord(row export.Row) []string {
	record := make([]string, 0, 2+len(row.Values))
	record = append(record, row.SessionID, strconv.Itoa(int(row.Variation)))
	for _, v := range row.Values {
		record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return record
}

// Append appends row to table.
func (c *CSV) Append(_ context.Context, table string, row export.Row) error {
	if err := checkSensorTable(table); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.appendRecord(table, func() []string { return sensorHeader(len(row.Values)) }, rowRecord(row))
	return err
}

// WriteSession appends the raw row, then the normalized row. If the second
// write fails the raw file is truncated back to its previous size.
func (c *CSV) WriteSession(_ context.Context, raw, norm export.Row) error {
	if err := checkSession(raw, norm); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rawSize, err := c.appendRecord(TableRaw, func() []string { return sensorHeader(len(raw.Values)) }, rowRecord(raw))
	if err != nil {
		return err
	}
	if _, err := c.appendRecord(TableNormalized, func() []string { return sensorHeader(len(norm.Values)) }, rowRecord(norm)); err != nil {
		if terr := os.Truncate(c.Path(TableRaw), rawSize); terr != nil {
			c.log.Error("failed to roll back raw row", zap.String("session_id", raw.SessionID), zap.Error(terr))
		}
		return err
	}

	c.log.Debug("session stored", zap.String("session_id", raw.SessionID), zap.String("dir", c.dir))
	return nil
}

// readRecords returns all records of table below the header.
func (c *CSV) readRecords(table string) ([][]string, error) {
	f, err := os.Open(c.Path(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", table, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records [][]string
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		if first {
			first = false
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadRow loads the row of sessionID from table.
func (c *CSV) ReadRow(_ context.Context, table, sessionID string) (export.Row, error) {
	if err := checkSensorTable(table); err != nil {
		return export.Row{}, err
	}
	c.mu.Lock()
	records, err := c.readRecords(table)
	c.mu.Unlock()
	if err != nil {
		return export.Row{}, err
	}

	for _, rec := range records {
		if len(rec) < 2 || rec[0] != sessionID {
			continue
		}
		variation, err := strconv.Atoi(rec[1])
		if err != nil {
			return export.Row{}, fmt.Errorf("parse variation of %q: %w", sessionID, err)
		}
		row := export.Row{SessionID: sessionID, Variation: metadata.Variation(variation), Values: make([]float64, 0, len(rec)-2)}
		for _, s := range rec[2:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return export.Row{}, fmt.Errorf("parse value of %q: %w", sessionID, err)
			}
			row.Values = append(row.Values, v)
		}
		return row, nil
	}
	return export.Row{}, fmt.Errorf("%w: session %q in %s", ErrNotFound, sessionID, table)
}

// SaveOperator appends op unless its ID is already stored.
func (c *CSV) SaveOperator(_ context.Context, op metadata.Operator) error {
	if err := op.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.operatorIDs()
	if err != nil {
		return err
	}
	if slices.Contains(ids, op.ID) {
		return fmt.Errorf("%w: %s", ErrOperatorExists, op.ID)
	}

	record := []string{
		op.ID, op.Name, string(op.Gender), strconv.Itoa(op.Age), op.City, op.State,
		op.Nationality, op.Profession, strconv.Itoa(int(op.Variation)),
	}
	_, err = c.appendRecord(TableOperators, func() []string { return operatorHeader }, record)
	return err
}

// Operator loads the operator with the given ID.
func (c *CSV) Operator(_ context.Context, id string) (metadata.Operator, error) {
	c.mu.Lock()
	records, err := c.readRecords(TableOperators)
	c.mu.Unlock()
	if err != nil {
		return metadata.Operator{}, err
	}

	for _, rec := range records {
		if len(rec) < len(operatorHeader) || rec[0] != id {
			continue
		}
		age, err := strconv.Atoi(rec[3])
		if err != nil {
			return metadata.Operator{}, fmt.Errorf("parse age of operator %q: %w", id, err)
		}
		variation, err := strconv.Atoi(rec[8])
		if err != nil {
			return metadata.Operator{}, fmt.Errorf("parse variation of operator %q: %w", id, err)
		}
		return metadata.Operator{
			ID:          rec[0],
			Name:        rec[1],
			Gender:      metadata.Gender(rec[2]),
			Age:         age,
			City:        rec[4],
			State:       rec[5],
			Nationality: rec[6],
			Profession:  rec[7],
			Variation:   metadata.Variation(variation),
		}, nil
	}
	return metadata.Operator{}, fmt.Errorf("%w: operator %q", ErrNotFound, id)
}

// OperatorIDs lists all stored operator IDs in ascending order.
func (c *CSV) OperatorIDs(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operatorIDs()
}

func (c *CSV) operatorIDs() ([]string, error) {
	records, err := c.readRecords(TableOperators)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if len(rec) > 0 {
			ids = append(ids, rec[0])
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op; files are closed after every write.
func (c *CSV) Close() error { return nil }
