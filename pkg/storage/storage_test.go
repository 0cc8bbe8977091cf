package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/metadata"
)

func testRows(sessionID string) (export.Row, export.Row) {
	raw := export.Row{SessionID: sessionID, Variation: metadata.LipSyncing}
	norm := export.Row{SessionID: sessionID, Variation: metadata.LipSyncing}
	for i := range 10 {
		raw.Values = append(raw.Values, 500+float64(i))
		norm.Values = append(norm.Values, float64(i)/9)
	}
	for i := range norm.Values {
		norm.Values[i] = export.Round(norm.Values[i])
	}
	return raw, norm
}

func testOperator(id string) metadata.Operator {
	return metadata.Operator{
		ID:          id,
		Name:        "Ravi",
		Gender:      metadata.Male,
		Age:         35,
		City:        "Chennai",
		State:       "Tamil Nadu",
		Nationality: "Indian",
		Profession:  "Engineer",
		Variation:   metadata.VocalizedSpeech,
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    any
		wantErr bool
	}{
		{"sqlite", config.StorageConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "a.db")}, &SQLite{}, false},
		{"default is sqlite", config.StorageConfig{SQLitePath: filepath.Join(dir, "b.db")}, &SQLite{}, false},
		{"csv", config.StorageConfig{Backend: "csv", CSVDir: filepath.Join(dir, "csv")}, &CSV{}, false},
		{"unknown", config.StorageConfig{Backend: "sheets"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestCheckSession(t *testing.T) {
	raw, norm := testRows("s-1")
	assert.NoError(t, checkSession(raw, norm))

	norm.SessionID = "s-2"
	assert.ErrorIs(t, checkSession(raw, norm), export.ErrPrecondition)

	raw.SessionID = ""
	assert.ErrorIs(t, checkSession(raw, norm), export.ErrPrecondition)
}

func TestCheckSensorTable(t *testing.T) {
	assert.NoError(t, checkSensorTable(TableRaw))
	assert.NoError(t, checkSensorTable(TableNormalized))
	assert.ErrorIs(t, checkSensorTable(TableOperators), ErrUnknownTable)
	assert.ErrorIs(t, checkSensorTable("raw_sensor_data; DROP TABLE x"), ErrUnknownTable)
}
