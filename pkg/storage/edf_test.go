package storage

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/metadata"
)

func readArchive(t *testing.T, path string, n int) (*edf.Reader, [device.NumChannels][]float64) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	r, err := edf.Open(f)
	require.NoError(t, err)

	var out [device.NumChannels][]float64
	for c := range out {
		sr, err := r.Signal(c)
		require.NoError(t, err)
		out[c] = make([]float64, n)
		got, err := sr.Read(out[c])
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
	return r, out
}

func TestArchive_Write(t *testing.T) {
	a, err := NewArchive(t.TempDir(), 250, nil)
	require.NoError(t, err)

	const n = 750
	var raw [device.NumChannels][]float64
	for c := range raw {
		raw[c] = make([]float64, n)
		for i := range n {
			raw[c][i] = float64(i) + 100*float64(c)
		}
	}
	sess := metadata.Session{
		ID:         "3f0c",
		OperatorID: "042",
		Variation:  metadata.MouthOpen,
		Label:      "hello",
		StartedAt:  time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	path, err := a.Write(sess, raw)
	require.NoError(t, err)
	assert.Equal(t, a.Path("3f0c"), path)

	_, got := readArchive(t, path, n)
	for c := range raw {
		assert.InDeltaSlice(t, raw[c], got[c], 0.05, "channel %d", c)
	}
}

func TestArchive_PadsLastRecord(t *testing.T) {
	a, err := NewArchive(t.TempDir(), 4, nil)
	require.NoError(t, err)

	var raw [device.NumChannels][]float64
	for c := range raw {
		raw[c] = []float64{0, 10, 20, 30, 40, 50}
	}

	path, err := a.Write(metadata.Session{ID: "pad", OperatorID: "001", Variation: metadata.SilentSpeech}, raw)
	require.NoError(t, err)

	_, got := readArchive(t, path, 8)
	assert.InDeltaSlice(t, []float64{0, 10, 20, 30, 40, 50, 50, 50}, got[device.A0], 0.01)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := edf.Open(f)
	require.NoError(t, err)
	sr, err := r.Signal(0)
	require.NoError(t, err)
	buf := make([]float64, 9)
	n, err := sr.Read(buf)
	assert.Equal(t, 8, n)
	assert.Equal(t, io.EOF, err)
}

func TestArchive_ConstantChannel(t *testing.T) {
	a, err := NewArchive(t.TempDir(), 250, nil)
	require.NoError(t, err)

	var raw [device.NumChannels][]float64
	for c := range raw {
		raw[c] = make([]float64, 250)
		for i := range raw[c] {
			raw[c][i] = 512
		}
	}

	path, err := a.Write(metadata.Session{ID: "flat"}, raw)
	require.NoError(t, err)

	_, got := readArchive(t, path, 250)
	assert.InDelta(t, 512, got[device.A3][100], 0.01)
}

func TestArchive_Invalid(t *testing.T) {
	_, err := NewArchive(t.TempDir(), 0, nil)
	assert.Error(t, err)

	a, err := NewArchive(t.TempDir(), 250, nil)
	require.NoError(t, err)

	_, err = a.Write(metadata.Session{ID: "empty"}, [device.NumChannels][]float64{})
	assert.Error(t, err)

	var raw [device.NumChannels][]float64
	for c := range raw {
		raw[c] = make([]float64, 10)
	}
	raw[device.A5] = raw[device.A5][:9]
	_, err = a.Write(metadata.Session{ID: "ragged"}, raw)
	assert.Error(t, err)
}

func TestHeaderText(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"042", 80, "042"},
		{"abcdef", 4, "abcd"},
		{"héllo wörld", 80, "h_llo w_rld"},
		{"日本語", 2, "__"},
		{"tab\there\n", 80, "tab_here_"},
		{"", 80, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := headerText(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}

func TestArchive_NonASCIILabel(t *testing.T) {
	a, err := NewArchive(t.TempDir(), 4, nil)
	require.NoError(t, err)

	var raw [device.NumChannels][]float64
	for c := range raw {
		raw[c] = []float64{0, 1, 2, 3}
	}
	sess := metadata.Session{
		ID:         "uni",
		OperatorID: "007",
		Variation:  metadata.LipSyncing,
		Label:      strings.Repeat("வணக்கம்", 20),
	}

	path, err := a.Write(sess, raw)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Fixed-width ASCII header: patient at 8..88, recording at 88..168
	for i, b := range data[:256] {
		require.True(t, b >= ' ' && b <= '~', "header byte %d is %#x", i, b)
	}
	assert.Equal(t, "007", strings.TrimSpace(string(data[8:88])))
	assert.True(t, strings.HasPrefix(string(data[88:168]), "uni Lip syncing ___"))

	_, got := readArchive(t, path, 4)
	assert.InDeltaSlice(t, []float64{0, 1, 2, 3}, got[device.A0], 0.01)
}

func TestPhysicalRange(t *testing.T) {
	lo, hi := physicalRange([]float64{3.2, -1.5, 7.9})
	assert.Equal(t, -2.0, lo)
	assert.Equal(t, 8.0, hi)

	lo, hi = physicalRange([]float64{5, 5})
	assert.Equal(t, 5.0, lo)
	assert.Equal(t, 6.0, hi)
}
