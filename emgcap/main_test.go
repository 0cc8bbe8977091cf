package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/emgcap/pkg/config"
)

const testSamples = 250

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig stores a CSV-backed configuration in a temp dir and returns
// its path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Backend = "csv"
	cfg.Storage.CSVDir = filepath.Join(dir, "data")
	cfg.Storage.EDFDir = filepath.Join(dir, "edf")
	cfg.Session.TargetSamples = testSamples
	cfg.Mock.SampleRate = time.Millisecond
	cfg.Log.Level = "error"

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path, dir
}

// writeReplay renders n frames of a distinct sine per channel.
func writeReplay(t *testing.T, dir string, n int) string {
	t.Helper()
	var b strings.Builder
	for i := range n {
		v := func(f float64) int {
			return int(math.Round(512 + 100*math.Sin(2*math.Pi*f*float64(i)/250)))
		}
		fmt.Fprintf(&b, "A0:%d,A2:%d,A3:%d,A4:%d,A5:%d\n", v(5), v(10), v(15), v(20), v(25))
	}
	path := filepath.Join(dir, "replay.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	assert.FileExists(t, path)

	_, err = execute(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: csv")
	assert.Contains(t, out, "# bandpass 1-100 Hz order 4:")
	assert.Contains(t, out, "# notch 50 Hz Q 30:")
	assert.Contains(t, out, "|H(10)|=")
	assert.Contains(t, out, "|H(100)|=")
}

func TestOperatorAndRecord(t *testing.T) {
	path, dir := writeConfig(t)

	out, err := execute(t, "--config", path, "operator", "add",
		"--name", "Ravi", "--gender", "male", "--age", "35", "--city", "Chennai",
		"--variation", "2")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}$`), id)

	out, err = execute(t, "--config", path, "operator", "list")
	require.NoError(t, err)
	assert.Equal(t, id+"\n", out)

	out, err = execute(t, "--config", path, "operator", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "name         Ravi")
	assert.Contains(t, out, "Mouth open")

	replay := writeReplay(t, dir, testSamples)
	out, err = execute(t, "--config", path, "record", "--operator", id, "--replay", replay, "--label", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "variation  2 (Mouth open)")
	assert.Contains(t, out, "label      hello")
	assert.Contains(t, out, "samples    250 per channel, 0 rejected lines")
	assert.Contains(t, out, "stored     csv")
	assert.Contains(t, out, "archive    ")

	assert.FileExists(t, filepath.Join(dir, "data", "raw_sensor_data.csv"))
	assert.FileExists(t, filepath.Join(dir, "data", "normalized_sensor_data.csv"))
	edfFiles, err := filepath.Glob(filepath.Join(dir, "edf", "*.edf"))
	require.NoError(t, err)
	assert.Len(t, edfFiles, 1)
}

func TestRecord_VariationOverride(t *testing.T) {
	path, dir := writeConfig(t)

	out, err := execute(t, "--config", path, "operator", "add",
		"--name", "Asha", "--gender", "Female", "--variation", "1")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	replay := writeReplay(t, dir, testSamples)
	out, err = execute(t, "--config", path, "record", "--operator", id, "--replay", replay, "--variation", "vocalized speech")
	require.NoError(t, err)
	assert.Contains(t, out, "variation  4 (Vocalized speech)")
}

func TestRecord_UnknownOperator(t *testing.T) {
	path, dir := writeConfig(t)
	replay := writeReplay(t, dir, testSamples)

	_, err := execute(t, "--config", path, "record", "--operator", "999", "--replay", replay, "--variation", "1")
	assert.ErrorContains(t, err, `unknown operator "999"`)
}

func TestRecord_MissingOperatorFlag(t *testing.T) {
	path, _ := writeConfig(t)

	_, err := execute(t, "--config", path, "record", "--mock", "--dry-run")
	assert.ErrorContains(t, err, "operator")
}

func TestRecord_MockDryRun(t *testing.T) {
	path, dir := writeConfig(t)

	out, err := execute(t, "--config", path, "record", "--operator", "001", "--variation", "3",
		"--mock", "--dry-run", "--samples", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "samples    50 per channel")
	assert.Contains(t, out, "stored     no (dry run)")
	assert.NoDirExists(t, filepath.Join(dir, "data"))
}

func TestRecord_DryRunNeedsVariation(t *testing.T) {
	path, _ := writeConfig(t)

	_, err := execute(t, "--config", path, "record", "--operator", "001", "--mock", "--dry-run")
	assert.ErrorContains(t, err, "--variation is required")
}

func TestRecord_ReplayTooShort(t *testing.T) {
	path, dir := writeConfig(t)
	out, err := execute(t, "--config", path, "operator", "add",
		"--name", "Ravi", "--gender", "Male", "--variation", "1")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	replay := writeReplay(t, dir, 20)
	_, err = execute(t, "--config", path, "record", "--operator", id, "--replay", replay)
	assert.ErrorContains(t, err, "acquisition failed")

	_, statErr := os.Stat(filepath.Join(dir, "data", "raw_sensor_data.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProgressPrinter(t *testing.T) {
	var b bytes.Buffer
	p := newProgressPrinter(&b, time.Second)
	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }

	p.Update(1, 3) // first update always printed
	p.Update(2, 3) // throttled
	now = now.Add(2 * time.Second)
	p.Update(2, 3)
	p.Update(3, 3) // final update always printed

	assert.Equal(t, "\rcapturing 1/3\rcapturing 2/3\rcapturing 3/3\n", b.String())
}
