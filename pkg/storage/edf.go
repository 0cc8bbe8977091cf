package storage

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPSG/edf"
	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/logger"
	"github.com/itohio/emgcap/pkg/metadata"
)

const (
	edfDigitalMin = -32768
	edfDigitalMax = 32767
	edfFieldLen   = 80
)

// Archive writes raw sessions as EDF files, one file per session.
type Archive struct {
	dir              string
	samplesPerRecord int
	log              *zap.Logger
}

// NewArchive creates an archive in dir. sampleRate is the number of samples
// per channel per second; every EDF data record holds one second.
func NewArchive(dir string, sampleRate int, log *zap.Logger) (*Archive, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	log = logger.OrNop(log)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir, samplesPerRecord: sampleRate, log: log}, nil
}

// Path returns the file of the given session.
func (a *Archive) Path(sessionID string) string {
	return filepath.Join(a.dir, sessionID+".edf")
}

// Write stores the raw channel buffers of sess. The last data record is
// padded with the final sample of each channel.
func (a *Archive) Write(sess metadata.Session, raw [device.NumChannels][]float64) (string, error) {
	n := len(raw[0])
	if n == 0 {
		return "", fmt.Errorf("archive %s: empty buffers", sess.ID)
	}
	for _, ch := range device.Channels {
		if len(raw[ch]) != n {
			return "", fmt.Errorf("archive %s: channel %s has %d samples, want %d", sess.ID, ch, len(raw[ch]), n)
		}
	}

	start := sess.StartedAt
	if start.IsZero() {
		start = time.Now()
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          headerText(sess.OperatorID, edfFieldLen),
		RecordingID:        headerText(fmt.Sprintf("%s %s %s", sess.ID, sess.Variation, sess.Label), edfFieldLen),
		StartTime:          start,
		DataRecordDuration: time.Second,
		SignalCount:        device.NumChannels,
		Signals:            make([]edf.Signal, device.NumChannels),
	}
	for _, ch := range device.Channels {
		lo, hi := physicalRange(raw[ch])
		hdr.Signals[ch] = edf.Signal{
			Label:             ch.String(),
			TransducerType:    "surface electrode",
			PhysicalDimension: "ADC",
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        edfDigitalMin,
			DigitalMax:        edfDigitalMax,
			SamplesPerRecord:  a.samplesPerRecord,
		}
	}

	path := a.Path(sess.ID)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w, err := edf.Create(f, hdr)
	if err != nil {
		return "", fmt.Errorf("write edf header: %w", err)
	}

	record := make([][]float64, device.NumChannels)
	for off := 0; off < n; off += a.samplesPerRecord {
		for _, ch := range device.Channels {
			record[ch] = recordSlice(raw[ch], off, a.samplesPerRecord)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write edf record at sample %d: %w", off, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize edf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	a.log.Debug("session archived", zap.String("session_id", sess.ID), zap.String("path", path))
	return path, nil
}

// physicalRange returns whole-number bounds enclosing buf. The header field
// holds 8 characters, so fractional bounds would be rounded on write.
func physicalRange(buf []float64) (float64, float64) {
	lo, hi := buf[0], buf[0]
	for _, v := range buf {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

// recordSlice returns size samples of buf starting at off, padding with
// the last sample past the end of buf.
func recordSlice(buf []float64, off, size int) []float64 {
	out := make([]float64, size)
	last := buf[len(buf)-1]
	for i := range out {
		if off+i < len(buf) {
			out[i] = buf[off+i]
		} else {
			out[i] = last
		}
	}
	return out
}

// headerText renders s as printable ASCII of at most n bytes. Other
// characters become '_', one per rune.
func headerText(s string, n int) string {
	out := make([]byte, 0, min(len(s), n))
	for _, r := range s {
		if len(out) == n {
			break
		}
		if r < ' ' || r > '~' {
			r = '_'
		}
		out = append(out, byte(r))
	}
	return string(out)
}
