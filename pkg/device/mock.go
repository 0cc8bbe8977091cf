package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/emgcap/pkg/config"
)

// Mock simulates the acquisition board for testing and development.
// Values are synthesized in float32, the way the firmware computes them.
type Mock struct {
	cfg *config.MockConfig

	lines     chan string
	done      chan struct{}
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	seq       int
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	return &Mock{cfg: cfg}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.lines = make(chan string, DefaultBufferSize)
	m.done = make(chan struct{})
	m.connected = true
	m.seq = 0

	go m.generateLines(ctx, m.lines, m.done)

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// Lines returns the channel of generated lines.
func (m *Mock) Lines() <-chan string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lines
}

// Err always returns nil; the mock never loses its connection.
func (m *Mock) Err() error { return nil }

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// interval returns the line period, falling back to the default for a
// non-positive setting.
func (m *Mock) interval() time.Duration {
	if m.cfg.SampleRate <= 0 {
		return config.Default().Mock.SampleRate
	}
	return m.cfg.SampleRate
}

// generateLines emits one line per tick until cancelled.
func (m *Mock) generateLines(ctx context.Context, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(lines)

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			line := m.nextLine()
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}
}

// nextLine renders the next simulated line, occasionally a malformed one.
func (m *Mock) nextLine() string {
	m.mu.Lock()
	seq := m.seq
	m.seq++
	m.mu.Unlock()

	if m.cfg.GarbleEvery > 0 && seq > 0 && seq%m.cfg.GarbleEvery == 0 {
		return garbledLine(seq)
	}

	return formatFloat32Frame(m.synthesize(seq))
}

// synthesize computes the channel values for sample number seq.
//
// Each channel carries a burst-modulated muscle-like signal on a DC offset,
// mains interference at 50 Hz and a deterministic broadband noise term.
func (m *Mock) synthesize(seq int) [NumChannels]float32 {
	dt := float32(m.interval().Seconds())
	t := float32(seq) * dt

	amplitude := float32(m.cfg.Amplitude)
	offset := float32(m.cfg.Offset)
	mains := float32(m.cfg.MainsLevel)
	noise := float32(m.cfg.NoiseLevel)

	// Bursts repeat every 1.5 s, like a spoken syllable
	envelope := 0.5 * (1 - math32.Cos(2*math32.Pi*t/1.5))

	var v [NumChannels]float32
	for k := range NumChannels {
		carrier := math32.Sin(2*math32.Pi*float32(20+7*k)*t) +
			0.5*math32.Sin(2*math32.Pi*float32(45+3*k)*t+float32(k))
		hum := math32.Sin(2 * math32.Pi * 50 * t)
		hiss := math32.Sin(t*12345.678*float32(k+1)) * math32.Cos(t*7919.0*float32(k+2))

		v[k] = offset + amplitude*envelope*carrier + mains*hum + noise*hiss
	}
	return v
}

func formatFloat32Frame(v [NumChannels]float32) string {
	var b strings.Builder
	for i, ch := range Channels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(ch.String())
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(float64(v[i]), 'f', 2, 32))
	}
	return b.String()
}

// garbledLine returns one of the malformed line shapes seen on a noisy link.
func garbledLine(seq int) string {
	switch seq % 3 {
	case 0:
		return "A0:512.00,A2:498.00" // truncated
	case 1:
		return "boot: adc ready" // no marker
	default:
		return "A0:512.00,A2:4#8.00,A3:500.00,A4:501.00,A5:499.00" // corrupted digit
	}
}
