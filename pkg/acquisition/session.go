package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/logger"
)

var (
	// ErrConnection is returned when the device cannot be opened or stops
	// delivering lines before the target count is reached.
	ErrConnection = errors.New("device connection error")
	// ErrSessionUsed is returned when Capture is called on a session that
	// already ran.
	ErrSessionUsed = errors.New("session already used")
)

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Capturing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result holds the per-channel buffers of a completed capture.
// Raw[c][i] for every channel c comes from the same frame i.
type Result struct {
	Raw      [device.NumChannels][]float64
	Label    string
	Start    time.Time
	End      time.Time
	Rejected int // Lines that failed to parse
}

// Len returns the number of frames in the result.
func (r Result) Len() int {
	return len(r.Raw[0])
}

// Duration returns the wall time spent capturing.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Session captures a fixed number of frames from a device. A Session runs
// at most once.
type Session struct {
	log *zap.Logger

	mu    sync.RWMutex
	state State
	err   error

	callbacks []func(n, target int)
	cbMu      sync.RWMutex
}

// NewSession creates an idle session.
func NewSession(log *zap.Logger) *Session {
	log = logger.OrNop(log)
	return &Session{log: log, state: Idle}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// OnProgress registers a callback invoked after every accepted frame.
// Callbacks run on the capturing goroutine and must not block.
func (s *Session) OnProgress(cb func(n, target int)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Capture connects dev, reads lines until targetCount frames have been
// parsed, and closes dev on every exit path. Malformed lines are logged and
// skipped; they do not count toward targetCount.
//
// Capture blocks until the target is reached, ctx is done or the device
// stops delivering lines. On failure no partial result is returned.
func (s *Session) Capture(ctx context.Context, dev device.Device, targetCount int, label string) (Result, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return Result{}, ErrSessionUsed
	}
	s.state = Capturing
	s.mu.Unlock()

	res, err := s.capture(ctx, dev, targetCount, label)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.err = err
	} else {
		s.state = Completed
	}
	s.mu.Unlock()

	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Session) capture(ctx context.Context, dev device.Device, target int, label string) (Result, error) {
	if target <= 0 {
		return Result{}, fmt.Errorf("target count must be positive, got %d", target)
	}

	if err := dev.Connect(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			s.log.Warn("failed to close device", zap.Error(err))
		}
	}()

	res := Result{Label: label, Start: time.Now()}
	for c := range res.Raw {
		res.Raw[c] = make([]float64, 0, target)
	}

	s.log.Info("capture started", zap.String("label", label), zap.Int("target", target))

	lines := dev.Lines()
	n := 0
	for n < target {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("capture interrupted after %d of %d frames: %w", n, target, err)
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("capture interrupted after %d of %d frames: %w", n, target, ctx.Err())
		case line, ok = <-lines:
		}

		if !ok {
			if err := dev.Err(); err != nil {
				return Result{}, fmt.Errorf("%w: lost after %d of %d frames: %w", ErrConnection, n, target, err)
			}
			return Result{}, fmt.Errorf("%w: device closed after %d of %d frames", ErrConnection, n, target)
		}

		frame, err := device.ParseFrame(line)
		if err != nil {
			res.Rejected++
			s.log.Warn("rejected frame", zap.String("line", line), zap.Error(err))
			continue
		}

		for c, v := range frame {
			res.Raw[c] = append(res.Raw[c], v)
		}
		n++
		s.notifyProgress(n, target)
	}

	res.End = time.Now()
	s.log.Info("capture completed",
		zap.String("label", label),
		zap.Int("frames", n),
		zap.Int("rejected", res.Rejected),
		zap.Duration("duration", res.Duration()),
	)

	return res, nil
}

func (s *Session) notifyProgress(n, target int) {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	for _, cb := range s.callbacks {
		cb(n, target)
	}
}
