package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/logger"
)

// MaxLineLength is the longest line a Stream delivers. Longer input, such
// as noise at a mismatched baud rate, is replaced by a placeholder line that
// ParseFrame rejects.
const MaxLineLength = 4096

// discardedLine stands in for an overlong line. It carries no frame marker.
const discardedLine = "<discarded %d byte line>"

// Opener opens the byte stream a Stream reads lines from.
type Opener func() (io.ReadCloser, error)

// Stream reads newline-terminated lines from any byte stream.
type Stream struct {
	open    Opener
	bufSize int
	log     *zap.Logger

	conn      io.ReadCloser
	lines     chan string
	done      chan struct{}
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	err       error
}

// NewStream creates a Stream that calls open on Connect.
func NewStream(open Opener, bufSize int, log *zap.Logger) *Stream {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	log = logger.OrNop(log)
	return &Stream{
		open:    open,
		bufSize: bufSize,
		log:     log,
	}
}

// NewReaderStream creates a Stream over an already open reader, e.g. a
// captured session replayed from a file.
func NewReaderStream(r io.Reader, log *zap.Logger) *Stream {
	return NewStream(func() (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}, 0, log)
}

// NewFileStream creates a Stream replaying lines from a file.
func NewFileStream(path string, log *zap.Logger) *Stream {
	return NewStream(func() (io.ReadCloser, error) {
		return os.Open(path)
	}, 0, log)
}

// Connect opens the underlying stream and starts reading lines.
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	conn, err := s.open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.lines = make(chan string, s.bufSize)
	s.done = make(chan struct{})
	s.err = nil
	s.connected = true

	go s.readLines(ctx, conn, s.lines, s.done)

	return nil
}

// Close stops reading and closes the underlying stream. It waits for the
// reader goroutine to exit, after which Lines is closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}

	s.cancel()
	var closeErr error
	if s.conn != nil {
		closeErr = s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	done := s.done
	s.mu.Unlock()

	<-done

	if closeErr != nil {
		return fmt.Errorf("failed to close stream: %w", closeErr)
	}
	return nil
}

// Lines returns the channel of received lines.
func (s *Stream) Lines() <-chan string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines
}

// Err returns the read error that ended the stream, if any. A clean EOF or
// an explicit Close is not an error.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// IsConnected returns whether the stream is currently open.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLines reads lines from conn until EOF, error or cancellation.
func (s *Stream) readLines(ctx context.Context, conn io.Reader, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(lines)

	r := bufio.NewReaderSize(conn, MaxLineLength)
	for {
		raw, n, overlong, err := readLine(r)
		if overlong {
			s.log.Warn("discarded overlong line", zap.Int("bytes", n))
			raw = fmt.Sprintf(discardedLine, n)
		}

		// Drop invalid UTF-8 the way a lenient decoder would
		line := strings.TrimSpace(strings.ToValidUTF8(raw, ""))
		if line != "" {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				s.log.Warn("stream read failed", zap.Error(err))
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// readLine returns the next line including its terminator. A line that
// does not fit the reader's buffer is consumed up to the next newline and
// reported as overlong with its byte count instead of its content.
func readLine(r *bufio.Reader) (string, int, bool, error) {
	var n int
	overlong := false
	for {
		chunk, err := r.ReadSlice('\n')
		n += len(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			overlong = true
			continue
		}
		if overlong {
			return "", n, true, err
		}
		return string(chunk), n, false, err
	}
}
