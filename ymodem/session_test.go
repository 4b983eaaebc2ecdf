package ymodem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timeout marks a scripted read that hits its deadline.
var timeout = []byte(nil)

// scriptReader replays chunks, one per Read. A nil chunk times out.
type scriptReader struct {
	chunks    [][]byte
	deadlines int
}

func (s *scriptReader) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	chunk := s.chunks[0]
	if chunk == nil {
		s.chunks = s.chunks[1:]
		return 0, os.ErrDeadlineExceeded
	}
	n := copy(p, chunk)
	if n == len(chunk) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = chunk[n:]
	}
	return n, nil
}

func (s *scriptReader) SetReadDeadline(time.Time) error {
	s.deadlines++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("line dropped")
}

func transfer(data []byte) [][]byte {
	return [][]byte{
		makeHeader("fw.bin", len(data)),
		makeData(1, data),
		{EOT},
		makeClosing(),
	}
}

func newTestSession(reader ReaderWithTimeout, writer io.Writer, storage Storage, mutate ...func(*Config)) *Session {
	cfg := DefaultConfig()
	cfg.Region = testRegion
	cfg.MaxErrors = 3
	for _, m := range mutate {
		m(cfg)
	}
	return NewSession(reader, writer, storage, WithConfig(cfg))
}

func TestSessionReceiveFile(t *testing.T) {
	data := pattern(100, 5)
	reader := &scriptReader{chunks: transfer(data)}
	var out bytes.Buffer
	mem := NewMemoryStorage(testRegion)
	s := newTestSession(reader, &out, mem)

	require.NoError(t, s.ReceiveFile(context.Background()))
	require.Equal(t, []byte{WANTCRC, ACK, WANTCRC, ACK, ACK, WANTCRC, ACK}, out.Bytes())
	require.Equal(t, StatusComplete, s.Receiver().Status())
	require.Equal(t, data, mem.Bytes()[:100])
	require.NotZero(t, reader.deadlines)

	file, ok := s.Receiver().File()
	require.True(t, ok)
	require.Equal(t, FileInfo{Name: "fw.bin", Size: 100}, file)
}

func TestSessionSingleChunk(t *testing.T) {
	var stream []byte
	for _, chunk := range transfer(pattern(10, 0)) {
		stream = append(stream, chunk...)
	}
	// The whole stream does not fit one read
	reader := &scriptReader{chunks: [][]byte{stream}}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	require.NoError(t, s.ReceiveFile(context.Background()))
	require.Equal(t, []byte{WANTCRC, ACK, WANTCRC, ACK, ACK, WANTCRC, ACK}, out.Bytes())
}

func TestSessionTimeoutBeforeHeader(t *testing.T) {
	reader := &scriptReader{chunks: append([][]byte{timeout, timeout}, transfer(pattern(10, 0))...)}
	var out bytes.Buffer
	var events []Event
	cfg := DefaultConfig()
	cfg.Region = testRegion
	s := NewSession(reader, &out, NewMemoryStorage(testRegion),
		WithConfig(cfg),
		WithCallbacks(&Callbacks{OnEvent: func(e Event) {
			if e.Type == EventTimeout {
				events = append(events, e)
			}
		}}),
	)

	require.NoError(t, s.ReceiveFile(context.Background()))
	require.Equal(t, []byte{WANTCRC, WANTCRC, WANTCRC, ACK, WANTCRC, ACK, ACK, WANTCRC, ACK}, out.Bytes())
	require.Len(t, events, 2)
}

func TestSessionTimeoutMidPacket(t *testing.T) {
	data := pattern(100, 1)
	packet := makeData(1, data)
	reader := &scriptReader{chunks: [][]byte{
		makeHeader("fw.bin", len(data)),
		packet[:50],
		timeout,
		packet,
		{EOT},
		makeClosing(),
	}}
	var out bytes.Buffer
	mem := NewMemoryStorage(testRegion)
	s := newTestSession(reader, &out, mem)

	require.NoError(t, s.ReceiveFile(context.Background()))
	require.Equal(t, []byte{WANTCRC, ACK, WANTCRC, NAK, ACK, ACK, WANTCRC, ACK}, out.Bytes())
	require.Equal(t, data, mem.Bytes()[:100])
}

func TestSessionTooManyTimeouts(t *testing.T) {
	reader := &scriptReader{chunks: [][]byte{timeout, timeout, timeout, timeout}}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(context.Background())
	require.Error(t, err)
	require.True(t, IsTimeout(err))
	require.Equal(t, []byte{WANTCRC, WANTCRC, WANTCRC, CA, CA}, out.Bytes())
	require.Equal(t, StatusAborted, s.Receiver().Status())
}

func TestSessionTimeoutsResetOnData(t *testing.T) {
	reader := &scriptReader{chunks: [][]byte{
		timeout, timeout,
		makeHeader("fw.bin", 10),
		timeout, timeout,
		makeData(1, pattern(10, 0)),
		{EOT},
		makeClosing(),
	}}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	require.NoError(t, s.ReceiveFile(context.Background()))
	require.Equal(t, []byte{WANTCRC, WANTCRC, WANTCRC, ACK, WANTCRC, NAK, NAK, ACK, ACK, WANTCRC, ACK}, out.Bytes())
}

func TestSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &scriptReader{chunks: transfer(pattern(10, 0))}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.True(t, IsCancelled(err))
	require.Equal(t, []byte{WANTCRC, CA, CA}, out.Bytes())
}

func TestSessionReadError(t *testing.T) {
	reader := &scriptReader{}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, ErrIO, e.Type)
	require.True(t, errors.Is(err, io.EOF))
	require.Equal(t, []byte{WANTCRC, CA, CA}, out.Bytes())
}

func TestSessionWriteError(t *testing.T) {
	reader := &scriptReader{chunks: transfer(pattern(10, 0))}
	s := newTestSession(reader, failingWriter{}, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, ErrIO, e.Type)
	require.Contains(t, err.Error(), "line dropped")
}

func TestSessionSizeError(t *testing.T) {
	reader := &scriptReader{chunks: [][]byte{makeHeader("huge.bin", 1<<20)}}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, ErrSize, e.Type)
	require.Equal(t, StatusSizeError, s.Receiver().Status())
	require.Equal(t, []byte{WANTCRC, CA, CA}, out.Bytes())
}

func TestSessionPeerCancel(t *testing.T) {
	reader := &scriptReader{chunks: [][]byte{makeHeader("fw.bin", 10), {CA, CA}}}
	var out bytes.Buffer
	s := newTestSession(reader, &out, NewMemoryStorage(testRegion))

	err := s.ReceiveFile(context.Background())
	require.True(t, IsCancelled(err))
	require.Equal(t, []byte{WANTCRC, ACK, WANTCRC, WANTCRC}, out.Bytes())
}

func TestSessionOptions(t *testing.T) {
	region := Region{Start: 0x100, Size: 0x200}
	s := NewSession(&scriptReader{}, io.Discard, NewMemoryStorage(region),
		WithRegion(region),
		WithVerify(true),
	)
	require.Equal(t, region, s.Receiver().Region())
	require.True(t, s.Receiver().verify)
}

// shortWriter accepts the first n writes and fails the rest.
type shortWriter struct {
	n int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("line dropped")
	}
	w.n--
	return len(p), nil
}

func TestSessionCancelWriteFailureLogged(t *testing.T) {
	logger := &recordLogger{}
	cfg := DefaultConfig()
	cfg.Region = testRegion
	cfg.MaxErrors = 1
	s := NewSession(&scriptReader{chunks: [][]byte{timeout}}, &shortWriter{n: 1}, NewMemoryStorage(testRegion),
		WithConfig(cfg),
		WithSessionLogger(logger),
	)

	err := s.ReceiveFile(context.Background())
	require.True(t, IsTimeout(err))
	require.Contains(t, logger.lines, "E ReceiveFile: cancel sequence not sent: ymodem I/O error: write to sender: line dropped")
}

func TestSessionLeavesConfigUntouched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Region = testRegion
	cfg.MaxErrors = 0
	s := NewSession(&scriptReader{}, io.Discard, NewMemoryStorage(testRegion), WithConfig(cfg))

	require.Equal(t, 0, cfg.MaxErrors)
	require.Equal(t, DefaultConfig().MaxErrors, s.config.MaxErrors)
}
