package ymodem

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// ReaderWithTimeout is an interface for reading with timeout support.
// It extends io.Reader with timeout capabilities.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// ymodemIO provides buffered byte reads with timeout support for the receive loop.
type ymodemIO struct {
	reader  ReaderWithTimeout
	writer  io.Writer
	rbuf    []byte
	rpos    int
	rleft   int
	timeout time.Duration
	ctx     context.Context
}

// newYmodemIO creates a new I/O handler.
//
// Parameters:
//   - reader: the underlying reader (should support SetReadDeadline)
//   - writer: the underlying writer
//   - bufsize: size of the read buffer
//   - timeout: read timeout in tenths of seconds (0 = no timeout)
func newYmodemIO(reader ReaderWithTimeout, writer io.Writer, bufsize int, timeout int) *ymodemIO {
	if bufsize <= 0 {
		bufsize = PacketSize1K + PacketOverhead
	}
	return &ymodemIO{
		reader:  reader,
		writer:  writer,
		rbuf:    make([]byte, bufsize),
		timeout: time.Duration(timeout) * 100 * time.Millisecond,
		ctx:     context.Background(),
	}
}

// SetContext sets the context for cancellation.
func (y *ymodemIO) SetContext(ctx context.Context) {
	y.ctx = ctx
}

// ReadByte returns the next byte, refilling the buffer from the reader as needed.
func (y *ymodemIO) ReadByte() (byte, error) {
	if y.rleft > 0 {
		y.rleft--
		b := y.rbuf[y.rpos]
		y.rpos++
		return b, nil
	}
	return y.fill()
}

func (y *ymodemIO) fill() (byte, error) {
	if err := y.ctx.Err(); err != nil {
		return 0, err
	}

	if y.timeout > 0 {
		if err := y.reader.SetReadDeadline(time.Now().Add(y.timeout)); err != nil {
			return 0, err
		}
	}

	n, err := y.reader.Read(y.rbuf)
	if n == 0 {
		if err == nil || isDeadline(err) {
			return 0, NewError(ErrTimeout, "no data from sender")
		}
		return 0, err
	}

	// Bytes that arrived with an error are still delivered
	y.rpos = 1
	y.rleft = n - 1
	return y.rbuf[0], nil
}

func isDeadline(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || IsTimeout(err) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// Write writes bytes to the underlying writer.
func (y *ymodemIO) Write(buf []byte) (int, error) {
	return y.writer.Write(buf)
}

// Flush flushes the writer if it buffers.
func (y *ymodemIO) Flush() error {
	if f, ok := y.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// PurgeLine discards any buffered input.
func (y *ymodemIO) PurgeLine() {
	y.rleft = 0
	y.rpos = 0
}
