package ymodem

import (
	"io"
	"os"
	"sync"
	"time"
)

type readChunk struct {
	data []byte
	err  error
}

// DeadlineReader adds read deadlines to a reader that has none, such as an SSH
// channel or a pipe. A background goroutine performs the blocking reads; it exits
// once the reader is closed and the source's pending Read returns. Read itself is
// not safe for concurrent use.
type DeadlineReader struct {
	ch        chan readChunk
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	deadline time.Time

	pending []byte
	err     error
}

// NewDeadlineReader wraps r so that it satisfies ReaderWithTimeout. Close it when
// done to release the read goroutine.
func NewDeadlineReader(r io.Reader) *DeadlineReader {
	d := &DeadlineReader{
		ch:   make(chan readChunk),
		done: make(chan struct{}),
	}
	go d.pump(r)
	return d
}

func (d *DeadlineReader) pump(r io.Reader) {
	defer close(d.ch)
	for {
		buf := make([]byte, PacketSize1K+PacketOverhead)
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			select {
			case d.ch <- readChunk{data: buf[:n], err: err}:
			case <-d.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Close stops delivering data. Later reads return io.ErrClosedPipe. The source is
// not closed; the read goroutine exits when its current Read returns.
func (d *DeadlineReader) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	return nil
}

func (d *DeadlineReader) SetReadDeadline(t time.Time) error {
	d.mu.Lock()
	d.deadline = t
	d.mu.Unlock()
	return nil
}

func (d *DeadlineReader) Read(p []byte) (int, error) {
	d.mu.Lock()
	deadline := d.deadline
	d.mu.Unlock()

	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}
	if d.err != nil {
		return 0, d.err
	}
	select {
	case <-d.done:
		d.err = io.ErrClosedPipe
		return 0, d.err
	default:
	}

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case chunk, ok := <-d.ch:
		if !ok {
			d.err = io.EOF
			return 0, d.err
		}
		if chunk.err != nil {
			d.err = chunk.err
		}
		n := copy(p, chunk.data)
		d.pending = chunk.data[n:]
		if n == 0 {
			return 0, d.err
		}
		return n, nil
	case <-d.done:
		d.err = io.ErrClosedPipe
		return 0, d.err
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	}
}
