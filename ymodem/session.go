package ymodem

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Session drives a Receiver from a transport.
// It provides the blocking receive loop, timeouts and retries around the byte-level
// state machine.
type Session struct {
	// I/O
	io *ymodemIO

	// Configuration
	config *Config

	// Callbacks
	callbacks *Callbacks

	// Internal state
	storage  Storage
	receiver *Receiver

	// Context
	ctx context.Context

	// Logger
	logger Logger
}

// Config holds session configuration.
type Config struct {
	// Storage region the file is committed to
	Region Region

	// Read back and compare every programmed packet
	Verify bool

	// Header packet field limits
	MaxFileNameLength int
	MaxFileSizeLength int

	// Timeouts (in tenths of seconds)
	Timeout int

	// Consecutive timeouts before the session aborts
	MaxErrors int

	// Progress update interval
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Region:            Region{Start: 0x08080000, Size: 256 * 1024},
		Verify:            false,
		MaxFileNameLength: FileNameLength,
		MaxFileSizeLength: FileSizeLength,
		Timeout:           100, // 10 seconds
		MaxErrors:         10,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the session context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithSessionLogger sets a logger for protocol debugging.
func WithSessionLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRegion overrides the storage region of the configuration.
func WithRegion(region Region) Option {
	return func(s *Session) {
		cfg := *s.config
		cfg.Region = region
		s.config = &cfg
	}
}

// WithVerify enables read-back verification of programmed packets.
func WithVerify(verify bool) Option {
	return func(s *Session) {
		cfg := *s.config
		cfg.Verify = verify
		s.config = &cfg
	}
}

// NewSession creates a new YMODEM receive session committing into storage.
func NewSession(reader ReaderWithTimeout, writer io.Writer, storage Storage, opts ...Option) *Session {
	s := &Session{
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		storage:   storage,
		ctx:       context.Background(),
		logger:    NoopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}
	cfg := *s.config
	s.config = &cfg
	if s.config.MaxErrors <= 0 {
		s.config.MaxErrors = DefaultConfig().MaxErrors
	}

	s.io = newYmodemIO(reader, writer, PacketSize1K+PacketOverhead, s.config.Timeout)
	s.receiver = NewReceiver(storage, &ReceiverConfig{
		Region:            s.config.Region,
		Verify:            s.config.Verify,
		MaxFileNameLength: s.config.MaxFileNameLength,
		MaxFileSizeLength: s.config.MaxFileSizeLength,
		ProgressInterval:  s.config.ProgressInterval,
		Logger:            s.logger,
		Callbacks:         s.callbacks,
	})

	return s
}

// Receiver returns the underlying state machine.
func (s *Session) Receiver() *Receiver {
	return s.receiver
}

// ReceiveFile receives one file into the storage region.
//
// It solicits the sender with the CRC-request byte and feeds every byte read to the
// receiver until a terminal status. Before the first packet a read timeout repeats
// the solicitation; afterwards it drops any partial packet and answers NAK. After
// MaxErrors consecutive timeouts, or when ctx is done, the session aborts with the
// cancel sequence. Returns nil once the file is complete.
func (s *Session) ReceiveFile(ctx context.Context) error {
	// Use context from session if not provided
	if ctx == nil {
		ctx = s.ctx
	}
	s.io.SetContext(ctx)
	s.io.PurgeLine()
	s.receiver.Reset()

	s.logger.Info("ReceiveFile: waiting for header packet (region=%s)", s.config.Region)
	if err := s.send([]byte{WANTCRC}); err != nil {
		return err
	}

	timeouts := 0
	for {
		c, err := s.io.ReadByte()
		if err != nil {
			if ctx.Err() != nil {
				s.abort(wrapError(ErrLocalAbort, "receive cancelled", -1, ctx.Err()))
				return s.receiver.Err()
			}
			if !IsTimeout(err) {
				s.abort(wrapError(ErrIO, "read from sender", -1, err))
				return s.receiver.Err()
			}

			timeouts++
			s.logger.Debug("ReceiveFile: timeout %d/%d", timeouts, s.config.MaxErrors)
			s.callbacks.OnEvent(Event{Type: EventTimeout, Message: err.Error(), Seq: s.receiver.PacketsReceived(), Timestamp: time.Now()})
			if timeouts >= s.config.MaxErrors {
				s.abort(NewError(ErrTimeout, fmt.Sprintf("no data after %d retries", timeouts)))
				return s.receiver.Err()
			}

			s.receiver.Purge()
			retry := []byte{NAK}
			if s.receiver.PacketsReceived() == 0 {
				retry = []byte{WANTCRC}
			}
			if err := s.send(retry); err != nil {
				return err
			}
			continue
		}
		timeouts = 0

		reply, status := s.receiver.ReceiveByte(c)
		if len(reply) > 0 {
			if err := s.send(reply); err != nil {
				return err
			}
		}
		if status.Terminal() {
			if status == StatusComplete {
				s.logger.Info("ReceiveFile: completed")
				return nil
			}
			s.logger.Error("ReceiveFile: %s: %v", status, s.receiver.Err())
			return s.receiver.Err()
		}
	}
}

func (s *Session) send(reply []byte) error {
	if _, err := s.io.Write(reply); err != nil {
		s.logger.Error("ReceiveFile: write error: %v", err)
		return wrapError(ErrIO, "write to sender", -1, err)
	}
	return s.io.Flush()
}

// abort latches err on the receiver and sends the cancel sequence.
func (s *Session) abort(err *Error) {
	reply, _ := s.receiver.abortWith(err)
	if len(reply) > 0 {
		if werr := s.send(reply); werr != nil {
			s.logger.Error("ReceiveFile: cancel sequence not sent: %v", werr)
		}
	}
}
