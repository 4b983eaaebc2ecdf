package ymodem

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Logger interface for YMODEM protocol logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// FileLogger writes logs to a file
type FileLogger struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileLogger creates a logger that writes to a file
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: file}, nil
}

func (l *FileLogger) log(level, format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "[%s] %s: %s\n", timestamp, level, msg)
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *FileLogger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *FileLogger) Error(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *FileLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// GlogLogger logs through glog. Debug messages are emitted at verbosity 2.
type GlogLogger struct{}

func (GlogLogger) Debug(format string, args ...interface{}) {
	glog.V(2).Infof(format, args...)
}

func (GlogLogger) Info(format string, args ...interface{}) {
	glog.Infof(format, args...)
}

func (GlogLogger) Error(format string, args ...interface{}) {
	glog.Errorf(format, args...)
}

// FormatPacketLog formats a framed packet for logging with payload truncation
func FormatPacketLog(direction string, frame []byte) string {
	if len(frame) < PacketOverhead {
		return fmt.Sprintf("%s short frame % x", direction, frame)
	}
	payload := frame[PacketHeader : len(frame)-PacketTrailer]
	crc := binary.BigEndian.Uint16(frame[len(frame)-PacketTrailer:])

	msg := fmt.Sprintf("%s %s seq=%d/%02x size=%d crc=%04x",
		direction, ControlName(frame[0]), frame[seqIndex], frame[seqCompIndex], len(payload), crc)

	displayLen := len(payload)
	if displayLen > 32 {
		displayLen = 32
		msg += fmt.Sprintf(", data=%q...[truncated]", payload[:displayLen])
	} else {
		msg += fmt.Sprintf(", data=%q", payload)
	}
	return msg
}

// LoggingReader wraps a reader and logs all reads
type LoggingReader struct {
	reader io.Reader
	logger Logger
	name   string
}

func NewLoggingReader(reader io.Reader, logger Logger, name string) *LoggingReader {
	return &LoggingReader{
		reader: reader,
		logger: logger,
		name:   name,
	}
}

func (lr *LoggingReader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if lr.logger != nil && n > 0 {
		data := p[:n]
		if n > 64 {
			lr.logger.Debug("%s: Read %d bytes: % x...[truncated]", lr.name, n, data[:64])
		} else {
			lr.logger.Debug("%s: Read %d bytes: % x", lr.name, n, data)
		}
	}
	if err != nil && err != io.EOF && !IsTimeout(err) && lr.logger != nil {
		lr.logger.Error("%s: Read error: %v", lr.name, err)
	}
	return n, err
}

// SetReadDeadline forwards to the wrapped reader when it supports deadlines.
func (lr *LoggingReader) SetReadDeadline(t time.Time) error {
	if d, ok := lr.reader.(ReaderWithTimeout); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

// LoggingWriter wraps a writer and logs all writes
type LoggingWriter struct {
	writer io.Writer
	logger Logger
	name   string
}

func NewLoggingWriter(writer io.Writer, logger Logger, name string) *LoggingWriter {
	return &LoggingWriter{
		writer: writer,
		logger: logger,
		name:   name,
	}
}

func (lw *LoggingWriter) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	if lw.logger != nil && n > 0 {
		lw.logger.Debug("%s: Wrote %d bytes: % x", lw.name, n, p[:n])
	}
	if err != nil && lw.logger != nil {
		lw.logger.Error("%s: Write error: %v", lw.name, err)
	}
	return n, err
}
