package ymodem

import (
	"context"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SendCommand is the remote command used to start a YMODEM sender. The quoted
// remote path is appended.
const SendCommand = "sb"

// SSHSession wraps an SSH session for YMODEM transfers.
// It manages stdin/stdout/stderr pipes and provides a high-level API.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     *DeadlineReader
	stderr     io.Reader
}

// NewSSHSession creates a YMODEM session from an SSH session. Received files are
// committed into storage.
func NewSSHSession(sshSession *ssh.Session, storage Storage, opts ...Option) (*SSHSession, error) {
	// Get pipes
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	// SSH channels have no deadlines of their own
	reader := NewDeadlineReader(stdout)
	session := NewSession(reader, stdin, storage, opts...)

	return &SSHSession{
		Session:    session,
		sshSession: sshSession,
		stdin:      stdin,
		stdout:     reader,
		stderr:     stderr,
	}, nil
}

// ReceiveFile runs the remote sender for remotePath and receives the file.
func (s *SSHSession) ReceiveFile(ctx context.Context, remotePath string) error {
	if ctx == nil {
		ctx = s.ctx
	}

	cmd := SendCommand + " " + shellQuote(remotePath)
	s.logger.Info("SSHSession: starting %q", cmd)
	if err := s.sshSession.Start(cmd); err != nil {
		return err
	}

	// Wait for command to finish in background
	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := s.Session.ReceiveFile(ctx)

	// Close stdin to signal completion
	s.stdin.Close()

	select {
	case err2 := <-done:
		if err == nil {
			err = err2
		}
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	return err
}

// Close closes the SSH session and releases the stdout reader.
func (s *SSHSession) Close() error {
	s.stdin.Close()
	s.stdout.Close()
	return s.sshSession.Close()
}

// Stderr returns the stderr reader of the remote sender.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
