package ymodem

import (
	"errors"
	"os"
	"time"

	"golang.org/x/term"
)

// TerminalIO runs a transfer over the controlling terminal, typically when the
// receiver is started from a terminal emulator that sends with YMODEM.
// The input side is switched to raw mode for the duration so that control bytes
// reach the receiver untouched.
type TerminalIO struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// OpenTerminal wraps in and out. If in is a terminal it is put into raw mode until
// Close.
func OpenTerminal(in, out *os.File) (*TerminalIO, error) {
	t := &TerminalIO{in: in, out: out}
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		t.state = state
	}
	return t, nil
}

// Raw reports whether the terminal was switched to raw mode.
func (t *TerminalIO) Raw() bool {
	return t.state != nil
}

func (t *TerminalIO) Read(p []byte) (int, error) {
	return t.in.Read(p)
}

func (t *TerminalIO) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

// SetReadDeadline sets a deadline on the input. Inputs that cannot time out, such
// as regular files, silently block instead.
func (t *TerminalIO) SetReadDeadline(deadline time.Time) error {
	err := t.in.SetReadDeadline(deadline)
	if errors.Is(err, os.ErrNoDeadline) {
		return nil
	}
	return err
}

// Close restores the terminal mode.
func (t *TerminalIO) Close() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return err
}
