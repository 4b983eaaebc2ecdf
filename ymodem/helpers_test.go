package ymodem

import (
	"errors"
	"fmt"
	"testing"
)

// referenceCRC16 is the usual table-free XMODEM CRC, used to cross-check CRC16.
func referenceCRC16(data []byte) uint16 {
	var crc uint16
	for _, c := range data {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// buildPacket frames data the way a sender does, padding the payload with pad.
func buildPacket(marker, seq byte, data []byte, pad byte) []byte {
	size := PacketSize
	if marker == STX {
		size = PacketSize1K
	}
	payload := make([]byte, size)
	n := copy(payload, data)
	for i := n; i < size; i++ {
		payload[i] = pad
	}
	crc := referenceCRC16(payload)

	frame := []byte{marker, seq, seq ^ 0xFF}
	frame = append(frame, payload...)
	return append(frame, byte(crc>>8), byte(crc))
}

func makeHeader(name string, size int) []byte {
	return buildPacket(SOH, 0, []byte(fmt.Sprintf("%s\x00%d ", name, size)), 0)
}

func makeData(seq byte, data []byte) []byte {
	return buildPacket(SOH, seq, data, CPMEOF)
}

func makeClosing() []byte {
	return buildPacket(SOH, 0, nil, 0)
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// feed sends every byte of in and returns the concatenated replies and the final
// status.
func feed(r *Receiver, in []byte) ([]byte, Status) {
	var out []byte
	status := r.Status()
	for _, c := range in {
		var reply []byte
		reply, status = r.ReceiveByte(c)
		out = append(out, reply...)
	}
	return out, status
}

// faultyStorage injects failures into a MemoryStorage.
type faultyStorage struct {
	*MemoryStorage

	prepareErr error
	writeErrAt int // fail the n-th write (1-based), 0 = never
	corrupt    bool

	writeCalls int
}

func (f *faultyStorage) Prepare(region Region) error {
	if f.prepareErr != nil {
		return f.prepareErr
	}
	return f.MemoryStorage.Prepare(region)
}

func (f *faultyStorage) Program(addr uint32, b byte) error {
	f.writeCalls++
	if f.writeErrAt > 0 && f.writeCalls == f.writeErrAt {
		return errors.New("program failed")
	}
	return f.MemoryStorage.Program(addr, b)
}

func (f *faultyStorage) Peek(addr uint32) (byte, error) {
	b, err := f.MemoryStorage.Peek(addr)
	if f.corrupt {
		b ^= 0xFF
	}
	return b, err
}

// lockingStorage tracks ExclusiveAccess brackets.
type lockingStorage struct {
	*MemoryStorage

	acquireErr error
	acquires   int
	releases   int
	held       bool
	unlocked   int // operations performed without access
}

func (l *lockingStorage) Acquire() error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquires++
	l.held = true
	return nil
}

func (l *lockingStorage) Release() {
	l.releases++
	l.held = false
}

func (l *lockingStorage) Prepare(region Region) error {
	if !l.held {
		l.unlocked++
	}
	return l.MemoryStorage.Prepare(region)
}

func (l *lockingStorage) Program(addr uint32, b byte) error {
	if !l.held {
		l.unlocked++
	}
	return l.MemoryStorage.Program(addr, b)
}

func newTestReceiver(t *testing.T, storage Storage, region Region, mutate ...func(*ReceiverConfig)) *Receiver {
	t.Helper()
	cfg := DefaultReceiverConfig()
	cfg.Region = region
	for _, m := range mutate {
		m(cfg)
	}
	return NewReceiver(storage, cfg)
}
