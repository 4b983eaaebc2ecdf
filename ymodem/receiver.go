package ymodem

import (
	"bytes"
	"fmt"
	"time"
)

type framingState int

const (
	stateAwaitingHeader framingState = iota // waiting for SOH/STX or a control byte
	stateAccumulating                       // collecting sequence, payload and CRC
)

// FileInfo is the metadata carried by packet #0.
type FileInfo struct {
	Name string

	// Size is the declared file size. It is zero when the size field is missing or
	// malformed.
	Size uint32
}

// Receiver is the byte-level YMODEM receive state machine.
//
// Every byte from the sender goes through ReceiveByte, which returns the bytes to
// send back. The receiver frames packets, checks their sequence and CRC, prepares
// the storage region on packet #0 and programs packets #1..N at an advancing cursor.
// Once a terminal status is latched, further bytes are answered from the latch
// until Reset.
//
// A Receiver is not safe for concurrent use; the caller serializes byte delivery.
type Receiver struct {
	// Storage
	storage   Storage
	region    Region
	verify    bool
	nameLimit int
	sizeLimit int

	// Framing
	state       framingState
	packet      [PacketSize1K + PacketOverhead]byte
	payloadSize int
	packetBytes int
	prevByte    byte

	// Session
	packetsReceived uint32
	eotReceived     bool
	cursor          uint32
	file            FileInfo
	fileAccepted    bool

	// Terminal latch
	status Status
	reply  []byte
	err    error

	logger    Logger
	callbacks *Callbacks
	progress  *ProgressTracker
}

// ReceiverConfig holds configuration for a receiver.
type ReceiverConfig struct {
	// Region is where the file is committed
	Region Region

	// Verify reads back every programmed packet
	Verify bool

	// MaxFileNameLength bounds the file name kept from packet #0
	MaxFileNameLength int

	// MaxFileSizeLength bounds the size field read from packet #0
	MaxFileSizeLength int

	// ProgressInterval rate-limits OnProgress
	ProgressInterval time.Duration

	Logger    Logger
	Callbacks *Callbacks
}

// DefaultReceiverConfig returns a default receiver configuration.
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		Region:            Region{Start: 0x08080000, Size: 256 * 1024},
		MaxFileNameLength: FileNameLength,
		MaxFileSizeLength: FileSizeLength,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// NewReceiver creates a receiver that commits into storage. The receiver starts in
// the reset state.
func NewReceiver(storage Storage, config *ReceiverConfig) *Receiver {
	if config == nil {
		config = DefaultReceiverConfig()
	}
	r := &Receiver{
		storage:   storage,
		region:    config.Region,
		verify:    config.Verify,
		nameLimit: config.MaxFileNameLength,
		sizeLimit: config.MaxFileSizeLength,
		logger:    config.Logger,
		callbacks: mergeCallbacks(config.Callbacks),
	}
	if r.nameLimit <= 0 {
		r.nameLimit = FileNameLength
	}
	if r.sizeLimit <= 0 {
		r.sizeLimit = FileSizeLength
	}
	if r.logger == nil {
		r.logger = NoopLogger{}
	}
	r.progress = NewProgressTracker(r.callbacks.OnProgress, config.ProgressInterval)
	r.Reset()

	r.logger.Info("Receiver created (region=%s, verify=%v)", r.region, r.verify)
	return r
}

// Reset returns the receiver to its creation-time state: framing idle, counters
// zero, cursor at the region start and no terminal status.
func (r *Receiver) Reset() {
	r.state = stateAwaitingHeader
	r.payloadSize = 0
	r.packetBytes = 0
	r.prevByte = 0
	r.packetsReceived = 0
	r.eotReceived = false
	r.cursor = r.region.Start
	r.file = FileInfo{}
	r.fileAccepted = false
	r.status = StatusOpen
	r.reply = nil
	r.err = nil
}

// ReceiveByte consumes one byte from the sender. It returns the bytes that must be
// transmitted back (zero, one or two) and the session status after the byte.
func (r *Receiver) ReceiveByte(c byte) ([]byte, Status) {
	if r.status.Terminal() {
		return r.latched()
	}

	o := r.frame(c)
	r.prevByte = c
	return r.apply(o)
}

// Abort cancels the session from the receiving side. It returns the cancel sequence
// to transmit and latches StatusAborted. Aborting a finished session returns its
// latched reply unchanged.
func (r *Receiver) Abort() ([]byte, Status) {
	return r.abortWith(NewError(ErrLocalAbort, "session aborted by receiver"))
}

func (r *Receiver) abortWith(err *Error) ([]byte, Status) {
	if r.status.Terminal() {
		return r.latched()
	}
	r.err = err
	return r.apply(outcomeAbort)
}

// Purge drops a partially framed packet so the next byte is read as a header.
// Transports call it after a read timeout, before asking for a resend.
func (r *Receiver) Purge() {
	if r.state == stateAccumulating {
		r.logger.Debug("Receiver: purging %d bytes of partial packet", r.packetBytes)
	}
	r.resetFraming()
}

// Status returns the latched session status.
func (r *Receiver) Status() Status {
	return r.status
}

// Err returns the error behind a terminal status, or nil while the session is open
// or after it completed.
func (r *Receiver) Err() error {
	return r.err
}

// File returns the metadata of the file being received once packet #0 is accepted.
func (r *Receiver) File() (FileInfo, bool) {
	return r.file, r.fileAccepted
}

// Region returns the storage region files are committed to.
func (r *Receiver) Region() Region {
	return r.region
}

// Cursor returns the next address to be programmed.
func (r *Receiver) Cursor() uint32 {
	return r.cursor
}

// BytesWritten returns the number of bytes programmed this session.
func (r *Receiver) BytesWritten() uint32 {
	return r.cursor - r.region.Start
}

// PacketsReceived returns the number of validated packets, packet #0 included.
func (r *Receiver) PacketsReceived() int {
	return int(r.packetsReceived)
}

func (r *Receiver) latched() ([]byte, Status) {
	return append([]byte(nil), r.reply...), r.status
}

// apply turns an outcome into wire bytes and latches terminal statuses.
func (r *Receiver) apply(o outcome) ([]byte, Status) {
	resp := respond(o)
	if resp.status.Terminal() {
		r.status = resp.status
		r.reply = resp.reply
		r.finish(o)
	}
	return append([]byte(nil), resp.reply...), resp.status
}

func (r *Receiver) finish(o outcome) {
	if r.status == StatusComplete {
		var duration time.Duration
		if r.fileAccepted {
			duration = r.progress.Complete()
		}
		r.logger.Info("Receiver: complete, %s (%d bytes) in %v", r.file.Name, r.BytesWritten(), duration)
		r.emit(EventFileComplete, r.file.Name, int(r.packetsReceived))
		r.callbacks.OnFileComplete(r.file.Name, int64(r.BytesWritten()), duration)
		return
	}

	if r.err == nil {
		r.err = NewError(ErrProtocol, fmt.Sprintf("session ended on %s", o))
	}
	r.logger.Error("Receiver: %s: %v", r.status, r.err)
	r.emit(EventAborted, r.err.Error(), int(r.packetsReceived))
	r.callbacks.OnError(r.err, "receive")
}

// frame advances the framing state machine by one byte.
func (r *Receiver) frame(c byte) outcome {
	if r.state == stateAwaitingHeader {
		return r.header(c)
	}
	return r.accumulate(c)
}

func (r *Receiver) header(c byte) outcome {
	switch c {
	case SOH:
		r.begin(c, PacketSize)
		return outcomeOK
	case STX:
		r.begin(c, PacketSize1K)
		return outcomeOK
	case EOT:
		// One more header packet follows to close the batch
		r.eotReceived = true
		r.logger.Debug("Receiver: EOT after %d packets", r.packetsReceived)
		r.emit(EventEndOfTransmission, "EOT", int(r.packetsReceived))
		return outcomeRxComplete
	case CA:
		if r.prevByte == CA {
			r.err = NewError(ErrCancelled, "sender cancelled with CA CA")
			return outcomeAborted
		}
		return outcomeOK
	case ABORT1, ABORT2:
		r.err = NewError(ErrAbortRequested, fmt.Sprintf("sender requested abort with %q", c))
		return outcomeAbortRequested
	default:
		r.reject(NewError(ErrProtocol, "unexpected header byte "+ControlName(c)))
		return outcomeRxError
	}
}

func (r *Receiver) begin(marker byte, payloadSize int) {
	r.payloadSize = payloadSize
	r.packet[0] = marker
	r.packetBytes = 1
	r.state = stateAccumulating
}

func (r *Receiver) accumulate(c byte) outcome {
	r.packet[r.packetBytes] = c
	r.packetBytes++
	if r.packetBytes < r.payloadSize+PacketOverhead {
		return outcomeOK
	}

	// Full frame: framing recovers whatever the validator decides
	defer r.resetFraming()

	if r.packet[seqIndex] != r.packet[seqCompIndex]^0xFF {
		r.reject(NewPacketError(ErrProtocol,
			fmt.Sprintf("sequence complement mismatch (%02x/%02x)", r.packet[seqIndex], r.packet[seqCompIndex]),
			int(r.packet[seqIndex])))
		return outcomeRxError
	}
	return r.validate()
}

func (r *Receiver) resetFraming() {
	r.state = stateAwaitingHeader
	r.packetBytes = 0
}

// validate checks a complete frame and routes it.
func (r *Receiver) validate() outcome {
	frame := r.packet[:r.payloadSize+PacketOverhead]
	r.logger.Debug("Receiver: %s", FormatPacketLog("RX", frame))

	if r.eotReceived {
		return outcomeSuccess
	}

	seq := r.packet[seqIndex]
	if seq != byte(r.packetsReceived) {
		r.reject(NewPacketError(ErrSequence,
			fmt.Sprintf("expected packet %d", byte(r.packetsReceived)), int(seq)))
		return outcomeRxError
	}
	if !checkCRC(frame, r.payloadSize) {
		r.reject(NewPacketError(ErrCRC, "trailer does not match payload", int(seq)))
		return outcomeRxError
	}

	if r.packetsReceived == 0 {
		return r.headerPacket()
	}
	return r.dataPacket()
}

func (r *Receiver) payload() []byte {
	return r.packet[PacketHeader : PacketHeader+r.payloadSize]
}

// headerPacket handles packet #0: file name and size.
func (r *Receiver) headerPacket() outcome {
	payload := r.payload()
	if payload[0] == 0 {
		// Empty file name: the sender has nothing (more) to send
		r.err = NewPacketError(ErrNoFile, "header packet has an empty file name", 0)
		return outcomeAbort
	}

	name, sizeField := splitHeader(payload, r.nameLimit, r.sizeLimit)
	size, ok := parseDecimal(sizeField)
	if !ok {
		r.logger.Error("Receiver: malformed size field %q, size unknown", sizeField)
		size = 0
	}
	r.logger.Info("Receiver: file=%s, size=%d", name, size)

	if r.region.Size == 0 || size > r.region.Size-1 {
		r.err = NewPacketError(ErrSize,
			fmt.Sprintf("file %s of %d bytes does not fit region %s", name, size, r.region), 0)
		return outcomeSizeError
	}

	err := r.withAccess(func() error {
		return r.storage.Prepare(r.region)
	})
	if err != nil {
		r.err = wrapError(ErrStorage, "prepare region "+r.region.String(), 0, err)
		return outcomeWriteError
	}

	r.file = FileInfo{Name: name, Size: size}
	r.fileAccepted = true
	r.packetsReceived = 1
	r.progress.Start(name, int64(size))
	r.emit(EventFileStart, name, 0)
	r.callbacks.OnFileStart(name, int64(size))
	return outcomeStartReceive
}

// splitHeader extracts the NUL-terminated file name and the size field that follows
// it, up to the first space. Both are truncated to their limits.
func splitHeader(payload []byte, nameLimit, sizeLimit int) (string, []byte) {
	nul := bytes.IndexByte(payload, 0)
	if nul < 0 {
		nul = len(payload)
	}
	name := payload[:nul]
	if len(name) > nameLimit {
		name = name[:nameLimit]
	}

	var field []byte
	if nul < len(payload) {
		field = payload[nul+1:]
	}
	if sp := bytes.IndexByte(field, ' '); sp >= 0 {
		field = field[:sp]
	}
	if len(field) > sizeLimit {
		field = field[:sizeLimit]
	}
	return string(name), field
}

// dataPacket programs the payload of packets #1..N at the cursor. Bytes past the end
// of the region are dropped.
func (r *Receiver) dataPacket() outcome {
	seq := int(r.packet[seqIndex])
	payload := r.payload()
	start := r.cursor

	err := r.withAccess(func() error {
		for _, b := range payload {
			if r.cursor-r.region.Start >= r.region.Size {
				break
			}
			if err := r.storage.Program(r.cursor, b); err != nil {
				return fmt.Errorf("program 0x%08x: %w", r.cursor, err)
			}
			r.cursor++
		}
		return nil
	})
	if err != nil {
		r.err = wrapError(ErrStorage, "write packet", seq, err)
		return outcomeWriteError
	}

	if r.verify {
		if err := r.verifyRange(start, payload[:r.cursor-start]); err != nil {
			r.err = wrapError(ErrStorage, "verify packet", seq, err)
			return outcomeWriteError
		}
	}

	r.packetsReceived++
	r.progress.Update(int64(r.BytesWritten()))
	r.emit(EventPacketAccepted, fmt.Sprintf("%d bytes at 0x%08x", r.cursor-start, start), seq)
	return outcomeRxOK
}

func (r *Receiver) verifyRange(start uint32, want []byte) error {
	for i, b := range want {
		addr := start + uint32(i)
		got, err := r.storage.Peek(addr)
		if err != nil {
			return fmt.Errorf("read back 0x%08x: %w", addr, err)
		}
		if got != b {
			return fmt.Errorf("verify 0x%08x: got 0x%02x, want 0x%02x", addr, got, b)
		}
	}
	return nil
}

// withAccess brackets fn with the backend's exclusive access, if it has one.
func (r *Receiver) withAccess(fn func() error) error {
	if a, ok := r.storage.(ExclusiveAccess); ok {
		if err := a.Acquire(); err != nil {
			return fmt.Errorf("acquire storage: %w", err)
		}
		defer a.Release()
	}
	return fn()
}

func (r *Receiver) reject(err *Error) {
	r.logger.Debug("Receiver: NAK: %v", err)
	r.emit(EventPacketRejected, err.Error(), err.Seq)
}

func (r *Receiver) emit(t EventType, msg string, seq int) {
	r.callbacks.OnEvent(Event{
		Type:      t,
		Message:   msg,
		Seq:       seq,
		Timestamp: time.Now(),
	})
}
