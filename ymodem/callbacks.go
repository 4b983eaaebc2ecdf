package ymodem

import "time"

// Callbacks provides hooks for YMODEM transfer events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnFileStart is called once packet #0 is accepted and the region is prepared.
	OnFileStart func(filename string, size int64)

	// OnProgress is called periodically while data packets are committed.
	// written: bytes programmed so far
	// total: declared file size (0 if unknown)
	// rate: transfer rate in bytes per second
	OnProgress func(filename string, written, total int64, rate float64)

	// OnFileComplete is called when the closing handshake finishes.
	OnFileComplete func(filename string, written int64, duration time.Duration)

	// OnError is called when a session ends with an error.
	// context: description of where the error occurred
	OnError func(err error, context string)

	// OnEvent is called for protocol events (debugging/logging).
	OnEvent func(event Event)
}

// Event represents a protocol event for logging/debugging.
type Event struct {
	Type      EventType
	Message   string
	Seq       int
	Timestamp time.Time
}

// EventType categorizes protocol events.
type EventType int

const (
	EventPacketAccepted EventType = iota
	EventPacketRejected
	EventEndOfTransmission
	EventFileStart
	EventFileComplete
	EventAborted
	EventError
	EventTimeout
)

func (t EventType) String() string {
	switch t {
	case EventPacketAccepted:
		return "packet-accepted"
	case EventPacketRejected:
		return "packet-rejected"
	case EventEndOfTransmission:
		return "eot"
	case EventFileStart:
		return "file-start"
	case EventFileComplete:
		return "file-complete"
	case EventAborted:
		return "aborted"
	case EventError:
		return "error"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFileStart:    func(string, int64) {},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError:        func(error, string) {},
		OnEvent:        func(Event) {},
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}
	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	}
	return result
}

// ChainCallbacks returns callbacks that invoke each non-nil set in order.
func ChainCallbacks(sets ...*Callbacks) *Callbacks {
	merged := make([]*Callbacks, 0, len(sets))
	for _, set := range sets {
		if set != nil {
			merged = append(merged, mergeCallbacks(set))
		}
	}
	return &Callbacks{
		OnFileStart: func(filename string, size int64) {
			for _, c := range merged {
				c.OnFileStart(filename, size)
			}
		},
		OnProgress: func(filename string, written, total int64, rate float64) {
			for _, c := range merged {
				c.OnProgress(filename, written, total, rate)
			}
		},
		OnFileComplete: func(filename string, written int64, duration time.Duration) {
			for _, c := range merged {
				c.OnFileComplete(filename, written, duration)
			}
		},
		OnError: func(err error, context string) {
			for _, c := range merged {
				c.OnError(err, context)
			}
		},
		OnEvent: func(event Event) {
			for _, c := range merged {
				c.OnEvent(event)
			}
		},
	}
}
