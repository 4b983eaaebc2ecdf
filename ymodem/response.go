package ymodem

// Status is the state of a receive session as reported to the caller.
type Status int

const (
	// StatusOpen means the session is still accepting bytes
	StatusOpen Status = iota

	// StatusAborted means either side aborted the transfer
	StatusAborted

	// StatusWriteError means the storage backend failed
	StatusWriteError

	// StatusSizeError means the file does not fit the storage region
	StatusSizeError

	// StatusComplete means the file was received and committed
	StatusComplete
)

// Terminal reports whether the session has ended.
func (s Status) Terminal() bool {
	return s != StatusOpen
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAborted:
		return "aborted"
	case StatusWriteError:
		return "write error"
	case StatusSizeError:
		return "size error"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// outcome is the result of processing one byte, before translation to the wire.
type outcome int

const (
	outcomeOK             outcome = iota // nothing to send
	outcomeAborted                       // peer sent CA CA
	outcomeAbort                         // self-initiated abort (empty file name)
	outcomeAbortRequested                // peer sent 'A' or 'a'
	outcomeWriteError                    // storage failure
	outcomeSizeError                     // file larger than region
	outcomeStartReceive                  // packet #0 accepted
	outcomeRxError                       // packet rejected, ask for resend
	outcomeRxOK                          // data packet committed
	outcomeRxComplete                    // EOT seen
	outcomeSuccess                       // closing packet after EOT
)

var outcomeNames = []string{
	"ok",
	"aborted",
	"abort",
	"abort-requested",
	"write-error",
	"size-error",
	"start-receive",
	"rx-error",
	"rx-ok",
	"receive-complete",
	"success",
}

func (o outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// response is what the caller owes the sender for an outcome.
type response struct {
	reply  []byte
	status Status
}

var (
	replyAck     = []byte{ACK}
	replyAckCRC  = []byte{ACK, WANTCRC}
	replyNak     = []byte{NAK}
	replyCancel  = []byte{CA, CA}
	replyCRC     = []byte{WANTCRC}
	replyNoBytes = []byte(nil)
)

// respond maps an outcome to its reply bytes and the status the session moves to.
func respond(o outcome) response {
	switch o {
	case outcomeOK:
		return response{replyNoBytes, StatusOpen}
	case outcomeStartReceive, outcomeRxComplete:
		return response{replyAckCRC, StatusOpen}
	case outcomeRxError:
		return response{replyNak, StatusOpen}
	case outcomeRxOK:
		return response{replyAck, StatusOpen}
	case outcomeSuccess:
		return response{replyAck, StatusComplete}
	case outcomeSizeError:
		return response{replyCancel, StatusSizeError}
	case outcomeWriteError:
		return response{replyCancel, StatusWriteError}
	case outcomeAbort, outcomeAbortRequested:
		return response{replyCancel, StatusAborted}
	case outcomeAborted:
		return response{replyCRC, StatusAborted}
	}
	return response{replyCancel, StatusAborted}
}
