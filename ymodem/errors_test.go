package ymodem

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	require.Equal(t, "ymodem timeout: no data", NewError(ErrTimeout, "no data").Error())
	require.Equal(t, "ymodem CRC error: bad trailer (packet 4)", NewPacketError(ErrCRC, "bad trailer", 4).Error())

	cause := errors.New("flash locked")
	err := wrapError(ErrStorage, "prepare", 0, cause)
	require.Equal(t, "ymodem storage error: prepare (packet 0): flash locked", err.Error())
	require.True(t, errors.Is(err, cause))
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("session: %w", NewError(ErrAbortRequested, "A"))

	require.True(t, IsTimeout(NewError(ErrTimeout, "")))
	require.True(t, IsCRC(NewPacketError(ErrCRC, "", 1)))
	require.True(t, IsStorage(wrapError(ErrStorage, "", 1, errors.New("x"))))
	require.True(t, IsCancelled(wrapped))

	for _, typ := range []ErrorType{ErrCancelled, ErrNoFile, ErrLocalAbort} {
		require.Truef(t, IsCancelled(NewError(typ, "")), "%s", typ)
	}
	for _, typ := range []ErrorType{ErrProtocol, ErrSequence, ErrSize, ErrIO} {
		require.Falsef(t, IsCancelled(NewError(typ, "")), "%s", typ)
	}

	require.False(t, IsTimeout(errors.New("timeout")))
	require.False(t, IsStorage(nil))
}
