package ymodem

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalOverPipes(t *testing.T) {
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer inR.Close()
	defer outR.Close()

	term, err := OpenTerminal(inR, outW)
	require.NoError(t, err)
	require.False(t, term.Raw())

	go func() {
		for _, chunk := range transfer(pattern(10, 0)) {
			inW.Write(chunk)
		}
		inW.Close()
	}()

	mem := NewMemoryStorage(testRegion)
	s := newTestSession(term, term, mem)
	require.NoError(t, s.ReceiveFile(context.Background()))
	require.NoError(t, term.Close())
	require.NoError(t, outW.Close())

	reply := make([]byte, 16)
	n, err := outR.Read(reply)
	require.NoError(t, err)
	require.Equal(t, []byte{WANTCRC, ACK, WANTCRC, ACK, ACK, WANTCRC, ACK}, reply[:n])
	require.Equal(t, pattern(10, 0), mem.Bytes()[:10])
}
