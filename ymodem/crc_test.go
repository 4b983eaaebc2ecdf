package ymodem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		crc  uint16
	}{
		{name: "check value", data: []byte("123456789"), crc: 0x31C3},
		{name: "empty", data: nil, crc: 0x0000},
		{name: "single byte", data: []byte{0x01}, crc: 0x1021},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.crc, CRC16(tc.data))
		})
	}
}

func TestCRC16MatchesReference(t *testing.T) {
	for _, n := range []int{1, 2, 127, PacketSize, PacketSize1K} {
		data := pattern(n, byte(n))
		require.Equalf(t, referenceCRC16(data), CRC16(data), "length %d", n)
	}
}

func TestCheckCRC(t *testing.T) {
	frame := makeData(7, []byte("payload"))
	require.True(t, checkCRC(frame, PacketSize))

	// Swapped trailer bytes
	swapped := append([]byte(nil), frame...)
	n := len(swapped)
	swapped[n-1], swapped[n-2] = swapped[n-2], swapped[n-1]
	require.False(t, checkCRC(swapped, PacketSize))

	big := buildPacket(STX, 3, pattern(PacketSize1K, 9), 0)
	require.True(t, checkCRC(big, PacketSize1K))
	big[PacketHeader] ^= 0x01
	require.False(t, checkCRC(big, PacketSize1K))
}
