package ymodem

import (
	"encoding/binary"
	"math/bits"
)

// CRCPoly is the CCITT polynomial used by XMODEM/YMODEM.
const CRCPoly = 0x1021

// crcUpdate shifts a single message bit into the register.
func crcUpdate(crc uint16, bit bool) uint16 {
	xor := crc&0x8000 != 0
	out := crc << 1
	if bit {
		out++
	}
	if xor {
		out ^= CRCPoly
	}
	return out
}

// CRC16 computes the XMODEM CRC of data, most significant bit first.
//
// The register is flushed with 16 zero bits after the data, so the result is the
// same as a CRC computed over data followed by two zero bytes.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, c := range data {
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			crc = crcUpdate(crc, c&mask != 0)
		}
	}
	for i := 0; i < 16; i++ {
		crc = crcUpdate(crc, false)
	}
	return crc
}

// checkCRC reports whether the trailer of frame matches its payload.
// The trailer is read in wire order into a little-endian register and compared
// with the byte-swapped engine value.
func checkCRC(frame []byte, payloadSize int) bool {
	end := payloadSize + PacketOverhead
	source := binary.LittleEndian.Uint16(frame[end-PacketTrailer : end])
	computed := bits.ReverseBytes16(CRC16(frame[PacketHeader : PacketHeader+payloadSize]))
	return computed == source
}
