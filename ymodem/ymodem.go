// Package ymodem implements the receiving side of the YMODEM file transfer protocol.
//
// YMODEM is a batch file transfer protocol for serial links. The sender opens a
// session with a header packet carrying the file name and size, streams fixed-size
// CRC-protected data packets, and closes with EOT followed by a final header packet.
//
// The package is built around a byte-at-a-time state machine (Receiver) that commits
// exactly one file into one contiguous storage region, plus a Session that drives a
// Receiver from a transport (serial port, terminal, SSH) with timeout handling and
// callback hooks for progress tracking.
package ymodem

import "fmt"

// Control characters (see http://textfiles.com/programming/ymodem.txt)
const (
	SOH     = 0x01 // Start of 128-byte packet
	STX     = 0x02 // Start of 1024-byte packet
	EOT     = 0x04 // End of transmission
	ACK     = 0x06
	NAK     = 0x15
	CA      = 0x18 // Two of these in succession aborts transfer
	WANTCRC = 0x43 // 'C', request 16-bit CRC mode
	ABORT1  = 0x41 // 'A', abort by user
	ABORT2  = 0x61 // 'a', abort by user
	CPMEOF  = 0x1A // Padding after the last byte of a file
)

// Packet geometry
const (
	// PacketSize is the payload size of an SOH packet
	PacketSize = 128

	// PacketSize1K is the payload size of an STX packet
	PacketSize1K = 1024

	// PacketHeader is marker + sequence + complement
	PacketHeader = 3

	// PacketTrailer is the 16-bit CRC
	PacketTrailer = 2

	// PacketOverhead is the number of framing bytes around a payload
	PacketOverhead = PacketHeader + PacketTrailer

	seqIndex     = 1
	seqCompIndex = 2
)

// Header packet field limits
const (
	// FileNameLength is the longest file name kept from packet #0
	FileNameLength = 256

	// FileSizeLength is the longest size field read from packet #0
	FileSizeLength = 16
)

var controlNames = map[byte]string{
	SOH:     "SOH",
	STX:     "STX",
	EOT:     "EOT",
	ACK:     "ACK",
	NAK:     "NAK",
	CA:      "CA",
	WANTCRC: "C",
	ABORT1:  "A",
	ABORT2:  "a",
}

// ControlName returns the mnemonic for a control byte, or its hex value.
func ControlName(c byte) string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", c)
}
