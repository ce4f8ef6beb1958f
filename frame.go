// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package ad4826

import "fmt"

// Control bytes used by the AD-4826A serial protocol.
const (
	ENQ byte = 0x05 // Start of a command frame
	STX byte = 0x02 // Start of text (response with data)
	ACK byte = 0x06 // Acknowledge
	NAK byte = 0x15 // Negative acknowledge
	CR  byte = 0x0D
	LF  byte = 0x0A
)

// Frame layout constants.
const (
	CodeLen        = 2   // Unit No / Channel No width
	CommandCodeLen = 8   // Command code width after padding
	CommandFill    = '_' // Fill character for short command codes
	ErrorCodeLen   = 2   // Error code width in a NAK response

	offsetUnit    = 1
	offsetChannel = offsetUnit + CodeLen
	offsetCommand = offsetChannel + CodeLen
	offsetPayload = offsetCommand + CommandCodeLen

	// MinResponseLen is header(1) + unit(2) + channel(2) + cmd(8) + CRLF(2).
	MinResponseLen = offsetPayload + 2
	// MinNakResponseLen adds the 2-byte error code to MinResponseLen.
	MinNakResponseLen = MinResponseLen + ErrorCodeLen
)

// Terminator ends every request and response frame.
var Terminator = []byte{CR, LF}

// Kind enumerates response header classes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStartOfText
	KindAcknowledge
	KindNegativeAcknowledge
)

// HeaderKind is the classification of a response header byte. Byte always
// holds the original value so unknown headers can be reported.
type HeaderKind struct {
	Kind Kind
	Byte byte
}

// ClassifyHeader maps the first response byte to its HeaderKind.
func ClassifyHeader(b byte) HeaderKind {
	switch b {
	case STX:
		return HeaderKind{Kind: KindStartOfText, Byte: b}
	case ACK:
		return HeaderKind{Kind: KindAcknowledge, Byte: b}
	case NAK:
		return HeaderKind{Kind: KindNegativeAcknowledge, Byte: b}
	default:
		return HeaderKind{Kind: KindUnknown, Byte: b}
	}
}

// IsNak reports whether the header is a negative acknowledge.
func (h HeaderKind) IsNak() bool {
	return h.Kind == KindNegativeAcknowledge
}

// String returns STX, ACK, NAK or UNKNOWN(0xNN).
func (h HeaderKind) String() string {
	switch h.Kind {
	case KindStartOfText:
		return "STX"
	case KindAcknowledge:
		return "ACK"
	case KindNegativeAcknowledge:
		return "NAK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", h.Byte)
	}
}

// Code is a 2-character ASCII address field (Unit No or Channel No).
type Code [CodeLen]byte

// ParseCode validates s as exactly two printable ASCII characters.
func ParseCode(s string) (Code, error) {
	var c Code
	if len(s) != CodeLen {
		return c, fmt.Errorf("%w: %q has length %d, want %d", ErrInvalidCode, s, len(s), CodeLen)
	}
	for i := 0; i < CodeLen; i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return c, fmt.Errorf("%w: %q contains byte 0x%02X", ErrInvalidCode, s, s[i])
		}
		c[i] = s[i]
	}
	return c, nil
}

// MustCode is like ParseCode but panics on invalid input. Intended for
// constants and tests.
func MustCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Code) String() string {
	return string(c[:])
}

// PadCommandCode right-pads cmd with CommandFill to CommandCodeLen.
// Codes longer than CommandCodeLen or containing non-ASCII bytes are rejected.
func PadCommandCode(cmd string) (string, error) {
	if len(cmd) > CommandCodeLen {
		return "", fmt.Errorf("%w: %q is %d characters, max %d", ErrInvalidCommandCode, cmd, len(cmd), CommandCodeLen)
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] > 0x7F {
			return "", fmt.Errorf("%w: %q is not ASCII", ErrInvalidCommandCode, cmd)
		}
	}
	if len(cmd) == CommandCodeLen {
		return cmd, nil
	}
	buf := make([]byte, CommandCodeLen)
	copy(buf, cmd)
	for i := len(cmd); i < CommandCodeLen; i++ {
		buf[i] = CommandFill
	}
	return string(buf), nil
}
