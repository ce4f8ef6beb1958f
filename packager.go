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

import (
	"fmt"
	"strings"
)

// DecodeMode selects how bytes outside 7-bit ASCII are handled when response
// fields are decoded.
type DecodeMode int

const (
	// DecodeDrop omits non-ASCII bytes from the decoded string.
	DecodeDrop DecodeMode = iota
	// DecodeReplace substitutes ReplacementChar for each non-ASCII byte.
	DecodeReplace
)

// ReplacementChar is used by DecodeReplace.
const ReplacementChar = '?'

// Response is a decoded instrument response. ErrorCode is set only for NAK
// responses and Text only for the others.
type Response struct {
	Header     HeaderKind
	HeaderByte byte
	Unit       string
	Channel    string
	Command    string
	ErrorCode  string
	Text       string
	Raw        []byte
}

// IsNak reports whether the instrument rejected the command.
func (r *Response) IsNak() bool {
	return r.Header.IsNak()
}

// AD4826Packager builds command frames and decodes response frames.
// It holds no per-frame state and is safe for concurrent use.
type AD4826Packager struct {
	Mode DecodeMode
}

// NewAD4826Packager creates a packager using the legacy drop decode mode.
func NewAD4826Packager() *AD4826Packager {
	return &AD4826Packager{Mode: DecodeDrop}
}

// Pack builds ENQ + unit + channel + padded command + text + CRLF.
func (p *AD4826Packager) Pack(unit, channel Code, cmd string, text string) ([]byte, error) {
	padded, err := PadCommandCode(cmd)
	if err != nil {
		return nil, err
	}
	if err := validateText(text); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 1+2*CodeLen+CommandCodeLen+len(text)+len(Terminator))
	frame = append(frame, ENQ)
	frame = append(frame, unit[:]...)
	frame = append(frame, channel[:]...)
	frame = append(frame, padded...)
	frame = append(frame, text...)
	frame = append(frame, Terminator...)
	return frame, nil
}

// Unpack decodes a response frame. The terminator is not checked; the last
// two bytes are always treated as CRLF.
func (p *AD4826Packager) Unpack(frame []byte) (*Response, error) {
	if len(frame) < MinResponseLen {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrTooShort, len(frame), MinResponseLen)
	}

	header := ClassifyHeader(frame[0])
	raw := make([]byte, len(frame))
	copy(raw, frame)

	resp := &Response{
		Header:     header,
		HeaderByte: frame[0],
		Unit:       p.decode(frame[offsetUnit:offsetChannel]),
		Channel:    p.decode(frame[offsetChannel:offsetCommand]),
		Command:    p.decode(frame[offsetCommand:offsetPayload]),
		Raw:        raw,
	}

	if header.IsNak() {
		if len(frame) < MinNakResponseLen {
			return nil, fmt.Errorf("%w: NAK response has %d bytes, need at least %d", ErrTooShort, len(frame), MinNakResponseLen)
		}
		resp.ErrorCode = p.decode(frame[offsetPayload : offsetPayload+ErrorCodeLen])
		return resp, nil
	}

	resp.Text = p.decode(frame[offsetPayload : len(frame)-len(Terminator)])
	return resp, nil
}

// decode converts b to a string, handling non-ASCII bytes per p.Mode.
func (p *AD4826Packager) decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c <= 0x7F {
			sb.WriteByte(c)
			continue
		}
		if p.Mode == DecodeReplace {
			sb.WriteByte(ReplacementChar)
		}
	}
	return sb.String()
}

// validateText rejects text that cannot be sent as ASCII or would break
// framing.
func validateText(text string) error {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c > 0x7F {
			return fmt.Errorf("%w: %q is not ASCII", ErrInvalidText, text)
		}
		if c == CR || c == LF {
			return fmt.Errorf("%w: %q contains a line terminator", ErrInvalidText, text)
		}
	}
	return nil
}
