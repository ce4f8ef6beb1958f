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
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by a transporter that has been closed.
var ErrClosed = errors.New("ad4826: transporter closed")

// Transporter is the byte-stream duplex channel a Client talks through.
type Transporter interface {
	// WriteRaw writes the whole frame.
	WriteRaw(data []byte) error
	// ReadUntil reads until terminator is seen or the read timeout elapses.
	// A timeout returns whatever was read so far, possibly nothing, and a
	// nil error. A frame over the size cap returns ErrFrameTooLarge.
	ReadUntil(terminator []byte) ([]byte, error)
	Close() error
}

const defaultMaxFrameSize = 1024

// SerialTransporter implements Transporter over any io.ReadWriteCloser:
// a serial port, or a net.Conn to a serial device server.
type SerialTransporter struct {
	conn         io.ReadWriteCloser
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int
	mu           sync.RWMutex
}

// NewSerialTransporter creates a SerialTransporter with the given timeouts.
// A zero readTimeout leaves read timing entirely to the port.
func NewSerialTransporter(conn io.ReadWriteCloser, readTimeout, writeTimeout time.Duration) *SerialTransporter {
	return &SerialTransporter{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxFrameSize: defaultMaxFrameSize,
	}
}

// WriteRaw writes raw bytes to the underlying connection.
func (t *SerialTransporter) WriteRaw(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrClosed
	}
	if len(data) == 0 {
		return fmt.Errorf("ad4826: cannot write empty data")
	}
	if c, ok := t.conn.(net.Conn); ok && t.writeTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		defer c.SetWriteDeadline(time.Time{})
	}
	written := 0
	for written < len(data) {
		n, err := t.conn.Write(data[written:])
		if err != nil {
			return fmt.Errorf("ad4826: write failed after %d bytes: %w", written, err)
		}
		if n == 0 {
			return fmt.Errorf("ad4826: partial write: expected %d bytes, wrote %d", len(data), written)
		}
		written += n
	}
	return nil
}

// ReadUntil reads byte by byte until the buffer ends with terminator, the
// read timeout elapses, the port reports end of stream, or maxFrameSize bytes
// have been collected.
func (t *SerialTransporter) ReadUntil(terminator []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrClosed
	}

	var deadline time.Time
	if t.readTimeout > 0 {
		deadline = time.Now().Add(t.readTimeout)
		if c, ok := t.conn.(net.Conn); ok {
			_ = c.SetReadDeadline(deadline)
			defer c.SetReadDeadline(time.Time{})
		}
	}

	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := t.conn.Read(one)
		if n > 0 {
			buf = append(buf, one[0])
			if len(terminator) > 0 && bytes.HasSuffix(buf, terminator) {
				return buf, nil
			}
			if len(buf) >= t.maxFrameSize {
				t.discardUntil(terminator, deadline)
				return buf, ErrFrameTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return buf, nil
			}
			return buf, fmt.Errorf("ad4826: read failed after %d bytes: %w", len(buf), err)
		}
		// Ports configured with a read timeout report it as a zero-length read.
		if n == 0 {
			return buf, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return buf, nil
		}
	}
}

// discardUntil drops the rest of an oversized frame so the next exchange
// starts on a frame boundary. It stops at the terminator, on any read error,
// or at deadline.
func (t *SerialTransporter) discardUntil(terminator []byte, deadline time.Time) {
	tail := make([]byte, 0, len(terminator))
	one := make([]byte, 1)
	for {
		n, err := t.conn.Read(one)
		if n > 0 && len(terminator) > 0 {
			if len(tail) == len(terminator) {
				tail = append(tail[:0], tail[1:]...)
			}
			tail = append(tail, one[0])
			if bytes.Equal(tail, terminator) {
				return
			}
		}
		if err != nil || n == 0 {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
	}
}

// isTimeout recognises the timeout errors of net.Conn and the serial drivers.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// Close closes the underlying connection.
func (t *SerialTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsConnected returns true if the connection is still open.
func (t *SerialTransporter) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil
}

// SetReadTimeout sets the overall timeout for one ReadUntil call.
func (t *SerialTransporter) SetReadTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = timeout
}

// SetWriteTimeout sets the write timeout used for net.Conn connections.
func (t *SerialTransporter) SetWriteTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeTimeout = timeout
}

// SetMaxFrameSize bounds the number of bytes a single ReadUntil collects.
func (t *SerialTransporter) SetMaxFrameSize(size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if size <= 0 {
		size = defaultMaxFrameSize
	}
	t.maxFrameSize = size
}
