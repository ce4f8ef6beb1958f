package ad4826

import (
	"errors"
	"io"
)

// mockTransporter replays one scripted reply per ReadUntil and records every
// frame written.
type mockTransporter struct {
	replies  [][]byte
	writes   [][]byte
	writeErr error
	readErr  error
	closed   bool
}

func (m *mockTransporter) WriteRaw(data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	m.writes = append(m.writes, frame)
	return nil
}

func (m *mockTransporter) ReadUntil(terminator []byte) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.replies) == 0 {
		return nil, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *mockTransporter) Close() error {
	m.closed = true
	return nil
}

// commands returns the command field of every written frame.
func (m *mockTransporter) commands() []string {
	cmds := make([]string, 0, len(m.writes))
	for _, w := range m.writes {
		cmds = append(cmds, string(w[offsetCommand:offsetPayload]))
	}
	return cmds
}

// respFrame builds a response frame: header + unit + channel + cmd + payload + CRLF.
func respFrame(header byte, unit, channel, cmd, payload string) []byte {
	b := []byte{header}
	b = append(b, unit...)
	b = append(b, channel...)
	b = append(b, cmd...)
	b = append(b, payload...)
	return append(b, CR, LF)
}

// mockConn is a simple in-memory ReadWriteCloser for testing.
type mockConn struct {
	io.Reader
	io.Writer
	closed bool
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

// errReader fails every read with err.
type errReader struct{ err error }

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }

var errBoom = errors.New("boom")
