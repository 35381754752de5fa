package websocket

import (
	"errors"
	"sync"
	"time"
)

// mockFrame is one message read from or written to a mockConn.
type mockFrame struct {
	messageType int
	data        []byte
	err         error
}

// mockConn is an in-memory Connection for pump tests. Reads return queued
// frames in order and error out when the queue is exhausted, which makes the
// read pump terminate.
type mockConn struct {
	mu sync.Mutex

	written []mockFrame

	reads     []mockFrame
	readIndex int

	closed      bool
	readLimit   int64
	pongHandler func(string) error

	readDeadline  time.Time
	writeDeadline time.Time

	writeErr error
}

func newMockConn() *mockConn {
	return &mockConn{}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if m.closed {
		return errors.New("connection closed")
	}

	frame := mockFrame{messageType: messageType, data: make([]byte, len(data))}
	copy(frame.data, data)
	m.written = append(m.written, frame)
	return nil
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, errors.New("connection closed")
	}
	if m.readIndex < len(m.reads) {
		frame := m.reads[m.readIndex]
		m.readIndex++
		return frame.messageType, frame.data, frame.err
	}
	return 0, nil, errors.New("no more messages")
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readDeadline = t
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeDeadline = t
	return nil
}

func (m *mockConn) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readLimit = limit
}

func (m *mockConn) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pongHandler = h
}

func (m *mockConn) RemoteAddr() string {
	return "127.0.0.1:8080"
}

// queueRead appends a frame to be returned by ReadMessage.
func (m *mockConn) queueRead(messageType int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads = append(m.reads, mockFrame{messageType: messageType, data: data})
}

// writtenFrames returns a copy of everything written so far.
func (m *mockConn) writtenFrames() []mockFrame {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]mockFrame, len(m.written))
	copy(out, m.written)
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *mockConn) getReadLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.readLimit
}

func (m *mockConn) getPongHandler() func(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pongHandler
}
