package websocket

import (
	"errors"
	"sync"
	"time"
)

var errMockClosed = errors.New("mock connection closed")

type mockFrame struct {
	Type int
	Data []byte
}

// mockConnection records written frames. ReadMessage returns queued inbound
// frames and then blocks until Close.
type mockConnection struct {
	mu       sync.Mutex
	written  []mockFrame
	inbound  chan []byte
	closed   chan struct{}
	once     sync.Once
	limit    int64
	writeErr error
}

func newMockConnection(inbound ...string) *mockConnection {
	m := &mockConnection{
		inbound: make(chan []byte, len(inbound)),
		closed:  make(chan struct{}),
	}
	for _, msg := range inbound {
		m.inbound <- []byte(msg)
	}
	return m
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, mockFrame{Type: messageType, Data: append([]byte(nil), data...)})
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-m.inbound:
		return 1, msg, nil
	default:
	}
	select {
	case msg := <-m.inbound:
		return 1, msg, nil
	case <-m.closed:
		return 0, nil, errMockClosed
	}
}

func (m *mockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() string                { return "127.0.0.1:9999" }

func (m *mockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	m.limit = limit
	m.mu.Unlock()
}

func (m *mockConnection) readLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

func (m *mockConnection) frames() []mockFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockFrame(nil), m.written...)
}
