package broker

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"mgate/internal/logger"
)

// StreamKind selects which broker push feed to attach to.
type StreamKind string

const (
	StreamTicks  StreamKind = "ticks"
	StreamOrders StreamKind = "orders"
)

// Stream is one live broker push connection. Messages closes when the
// underlying connection is lost; there is no automatic reconnect.
type Stream interface {
	Messages() <-chan []byte
	Close() error
}

// StreamDialer opens broker push streams.
type StreamDialer interface {
	Dial(ctx context.Context, kind StreamKind) (Stream, error)
}

// WSStreamDialer connects to the vendor websocket feed, authorizing with the
// API key and the current access token.
type WSStreamDialer struct {
	wsURL   string
	apiKey  string
	tokenFn func() string
}

// NewWSStreamDialer creates a dialer. tokenFn supplies the session token at
// dial time so a re-login does not require rebuilding the dialer.
func NewWSStreamDialer(wsURL, apiKey string, tokenFn func() string) *WSStreamDialer {
	return &WSStreamDialer{wsURL: wsURL, apiKey: apiKey, tokenFn: tokenFn}
}

func (d *WSStreamDialer) Dial(ctx context.Context, kind StreamKind) (Stream, error) {
	header := http.Header{}
	header.Set("X-PrivateKey", d.apiKey)
	if token := d.tokenFn(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	url := fmt.Sprintf("%s/%s", d.wsURL, kind)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect broker stream %s: %w", kind, err)
	}

	s := &wsStream{
		conn: conn,
		msgs: make(chan []byte, 256),
	}
	go s.readLoop(kind)
	return s, nil
}

type wsStream struct {
	conn *websocket.Conn
	msgs chan []byte

	closeOnce sync.Once
}

func (s *wsStream) Messages() <-chan []byte {
	return s.msgs
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) readLoop(kind StreamKind) {
	defer func() {
		s.Close()
		close(s.msgs)
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithFields(map[string]interface{}{
					"stream": string(kind),
					"error":  err.Error(),
				}).Warn("broker stream closed")
			}
			return
		}
		select {
		case s.msgs <- message:
		default:
			// Slow relay; drop rather than block the read loop.
		}
	}
}

// MockStream is a channel-backed Stream for tests and the mock broker mode.
type MockStream struct {
	ch        chan []byte
	closeOnce sync.Once
}

// NewMockStream returns a stream whose messages are pushed via Push.
func NewMockStream() *MockStream {
	return &MockStream{ch: make(chan []byte, 16)}
}

func (m *MockStream) Push(msg []byte) {
	m.ch <- msg
}

func (m *MockStream) Messages() <-chan []byte { return m.ch }

func (m *MockStream) Close() error {
	m.closeOnce.Do(func() { close(m.ch) })
	return nil
}

// MockStreamDialer hands out pre-built mock streams.
type MockStreamDialer struct {
	mu      sync.Mutex
	streams map[StreamKind]*MockStream
}

func NewMockStreamDialer() *MockStreamDialer {
	return &MockStreamDialer{streams: make(map[StreamKind]*MockStream)}
}

// StreamFor returns (creating if needed) the mock stream for a kind.
func (d *MockStreamDialer) StreamFor(kind StreamKind) *MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.streams[kind]; ok {
		return s
	}
	s := NewMockStream()
	d.streams[kind] = s
	return s
}

func (d *MockStreamDialer) Dial(ctx context.Context, kind StreamKind) (Stream, error) {
	return d.StreamFor(kind), nil
}
