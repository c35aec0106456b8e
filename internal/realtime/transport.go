package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/state"
)

// Transport is one live push connection. Subscriptions must be registered
// right after dialing; frames arriving with no handler are dropped.
type Transport interface {
	SubscribeToMessages(fn func(state.Message))
	SubscribeToMatches(fn func(state.MatchFeedItem))
	// Errors delivers at most one fatal connection error, then the channel
	// is closed.
	Errors() <-chan error
	Disconnect() error
}

// PresenceSender is implemented by transports that can carry presence both
// ways.
type PresenceSender interface {
	SubscribeToPresence(fn func(state.Presence))
	SendPresence(p state.Presence) error
}

// Dialer opens a fresh Transport. The manager calls it on every connect and
// reconnect attempt.
type Dialer func(ctx context.Context) (Transport, error)

// envelope is the websocket wire frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	frameMessage  = "message"
	frameMatch    = "match"
	framePresence = "presence"
)

// wsTransport is the gorilla/websocket Transport.
type wsTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	errs chan error

	mu         sync.Mutex
	onMessage  func(state.Message)
	onMatch    func(state.MatchFeedItem)
	onPresence func(state.Presence)
	closed     bool
}

// WebsocketDialer returns a Dialer that connects to url with the given
// headers (typically the bearer token).
func WebsocketDialer(url string, header http.Header, logger *zap.Logger) Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) (Transport, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial realtime: %w", err)
		}
		t := &wsTransport{
			conn:   conn,
			logger: logger,
			errs:   make(chan error, 1),
		}
		go t.readLoop()
		return t, nil
	}
}

func (t *wsTransport) SubscribeToMessages(fn func(state.Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *wsTransport) SubscribeToMatches(fn func(state.MatchFeedItem)) {
	t.mu.Lock()
	t.onMatch = fn
	t.mu.Unlock()
}

func (t *wsTransport) SubscribeToPresence(fn func(state.Presence)) {
	t.mu.Lock()
	t.onPresence = fn
	t.mu.Unlock()
}

func (t *wsTransport) Errors() <-chan error {
	return t.errs
}

// SendPresence writes a presence frame. Writes are serialized under the
// transport mutex; the read loop never writes.
func (t *wsTransport) SendPresence(p state.Presence) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("send presence: connection closed")
	}
	return t.conn.WriteJSON(envelope{Type: framePresence, Payload: payload})
}

// Disconnect closes the connection. Safe to call more than once; the read
// loop unblocks with an error it knows to swallow.
func (t *wsTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *wsTransport) readLoop() {
	defer close(t.errs)
	for {
		var frame envelope
		if err := t.conn.ReadJSON(&frame); err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.errs <- err
			}
			return
		}
		t.dispatch(frame)
	}
}

func (t *wsTransport) dispatch(frame envelope) {
	t.mu.Lock()
	onMessage, onMatch, onPresence := t.onMessage, t.onMatch, t.onPresence
	t.mu.Unlock()

	switch frame.Type {
	case frameMessage:
		var msg state.Message
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			t.logger.Warn("malformed message frame", zap.Error(err))
			return
		}
		if onMessage != nil {
			onMessage(msg)
		}
	case frameMatch:
		var item state.MatchFeedItem
		if err := json.Unmarshal(frame.Payload, &item); err != nil {
			t.logger.Warn("malformed match frame", zap.Error(err))
			return
		}
		if onMatch != nil {
			onMatch(item)
		}
	case framePresence:
		var p state.Presence
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			t.logger.Warn("malformed presence frame", zap.Error(err))
			return
		}
		if onPresence != nil {
			onPresence(p)
		}
	default:
		t.logger.Debug("unknown frame type", zap.String("type", frame.Type))
	}
}
