package realtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/state"
	"github.com/mingleapp/mingle/internal/store"
)

// EventSink receives decoded server pushes. The sync engine implements it.
type EventSink interface {
	HandleRealtimeMessage(msg state.Message)
	HandleRealtimeMatchUpdate(item state.MatchFeedItem)
	HandleRealtimePresence(p state.Presence)
}

// StatusChange is the bus payload for session.status events.
type StatusChange struct {
	From      state.SessionStatus
	To        state.SessionStatus
	SessionID string
}

// sessionTransitions defines the allowed session state transitions.
var sessionTransitions = map[state.SessionStatus][]state.SessionStatus{
	state.SessionDisconnected: {state.SessionConnecting},
	state.SessionConnecting:   {state.SessionConnected, state.SessionReconnecting, state.SessionDisconnected},
	state.SessionConnected:    {state.SessionReconnecting, state.SessionDisconnected},
	state.SessionReconnecting: {state.SessionConnecting, state.SessionDisconnected},
}

// Options tunes the manager's timers.
type Options struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

// Manager drives the push session lifecycle: dial, supervise, reconnect
// after a fixed delay, heartbeat while connected. It owns its connectivity
// subscription, registering it on Start and releasing it on Stop.
type Manager struct {
	store        *store.Store
	bus          *bus.Bus
	dial         Dialer
	sink         EventSink
	connectivity Connectivity
	logger       *zap.Logger
	opts         Options

	newID func() string
	now   func() time.Time

	mu        sync.Mutex
	started   bool
	status    state.SessionStatus
	sessionID string
	transport Transport
	visible   bool
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
	reconnect *time.Timer
}

// NewManager wires a manager over the given collaborators.
func NewManager(s *store.Store, b *bus.Bus, dial Dialer, sink EventSink, conn Connectivity, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	return &Manager{
		store:        s,
		bus:          b,
		dial:         dial,
		sink:         sink,
		connectivity: conn,
		logger:       logger,
		opts:         opts,
		newID:        uuid.NewString,
		now:          time.Now,
		status:       state.SessionDisconnected,
		visible:      true,
	}
}

// SessionID returns the current session id, empty when stopped. The id is
// stable across reconnects within one Start/Stop lifetime.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Status returns the current session status.
func (m *Manager) Status() state.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start begins the session. Calling Start on a started manager is a no-op.
// When the network is down the manager stays disconnected and dials as soon
// as connectivity returns.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.sessionID = m.newID()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	unsub := m.connectivity.Subscribe(m.onConnectivity)
	m.mu.Lock()
	m.unsub = unsub
	m.mu.Unlock()
	if m.connectivity.Online() {
		m.connect()
		return
	}
	// No point dialing a dead link: park in reconnecting and let the
	// connectivity subscription or the timer pick it up.
	m.logger.Info("starting offline, deferring first connect",
		zap.String("session_id", m.SessionID()))
	m.mu.Lock()
	m.transitionLocked(state.SessionConnecting)
	m.mu.Unlock()
	m.scheduleReconnect()
}

// Stop tears the session down: final offline presence, transport close,
// connectivity subscription released. Idempotent. The next Start gets a
// fresh session id.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	t := m.transport
	m.transport = nil
	cancel, unsub := m.cancel, m.unsub
	m.cancel, m.unsub = nil, nil
	if m.status != state.SessionDisconnected {
		m.transitionLocked(state.SessionDisconnected)
	}
	m.sessionID = ""
	m.mu.Unlock()

	if t != nil {
		if sender, ok := t.(PresenceSender); ok {
			if err := sender.SendPresence(m.presence(state.PresenceOffline)); err != nil {
				m.logger.Debug("final presence not delivered", zap.Error(err))
			}
		}
		if err := t.Disconnect(); err != nil {
			m.logger.Debug("transport close", zap.Error(err))
		}
	}
	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}

// VisibilityChanged reports the app moving between foreground and
// background. It only updates presence; the connection state is untouched.
func (m *Manager) VisibilityChanged(visible bool) {
	m.mu.Lock()
	m.visible = visible
	t := m.transport
	m.mu.Unlock()

	status := state.PresenceOffline
	if visible {
		status = state.PresenceOnline
	}
	m.send(t, status)
}

func (m *Manager) connect() {
	m.mu.Lock()
	if !m.started || m.status == state.SessionConnecting || m.status == state.SessionConnected {
		m.mu.Unlock()
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	// Defensive teardown; normal paths have already cleared it.
	if stale := m.transport; stale != nil {
		m.transport = nil
		defer func() { _ = stale.Disconnect() }()
	}
	m.transitionLocked(state.SessionConnecting)
	ctx := m.ctx
	m.mu.Unlock()

	t, err := m.dial(ctx)
	if err != nil {
		m.logger.Warn("realtime dial failed", zap.Error(err))
		m.scheduleReconnect()
		return
	}

	t.SubscribeToMessages(m.sink.HandleRealtimeMessage)
	t.SubscribeToMatches(m.sink.HandleRealtimeMatchUpdate)
	if recv, ok := t.(PresenceSender); ok {
		recv.SubscribeToPresence(m.sink.HandleRealtimePresence)
	}

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		_ = t.Disconnect()
		return
	}
	m.transport = t
	m.transitionLocked(state.SessionConnected)
	visible := m.visible
	m.mu.Unlock()

	go m.supervise(ctx, t)
	status := state.PresenceOffline
	if visible {
		status = state.PresenceOnline
	}
	m.send(t, status)
}

// supervise pumps the heartbeat and watches for a fatal transport error.
func (m *Manager) supervise(ctx context.Context, t Transport) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-t.Errors():
			if !ok {
				// Closed by our own Disconnect.
				return
			}
			m.logger.Warn("realtime connection lost", zap.Error(err))
			m.dropTransport(t)
			m.scheduleReconnect()
			return
		case <-ticker.C:
			m.mu.Lock()
			visible := m.visible
			m.mu.Unlock()
			status := state.PresenceOffline
			if visible {
				status = state.PresenceOnline
			}
			m.send(t, status)
		}
	}
}

// scheduleReconnect moves to reconnecting and arms the fixed-delay timer.
// If the network is still down when it fires, the pending connectivity
// subscription takes over instead.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	if m.status != state.SessionReconnecting {
		m.transitionLocked(state.SessionReconnecting)
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.reconnect = time.AfterFunc(m.opts.ReconnectDelay, func() {
		if m.connectivity.Online() {
			m.connect()
		}
	})
}

func (m *Manager) onConnectivity(online bool) {
	if online {
		m.mu.Lock()
		ready := m.started &&
			(m.status == state.SessionDisconnected || m.status == state.SessionReconnecting)
		m.mu.Unlock()
		if ready {
			m.connect()
		}
		return
	}

	m.mu.Lock()
	t := m.transport
	m.transport = nil
	lost := m.started &&
		(m.status == state.SessionConnected || m.status == state.SessionConnecting)
	if lost {
		m.transitionLocked(state.SessionReconnecting)
	}
	m.mu.Unlock()
	if t != nil {
		// Best effort; the link is probably already gone.
		m.send(t, state.PresenceOffline)
		_ = t.Disconnect()
	}
}

// dropTransport clears t if it is still the active transport. A stale
// supervise goroutine racing a newer connection must not tear it down.
func (m *Manager) dropTransport(t Transport) {
	m.mu.Lock()
	if m.transport == t {
		m.transport = nil
	}
	m.mu.Unlock()
	_ = t.Disconnect()
}

// transitionLocked enforces the session transition table, records the new
// status in the store, and publishes it on the bus. Callers hold m.mu.
func (m *Manager) transitionLocked(to state.SessionStatus) {
	from := m.status
	if !slices.Contains(sessionTransitions[from], to) {
		m.logger.Error("invalid session transition",
			zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	m.status = to
	m.store.Dispatch(state.SessionChanged{Snapshot: state.SessionSnapshot{
		ID:     m.sessionID,
		Status: to,
		Since:  m.now(),
	}})
	if m.bus != nil {
		m.bus.Publish(bus.Now(bus.KindSessionStatus, StatusChange{
			From:      from,
			To:        to,
			SessionID: m.sessionID,
		}))
	}
}

func (m *Manager) send(t Transport, status state.PresenceStatus) {
	if t == nil {
		return
	}
	sender, ok := t.(PresenceSender)
	if !ok {
		return
	}
	if err := sender.SendPresence(m.presence(status)); err != nil {
		m.logger.Debug("presence not delivered", zap.Error(err))
	}
}

func (m *Manager) presence(status state.PresenceStatus) state.Presence {
	p := state.Presence{Status: status, Since: m.now()}
	if profile := m.store.State().Profile.Data; profile != nil {
		p.UserID = profile.ID
	}
	return p
}
