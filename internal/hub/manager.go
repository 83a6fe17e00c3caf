package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EndpointResolver yields the hub endpoint URL. Implementations cache the
// value for the life of the session; a failure disables real-time entirely
// and callers fall back to polling.
type EndpointResolver interface {
	HubURL(ctx context.Context) (string, error)
}

const defaultHeartbeatInterval = 15 * time.Second

// Manager owns the single hub connection shared by every view in the process.
// Views join and leave groups through the manager's registry; the manager
// replays held groups after a reconnect so consumers never re-issue joins
// themselves.
type Manager struct {
	resolver EndpointResolver
	dialer   Dialer

	registry   *GroupRegistry
	dispatcher *Dispatcher

	// dialMu serializes establishment so concurrent EnsureConnected calls
	// produce at most one live connection.
	dialMu sync.Mutex

	mu    sync.Mutex
	state ConnectionState
	conn  Conn

	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}

	reconnects atomic.Int64 // diagnostic only
}

// NewManager wires a manager around the given resolver and dialer.
func NewManager(resolver EndpointResolver, dialer Dialer, heartbeat time.Duration) *Manager {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	m := &Manager{
		resolver:          resolver,
		dialer:            dialer,
		dispatcher:        NewDispatcher(),
		state:             StateDisconnected,
		heartbeatInterval: heartbeat,
	}
	m.registry = NewGroupRegistry(m.safeInvoke)
	return m
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reconnects reports how many times the transport dropped since startup.
func (m *Manager) Reconnects() int64 {
	return m.reconnects.Load()
}

// EnsureConnected is idempotent: an existing non-disconnected connection is
// reused. Establishment tries the negotiated transport first and retries once
// with a direct websocket dial; when both fail the error is returned and no
// background retry is scheduled.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	if m.conn != nil && m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	hubURL, err := m.resolver.HubURL(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	cb := Callbacks{
		OnEvent:        m.dispatcher.dispatch,
		OnClose:        m.onClose,
		OnReconnecting: m.onReconnecting,
		OnReconnected:  m.onReconnected,
	}
	conn, err := m.dialer.Dial(ctx, hubURL, DialOptions{}, cb)
	if err != nil {
		zap.L().Warn("hub: negotiated connect failed, retrying with direct websocket", zap.Error(err))
		conn, err = m.dialer.Dial(ctx, hubURL, DialOptions{SkipNegotiation: true}, cb)
	}
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	m.mu.Lock()
	stale := m.conn
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()
	if stale != nil {
		// a dead connection left behind by onClose
		_ = stale.Close()
	}
	m.startHeartbeat()
	zap.L().Info("hub: connected", zap.String("url", hubURL))
	return nil
}

// Resume proactively re-establishes the connection when it is down. It covers
// the case of a consumer attaching after a silent teardown; while connected it
// is a no-op.
func (m *Manager) Resume(ctx context.Context) {
	if m.State() != StateDisconnected {
		return
	}
	if err := m.EnsureConnected(ctx); err != nil {
		zap.L().Warn("hub: resume failed", zap.Error(err))
	}
}

// Close leaves every held group best-effort, stops the heartbeat and drops
// the connection.
func (m *Manager) Close() {
	m.registry.Shutdown()
	m.stopHeartbeat()
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Facade delegated to the registry and dispatcher, so view code never touches
// the transport directly.

func (m *Manager) JoinConversation(id string)  { m.registry.JoinConversation(id) }
func (m *Manager) LeaveConversation(id string) { m.registry.LeaveConversation(id) }
func (m *Manager) JoinPhone(phone string)      { m.registry.JoinPhone(phone) }
func (m *Manager) LeavePhone(phone string)     { m.registry.LeavePhone(phone) }

func (m *Manager) OnConversationUpdated(h func(Payload)) func() {
	return m.dispatcher.OnConversationUpdated(h)
}

func (m *Manager) OnConversationCreated(h func(Payload)) func() {
	return m.dispatcher.OnConversationCreated(h)
}

// safeInvoke is the single path for remote calls. Outside the connected state
// it drops the call with a warning instead of failing; the reconnect replay
// recovers any join lost in that gap.
func (m *Manager) safeInvoke(method string, args ...interface{}) {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()
	if conn == nil || state != StateConnected {
		zap.L().Warn("hub: cannot invoke, connection not ready",
			zap.String("method", method), zap.String("state", state.String()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Invoke(ctx, method, args...); err != nil {
		zap.L().Warn("hub: invoke failed", zap.String("method", method), zap.Error(err))
	}
}

func (m *Manager) setState(s ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) onClose(err error) {
	zap.L().Warn("hub: connection closed", zap.Error(err))
	m.setState(StateDisconnected)
	m.stopHeartbeat()
	m.reconnects.Add(1)
}

func (m *Manager) onReconnecting(err error) {
	zap.L().Warn("hub: reconnecting", zap.Error(err))
	m.setState(StateReconnecting)
}

// onReconnected replays every group holding a positive reference count. The
// replay reads current counts, so a group joined and fully left during the
// outage is not rejoined and no group is joined twice.
func (m *Manager) onReconnected() {
	m.setState(StateConnected)
	convs, phones := m.registry.ActiveGroups()
	for _, id := range convs {
		m.safeInvoke(MethodJoinConversation, id)
	}
	for _, phone := range phones {
		m.safeInvoke(MethodJoinPhone, phone)
	}
	m.startHeartbeat()
	zap.L().Info("hub: reconnected, groups replayed",
		zap.Int("conversations", len(convs)), zap.Int("phones", len(phones)))
}

func (m *Manager) startHeartbeat() {
	m.mu.Lock()
	if m.heartbeatStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.heartbeatStop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.heartbeatTick()
			}
		}
	}()
}

// heartbeatTick pings the hub; it stays silent in any non-connected state.
func (m *Manager) heartbeatTick() {
	if m.State() != StateConnected {
		return
	}
	m.safeInvoke(MethodPing)
}

func (m *Manager) stopHeartbeat() {
	m.mu.Lock()
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	m.mu.Unlock()
}
