package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	url string
	err error
}

func (r staticResolver) HubURL(context.Context) (string, error) {
	return r.url, r.err
}

type fakeConn struct {
	mu      sync.Mutex
	invokes []string
	closed  bool
}

func (c *fakeConn) Invoke(_ context.Context, target string, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ""
	if len(args) > 0 {
		key, _ = args[0].(string)
	}
	c.invokes = append(c.invokes, target+":"+key)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invokes...)
}

type fakeDialer struct {
	mu       sync.Mutex
	attempts []DialOptions
	failures int
	conn     *fakeConn
	cb       Callbacks
}

func (d *fakeDialer) Dial(_ context.Context, _ string, opts DialOptions, cb Callbacks) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, opts)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial refused")
	}
	d.conn = &fakeConn{}
	d.cb = cb
	return d.conn, nil
}

// gatedDialer holds every Dial call open until released, so tests can pile
// callers up on the establishment path.
type gatedDialer struct {
	fakeDialer
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, url string, opts DialOptions, cb Callbacks) (Conn, error) {
	d.entered <- struct{}{}
	<-d.release
	return d.fakeDialer.Dial(ctx, url, opts, cb)
}

func newTestManager(d Dialer) *Manager {
	// long heartbeat so the ticker never fires during a test
	return NewManager(staticResolver{url: "https://api.example.com/hubs/conversations"}, d, time.Hour)
}

func TestManagerEnsureConnected(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.EnsureConnected(context.Background()))
	assert.Equal(t, StateConnected, m.State())
	require.Len(t, dialer.attempts, 1)
	assert.False(t, dialer.attempts[0].SkipNegotiation)

	// second call reuses the connection
	require.NoError(t, m.EnsureConnected(context.Background()))
	assert.Len(t, dialer.attempts, 1)
}

func TestManagerConcurrentEnsureConnectedDialsOnce(t *testing.T) {
	dialer := &gatedDialer{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	m := newTestManager(dialer)
	defer m.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureConnected(context.Background())
		}(i)
	}

	// one caller reaches the dialer, the other must queue behind it
	<-dialer.entered
	time.Sleep(50 * time.Millisecond)
	close(dialer.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, dialer.attempts, 1)
	assert.False(t, dialer.conn.closed)
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerRetriesWithDirectWebsocket(t *testing.T) {
	dialer := &fakeDialer{failures: 1}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.EnsureConnected(context.Background()))
	require.Len(t, dialer.attempts, 2)
	assert.False(t, dialer.attempts[0].SkipNegotiation)
	assert.True(t, dialer.attempts[1].SkipNegotiation)
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerEstablishmentFailureIsTerminal(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	m := newTestManager(dialer)

	err := m.EnsureConnected(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
	// no background retry was scheduled
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, dialer.attempts, 2)
}

func TestManagerResolverFailureDisablesRealtime(t *testing.T) {
	m := NewManager(staticResolver{err: errors.New("no hub")}, &fakeDialer{}, time.Hour)
	err := m.EnsureConnected(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManagerJoinFlowsThroughConnection(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()
	require.NoError(t, m.EnsureConnected(context.Background()))

	m.JoinConversation("10")
	m.JoinConversation("10")
	m.JoinPhone("5511999")

	assert.Equal(t, []string{"JoinConversationGroup:10", "JoinPhoneGroup:5511999"}, dialer.conn.calls())
}

func TestManagerInvokeDroppedWhileDisconnected(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	m := newTestManager(dialer)

	// no connection: joins are counted but no remote call happens, no panic
	m.JoinConversation("10")
	convs, _ := m.registry.ActiveGroups()
	assert.Equal(t, []string{"10"}, convs)
}

func TestManagerReconnectReplaysCurrentCounts(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()
	require.NoError(t, m.EnsureConnected(context.Background()))

	m.JoinConversation("10")
	m.JoinConversation("11")
	m.JoinPhone("5511999")
	m.LeaveConversation("11") // fully released before the drop

	dialer.cb.OnReconnecting(errors.New("link lost"))
	assert.Equal(t, StateReconnecting, m.State())

	dialer.cb.OnReconnected()
	assert.Equal(t, StateConnected, m.State())

	calls := dialer.conn.calls()
	var replayJoins []string
	for _, c := range calls[4:] { // skip the original join/leave traffic
		replayJoins = append(replayJoins, c)
	}
	assert.ElementsMatch(t, []string{"JoinConversationGroup:10", "JoinPhoneGroup:5511999"}, replayJoins)
}

func TestManagerHeartbeatSilentUnlessConnected(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)

	m.heartbeatTick()
	assert.Nil(t, dialer.conn)

	require.NoError(t, m.EnsureConnected(context.Background()))
	m.heartbeatTick()
	assert.Equal(t, []string{"Ping:"}, dialer.conn.calls())

	dialer.cb.OnClose(errors.New("gone"))
	m.heartbeatTick()
	assert.Equal(t, []string{"Ping:"}, dialer.conn.calls())
	assert.Equal(t, int64(1), m.Reconnects())
}

func TestManagerCloseLeavesGroups(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	require.NoError(t, m.EnsureConnected(context.Background()))

	m.JoinConversation("10")
	m.Close()

	assert.True(t, dialer.conn.closed)
	assert.Contains(t, dialer.conn.calls(), "LeaveConversationGroup:10")
	assert.Equal(t, StateDisconnected, m.State())
}
