package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-debugbridge/internal/config"
	"github.com/dep2p/go-debugbridge/internal/core/transport"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

var upgrader = websocket.Upgrader{}

// newEchoServer 启动一个回显 WebSocket 服务，返回 ws:// 端点
func newEchoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newClosingServer 启动一个握手后立刻关闭连接的服务
func newClosingServer(t *testing.T, accepted chan<- *websocket.Conn) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type stateRecorder struct {
	mu     sync.Mutex
	states []types.TransportState
	errs   []error
}

func (r *stateRecorder) handler() transportif.StateHandler {
	return func(s types.TransportState, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
		r.errs = append(r.errs, err)
	}
}

func (r *stateRecorder) snapshot() []types.TransportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TransportState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) closedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == types.StateClosed {
			n++
		}
	}
	return n
}

// ============================================================================
//                              连接生命周期
// ============================================================================

func TestTransport_ImplementsInterface(t *testing.T) {
	var _ transportif.Transport = (*Transport)(nil)
}

func TestTransport_IdleBeforeConnect(t *testing.T) {
	tr := New(config.DefaultTransportConfig())
	assert.Equal(t, types.StateIdle, tr.State())
}

func TestTransport_ConnectEmptyEndpoint(t *testing.T) {
	tr := New(config.DefaultTransportConfig())
	err := tr.Connect(context.Background(), "", transportif.ConnectOptions{})
	assert.ErrorIs(t, err, transport.ErrEmptyEndpoint)
}

func TestTransport_ConnectResolvesAfterReady(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	assert.Equal(t, types.StateOpen, tr.State())
	assert.Equal(t, []types.TransportState{types.StateConnecting, types.StateOpen}, rec.snapshot())

	require.NoError(t, tr.Disconnect(0, "done"))
}

func TestTransport_ConnectFailureBroadcastsClosed(t *testing.T) {
	tr := New(config.DefaultTransportConfig())

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := tr.Connect(ctx, "ws://127.0.0.1:1/nothing-here", transportif.ConnectOptions{})
	require.Error(t, err)
	assert.Equal(t, types.StateClosed, tr.State())
	assert.Equal(t, []types.TransportState{types.StateConnecting, types.StateClosed}, rec.snapshot())
}

func TestTransport_ConnectWhileOpenIsNoop(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())

	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	assert.Equal(t, types.StateOpen, tr.State())

	require.NoError(t, tr.Disconnect(0, ""))
}

func TestTransport_ConnectAfterClosed(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())

	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(0, ""))

	err := tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestTransport_DisconnectIdempotent(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	// Idle 时断开不报错
	require.NoError(t, tr.Disconnect(0, ""))

	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(websocket.CloseNormalClosure, "bye"))
	require.NoError(t, tr.Disconnect(websocket.CloseNormalClosure, "bye again"))

	assert.Equal(t, types.StateClosed, tr.State())
	assert.Equal(t, 1, rec.closedCount(), "Closed 只广播一次")
}

// ============================================================================
//                              收发
// ============================================================================

func TestTransport_SendNotConnected(t *testing.T) {
	tr := New(config.DefaultTransportConfig())
	assert.ErrorIs(t, tr.Send("early"), transport.ErrNotConnected)

	endpoint := newEchoServer(t)
	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(0, ""))
	assert.ErrorIs(t, tr.Send("late"), transport.ErrNotConnected)
}

func TestTransport_PayloadRoundTrip(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())
	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	defer func() { _ = tr.Disconnect(0, "") }()

	var mu sync.Mutex
	var got []string
	tr.Subscribe(func(p string) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	payloads := []string{`{"id":1,"method":"getState"}`, `{"id":2,"method":"step"}`, "third"}
	for _, p := range payloads {
		require.NoError(t, tr.Send(p))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(payloads)
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// 回显按发送顺序返回
	assert.Equal(t, payloads, got)
}

func TestTransport_UnsubscribeStopsDelivery(t *testing.T) {
	endpoint := newEchoServer(t)
	tr := New(config.DefaultTransportConfig())
	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))
	defer func() { _ = tr.Disconnect(0, "") }()

	var mu sync.Mutex
	var kept, removed int
	tr.Subscribe(func(string) {
		mu.Lock()
		kept++
		mu.Unlock()
	})
	unsub := tr.Subscribe(func(string) {
		mu.Lock()
		removed++
		mu.Unlock()
	})
	unsub()

	require.NoError(t, tr.Send("one"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return kept == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, removed, "注销后的回调不应收到载荷")
}

// ============================================================================
//                              对端关闭
// ============================================================================

// TestTransport_PeerCloseBroadcastsClosed 对端关闭只广播一次 Closed，不自动重连
func TestTransport_PeerCloseBroadcastsClosed(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	endpoint := newClosingServer(t, accepted)

	tr := New(config.DefaultTransportConfig())
	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	require.NoError(t, tr.Connect(context.Background(), endpoint, transportif.ConnectOptions{}))

	server := <-accepted
	_ = server.Close()

	require.Eventually(t, func() bool {
		return tr.State() == types.StateClosed
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, rec.closedCount())
	assert.ErrorIs(t, tr.Send("after close"), transport.ErrNotConnected)
}
