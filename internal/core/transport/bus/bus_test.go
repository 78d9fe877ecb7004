package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-debugbridge/internal/config"
	corebus "github.com/dep2p/go-debugbridge/internal/core/bus"
	"github.com/dep2p/go-debugbridge/internal/core/metrics"
	"github.com/dep2p/go-debugbridge/internal/core/transport"
	busif "github.com/dep2p/go-debugbridge/pkg/interfaces/bus"
	transportif "github.com/dep2p/go-debugbridge/pkg/interfaces/transport"
	"github.com/dep2p/go-debugbridge/pkg/types"
)

const testChannel = "target-token-1"

// ============================================================================
//                              测试辅助
// ============================================================================

// stateRecorder 并发安全的状态记录器
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

func (r *stateRecorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// payloadRecorder 并发安全的载荷记录器
type payloadRecorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *payloadRecorder) handler() transportif.PayloadHandler {
	return func(p string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.payloads = append(r.payloads, p)
	}
}

func (r *payloadRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.payloads))
	copy(out, r.payloads)
	return out
}

// advance 分小步推进 mock 时钟，给异步回调留出执行机会
func advance(mock *clock.Mock, total time.Duration) {
	const step = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		mock.Add(step)
		time.Sleep(time.Millisecond)
	}
}

func testConfig() config.TransportConfig {
	cfg := config.DefaultTransportConfig()
	return cfg
}

// ============================================================================
//                              基本契约
// ============================================================================

func TestTransport_ImplementsInterface(t *testing.T) {
	var _ transportif.Transport = (*Transport)(nil)
}

func TestTransport_IdleBeforeConnect(t *testing.T) {
	tr := New(testConfig(), corebus.NewBroker().Factory())
	assert.Equal(t, types.StateIdle, tr.State())
}

func TestTransport_ConnectEmptyEndpoint(t *testing.T) {
	tr := New(testConfig(), corebus.NewBroker().Factory())
	err := tr.Connect(context.Background(), "", transportif.ConnectOptions{})
	assert.ErrorIs(t, err, transport.ErrEmptyEndpoint)
	assert.Equal(t, types.StateIdle, tr.State())
}

func TestTransport_ConnectOpensImmediately(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	assert.Equal(t, types.StateOpen, tr.State())
	assert.Equal(t, []types.TransportState{types.StateConnecting, types.StateOpen}, rec.snapshot())

	require.NoError(t, tr.Disconnect(0, "test done"))
}

func TestTransport_ConnectFactoryError(t *testing.T) {
	boom := errors.New("no broker")
	factory := busif.Factory(func(string) (busif.Channel, error) { return nil, boom })
	tr := New(testConfig(), factory)

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	err := tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, types.StateClosed, tr.State())
	assert.Equal(t, []types.TransportState{types.StateConnecting, types.StateClosed}, rec.snapshot())
	assert.ErrorIs(t, rec.lastErr(), boom)
}

func TestTransport_ConnectWhileOpenIsNoop(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))

	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	assert.Equal(t, types.StateOpen, tr.State())

	require.NoError(t, tr.Disconnect(0, ""))
}

func TestTransport_ConnectAfterClosed(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))

	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(0, ""))

	err := tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestTransport_SendNotConnected(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))

	assert.ErrorIs(t, tr.Send("early"), transport.ErrNotConnected)

	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(0, ""))
	assert.ErrorIs(t, tr.Send("late"), transport.ErrNotConnected)
}

func TestTransport_DisconnectIdempotent(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	// Idle 时断开不报错
	require.NoError(t, tr.Disconnect(0, ""))

	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, tr.Disconnect(0, "bye"))
	require.NoError(t, tr.Disconnect(0, "bye again"))

	assert.Equal(t, types.StateClosed, tr.State())
	// Closed 只广播一次
	assert.Equal(t,
		[]types.TransportState{types.StateConnecting, types.StateOpen, types.StateClosed},
		rec.snapshot())
}

// ============================================================================
//                              载荷转发
// ============================================================================

func TestTransport_PayloadRoundTrip(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()

	a := New(testConfig(), broker.Factory(), WithClock(mock))
	b := New(testConfig(), broker.Factory(), WithClock(mock))
	require.NoError(t, a.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, b.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	defer func() {
		_ = a.Disconnect(0, "")
		_ = b.Disconnect(0, "")
	}()

	rec := &payloadRecorder{}
	b.Subscribe(rec.handler())

	require.NoError(t, a.Send(`{"method":"getState"}`))
	require.NoError(t, a.Send(`{"method":"step"}`))

	assert.Equal(t, []string{`{"method":"getState"}`, `{"method":"step"}`}, rec.snapshot())
}

// TestTransport_ControlPayloadsNotForwarded 验证 ping/pong 不进入载荷回调
func TestTransport_ControlPayloadsNotForwarded(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()

	a := New(testConfig(), broker.Factory(), WithClock(mock))
	b := New(testConfig(), broker.Factory(), WithClock(mock))
	require.NoError(t, a.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, b.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	defer func() {
		_ = a.Disconnect(0, "")
		_ = b.Disconnect(0, "")
	}()

	rec := &payloadRecorder{}
	b.Subscribe(rec.handler())

	// 推进若干个心跳周期，通道上有 ping/pong 往来
	advance(mock, 3*time.Second)

	require.NoError(t, a.Send("real payload"))
	assert.Equal(t, []string{"real payload"}, rec.snapshot())
}

// TestTransport_RepliesPongToPing 验证收到 ping 立即应答 pong
func TestTransport_RepliesPongToPing(t *testing.T) {
	broker := corebus.NewBroker()
	tr := New(testConfig(), broker.Factory(), WithClock(clock.NewMock()))
	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	defer func() { _ = tr.Disconnect(0, "") }()

	peer, err := broker.Join(testChannel)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	peer.Subscribe(func(p string) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	require.NoError(t, peer.Publish(PayloadPing))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{PayloadPong}, got)
}

// ============================================================================
//                              心跳
// ============================================================================

// TestTransport_HeartbeatKeepsOpen 对端持续应答时心跳不误杀连接
func TestTransport_HeartbeatKeepsOpen(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()

	a := New(testConfig(), broker.Factory(), WithClock(mock))
	b := New(testConfig(), broker.Factory(), WithClock(mock))
	require.NoError(t, a.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, b.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	defer func() {
		_ = a.Disconnect(0, "")
		_ = b.Disconnect(0, "")
	}()

	// 十个心跳周期内不发送任何应用载荷，仅靠 ping/pong 维持
	for i := 0; i < 10; i++ {
		advance(mock, time.Second)
		require.Equal(t, types.StateOpen, a.State(), "第 %d 个周期后不应关闭", i+1)
		require.Equal(t, types.StateOpen, b.State(), "第 %d 个周期后不应关闭", i+1)
	}
}

// TestTransport_HeartbeatTimeout 对端失联后在超时窗口内判定 Closed
func TestTransport_HeartbeatTimeout(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()
	counters := metrics.NewCounters()

	tr := New(testConfig(), broker.Factory(), WithClock(mock), WithCounters(counters))
	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))

	rec := &stateRecorder{}
	tr.OnStateChange(rec.handler())

	// 旁观者统计 ping 数量（不应答）
	peer, err := broker.Join(testChannel)
	require.NoError(t, err)
	var mu sync.Mutex
	var pings int
	peer.Subscribe(func(p string) {
		if p == PayloadPing {
			mu.Lock()
			pings++
			mu.Unlock()
		}
	})

	// 一个心跳间隔 + 超时窗口内必须判定失联
	advance(mock, testConfig().HeartbeatInterval+testConfig().PongTimeout+time.Second)

	require.Eventually(t, func() bool {
		return tr.State() == types.StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, rec.lastErr(), transport.ErrHeartbeatTimeout)
	assert.Equal(t, int64(1), counters.HeartbeatTimeouts())

	// 拆除之后不应再有 ping 定时器触发
	mu.Lock()
	before := pings
	mu.Unlock()
	advance(mock, 5*time.Second)
	mu.Lock()
	after := pings
	mu.Unlock()
	assert.Equal(t, before, after, "拆除后不应再发 ping")
}

// TestTransport_DisconnectCancelsHeartbeat 显式断开后定时器全部取消
func TestTransport_DisconnectCancelsHeartbeat(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()

	tr := New(testConfig(), broker.Factory(), WithClock(mock))
	require.NoError(t, tr.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))

	peer, err := broker.Join(testChannel)
	require.NoError(t, err)
	var mu sync.Mutex
	var pings int
	peer.Subscribe(func(p string) {
		if p == PayloadPing {
			mu.Lock()
			pings++
			mu.Unlock()
		}
	})

	require.NoError(t, tr.Disconnect(0, ""))

	advance(mock, 10*time.Second)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, pings, "断开后不应再发 ping")
}

// TestTransport_HandlerDisconnectsDuringDispatch 载荷回调内断开不 panic
func TestTransport_HandlerDisconnectsDuringDispatch(t *testing.T) {
	broker := corebus.NewBroker()
	mock := clock.NewMock()

	a := New(testConfig(), broker.Factory(), WithClock(mock))
	b := New(testConfig(), broker.Factory(), WithClock(mock))
	require.NoError(t, a.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	require.NoError(t, b.Connect(context.Background(), testChannel, transportif.ConnectOptions{}))
	defer func() { _ = a.Disconnect(0, "") }()

	var after []string
	b.Subscribe(func(p string) {
		_ = b.Disconnect(0, "reacting to payload")
	})
	b.Subscribe(func(p string) { after = append(after, p) })

	require.NoError(t, a.Send("trigger"))
	assert.Equal(t, types.StateClosed, b.State())
	// 同一次分发内的后续回调仍被调用
	assert.Equal(t, []string{"trigger"}, after)
}
