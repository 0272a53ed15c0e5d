package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var ErrInvalidEndpoint = errors.New("invalid endpoint")
var ErrAlreadyRunning = errors.New("manager already running")

// User-facing error strings surfaced through Sink.HandleError.
const (
	MsgConnectFailed = "Failed to connect to WebSocket server. Please check if the server is running."
	MsgReconnecting  = "Connection lost. Reconnecting..."
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
	DefaultWriteTimeout      = 3 * time.Second
	DefaultReadLimit         = 1 << 20
)

const unmountReason = "Component unmounted"

// Sink receives connection transitions and raw frames. Frames arrive in the
// order they were read; transitions arrive in the order they happened.
type Sink interface {
	HandleOpen()
	HandleClose()
	HandleError(reason string)
	HandleFrame(data []byte)
}

type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type Config struct {
	// URL is the base endpoint, e.g. ws://localhost:8080/user.
	URL    string
	UserID string

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	// ConnectTimeout bounds a single dial. Zero waits forever.
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64

	Clock clock.Clock
	Rand  *rand.Rand
}

type event interface{ isEvent() }

type dialed struct {
	gen  int
	conn *websocket.Conn
	err  error
}

type readEnded struct {
	gen int
	err error
}

func (dialed) isEvent()    {}
func (readEnded) isEvent() {}

// Manager keeps one logical connection alive for one consumer. All state
// below the mutable marker is owned by the Run goroutine.
type Manager struct {
	cfg      Config
	endpoint string
	identity string
	sink     Sink
	logger   *zap.Logger
	clock    clock.Clock

	events    chan event
	reconnect chan struct{}
	stopping  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	phase     atomic.Int32
	wg        sync.WaitGroup

	// mutable
	gen        int
	conn       *websocket.Conn
	connCtx    context.Context
	connCancel context.CancelFunc
	heartbeat  *clock.Ticker
	retry      *clock.Timer
}

func NewManager(cfg Config, sink Sink, logger *zap.Logger) (*Manager, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	id := Identity(cfg.UserID, cfg.Rand)
	endpoint, err := Endpoint(cfg.URL, id)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		endpoint:  endpoint,
		identity:  id,
		sink:      sink,
		logger:    logger.With(zap.String("identity", id)),
		clock:     cfg.Clock,
		events:    make(chan event, 8),
		reconnect: make(chan struct{}, 1),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (m *Manager) Identity() string { return m.identity }
func (m *Manager) Endpoint() string { return m.endpoint }
func (m *Manager) Phase() Phase     { return Phase(m.phase.Load()) }

// Done is closed after Run has released the connection and its timers.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Reconnect drops the current connection (cleanly) and dials again right
// away. Requests made while one is pending are coalesced.
func (m *Manager) Reconnect() {
	select {
	case m.reconnect <- struct{}{}:
	default:
	}
}

// Run owns the connection until ctx is canceled. Cancelling ctx is the
// disposal path: whatever is open or dialing is closed with 1000 and every
// timer is stopped before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)
	defer m.teardown()

	m.dial()

	for {
		var tick, retry <-chan time.Time
		if m.heartbeat != nil {
			tick = m.heartbeat.C
		}
		if m.retry != nil {
			retry = m.retry.C
		}

		select {
		case <-ctx.Done():
			return nil

		case <-m.reconnect:
			m.restart()

		case <-tick:
			m.sendHeartbeat()

		case <-retry:
			m.retry = nil
			m.logger.Info("attempting to reconnect")
			m.sink.HandleError(MsgReconnecting)
			m.dial()

		case ev := <-m.events:
			switch e := ev.(type) {
			case dialed:
				m.handleDialed(e)
			case readEnded:
				m.handleReadEnded(e)
			}
		}
	}
}

func (m *Manager) setPhase(p Phase) {
	old := Phase(m.phase.Swap(int32(p)))
	if old != p {
		m.logger.Debug("phase", zap.Stringer("from", old), zap.Stringer("to", p))
	}
}

// dial starts attempt gen+1. The connection context is independent of the
// Run context so teardown decides how the socket is closed.
func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	connCtx, cancel := context.WithCancel(context.Background())
	m.connCtx, m.connCancel = connCtx, cancel
	m.setPhase(PhaseConnecting)
	m.logger.Info("connecting", zap.String("url", m.endpoint), zap.Int("attempt", gen))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var timeout *clock.Timer
		if m.cfg.ConnectTimeout > 0 {
			timeout = m.clock.AfterFunc(m.cfg.ConnectTimeout, cancel)
		}
		conn, _, err := websocket.Dial(connCtx, m.endpoint, nil)
		if timeout != nil {
			timeout.Stop()
		}
		m.deliver(dialed{gen: gen, conn: conn, err: err})
	}()
}

// deliver hands an event to the loop, or cleans up after it if the loop is
// already tearing down.
func (m *Manager) deliver(ev event) {
	select {
	case m.events <- ev:
	case <-m.stopping:
		if d, ok := ev.(dialed); ok && d.conn != nil {
			_ = d.conn.Close(websocket.StatusNormalClosure, unmountReason)
		}
	}
}

func (m *Manager) handleDialed(e dialed) {
	if e.gen != m.gen {
		if e.conn != nil {
			_ = e.conn.Close(websocket.StatusNormalClosure, "superseded")
		}
		return
	}
	if e.err != nil {
		m.logger.Warn("websocket connect failed", zap.Error(e.err))
		m.connCancel()
		m.sink.HandleError(MsgConnectFailed)
		m.closed(websocket.StatusAbnormalClosure)
		return
	}

	m.conn = e.conn
	m.conn.SetReadLimit(m.cfg.ReadLimit)
	m.heartbeat = m.clock.Ticker(m.cfg.HeartbeatInterval)
	m.setPhase(PhaseConnected)
	m.logger.Info("websocket connection established")
	m.sink.HandleOpen()

	m.write(types.ConnectMessage())

	m.wg.Add(1)
	go m.read(m.connCtx, m.conn, m.gen)
}

func (m *Manager) read(ctx context.Context, conn *websocket.Conn, gen int) {
	defer m.wg.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.deliver(readEnded{gen: gen, err: err})
			return
		}
		m.sink.HandleFrame(data)
	}
}

func (m *Manager) handleReadEnded(e readEnded) {
	if e.gen != m.gen || m.conn == nil {
		return
	}
	m.stopHeartbeat()
	_ = m.conn.CloseNow()
	m.conn = nil
	m.connCancel()

	code := websocket.CloseStatus(e.err)
	if code == -1 {
		// No close frame: the transport failed underneath us.
		m.logger.Warn("websocket error", zap.Error(e.err))
		m.sink.HandleError(MsgConnectFailed)
		code = websocket.StatusAbnormalClosure
	}
	m.closed(code)
}

// closed records the end of a connection and schedules the single retry
// that an abnormal close earns.
func (m *Manager) closed(code websocket.StatusCode) {
	m.logger.Info("websocket connection closed", zap.Int("code", int(code)))
	if code != websocket.StatusNormalClosure {
		m.retry = m.clock.Timer(m.cfg.ReconnectDelay)
		m.setPhase(PhaseReconnecting)
		m.logger.Info("abnormal closure, will reconnect", zap.Duration("delay", m.cfg.ReconnectDelay))
	} else {
		m.setPhase(PhaseDisconnected)
	}
	m.sink.HandleClose()
}

func (m *Manager) sendHeartbeat() {
	if m.Phase() != PhaseConnected || m.conn == nil {
		return
	}
	if m.write(types.HeartbeatMessage()) {
		m.logger.Debug("heartbeat sent")
	}
}

func (m *Manager) write(msg types.ClientMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("encode outbound frame", zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	wctx, cancel := context.WithTimeout(m.connCtx, m.cfg.WriteTimeout)
	defer cancel()
	if err := m.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		m.logger.Warn("write failed", zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) restart() {
	m.logger.Info("reconnect requested")
	wasOpen := m.conn != nil
	m.stopRetry()
	m.stopHeartbeat()
	if m.conn != nil {
		_ = m.conn.Close(websocket.StatusNormalClosure, "Reconnect requested")
		m.conn = nil
	}
	if m.connCancel != nil {
		m.connCancel()
	}
	if wasOpen {
		m.sink.HandleClose()
	}
	m.dial()
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) stopRetry() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) teardown() {
	close(m.stopping)
	m.stopHeartbeat()
	m.stopRetry()
	if m.conn != nil {
		m.logger.Info("cleaning up websocket connection")
		if err := m.conn.Close(websocket.StatusNormalClosure, unmountReason); err != nil {
			m.logger.Debug("close", zap.Error(err))
		}
		m.conn = nil
	}
	if m.connCancel != nil {
		m.connCancel()
	}
	m.wg.Wait()

	for {
		select {
		case ev := <-m.events:
			if d, ok := ev.(dialed); ok && d.conn != nil {
				_ = d.conn.Close(websocket.StatusNormalClosure, unmountReason)
			}
		default:
			m.setPhase(PhaseDisconnected)
			m.logger.Info("connection manager stopped")
			return
		}
	}
}
