package inbox

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/model"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	// Disconnected means no connection exists and none will be attempted.
	Disconnected ConnState = iota
	// Connecting means a dial is in flight.
	Connecting
	// Open means the duplex connection is live.
	Open
	// Closed means the connection dropped and a reconnect is pending.
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// reconnectFailureThreshold is how many consecutive failed dials it takes
// before the trouble callback fires. Retries continue regardless.
const reconnectFailureThreshold = 5

// ErrManagerClosed is returned by Connect after explicit teardown.
var ErrManagerClosed = errors.New("connection manager closed")

// ErrNotOpen is returned by Send when the live connection is not open.
var ErrNotOpen = errors.New("connection not open")

// FrameHandler is invoked for every successfully parsed inbound frame.
type FrameHandler func(frame model.Frame)

// Manager owns the one live relay connection of a session: open, receive,
// close, reconnect. On an unexpected close it schedules exactly one
// reconnect attempt after a fixed delay; the timer handle is nil-guarded so
// overlapping close events cannot produce duplicate live connections.
// Disconnect cancels the timer and is the only terminal transition.
type Manager struct {
	mu        sync.Mutex
	wsBaseURL string
	delay     time.Duration
	dialer    *websocket.Dialer

	onFrame   FrameHandler
	onTrouble func(err error)

	identity  string
	token     string
	conn      *websocket.Conn
	state     ConnState
	reconnect *time.Timer
	closed    bool
	failures  int
}

// NewManager creates a manager dialing relays under wsBaseURL
// (e.g. "ws://127.0.0.1:8000") with the given reconnect delay.
func NewManager(wsBaseURL string, delay time.Duration) *Manager {
	return &Manager{
		wsBaseURL: strings.TrimRight(wsBaseURL, "/"),
		delay:     delay,
		dialer:    websocket.DefaultDialer,
		state:     Disconnected,
	}
}

// OnFrame registers the inbound frame callback. Must be set before Connect.
func (m *Manager) OnFrame(fn FrameHandler) {
	m.mu.Lock()
	m.onFrame = fn
	m.mu.Unlock()
}

// OnTrouble registers a callback fired once per streak of
// reconnectFailureThreshold consecutive failed dials.
func (m *Manager) OnTrouble(fn func(err error)) {
	m.mu.Lock()
	m.onTrouble = fn
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the per-session socket for identity, carrying the bearer
// credential. A failed dial is not surfaced to the user: it logs, counts
// toward the trouble threshold, and schedules the standard reconnect.
func (m *Manager) Connect(identity, token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.identity = identity
	m.token = token
	m.state = Connecting
	target := m.chatURL(identity, token)
	m.mu.Unlock()

	conn, _, err := m.dialer.Dial(target, nil)
	if err != nil {
		log.Printf("[WebSocket] connect failed: %v", err)
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrManagerClosed
		}
		m.state = Closed
		m.failures++
		trouble := m.onTrouble
		hitThreshold := m.failures == reconnectFailureThreshold
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		if hitThreshold && trouble != nil {
			trouble(fmt.Errorf("relay connection failed %d times in a row: %w", reconnectFailureThreshold, err))
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrManagerClosed
	}
	m.conn = conn
	m.state = Open
	m.failures = 0
	m.mu.Unlock()

	log.Printf("[WebSocket] connected as %s", identity)
	go m.readLoop(conn)
	return nil
}

// Send writes one outbound frame to the live connection. A write failure is
// treated as a connection loss and schedules a reconnect.
func (m *Manager) Send(frame model.OutboundFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Open || m.conn == nil {
		return ErrNotOpen
	}
	if err := m.conn.WriteJSON(frame); err != nil {
		log.Printf("[WebSocket] write failed: %v", err)
		m.conn.Close()
		m.conn = nil
		m.state = Closed
		m.scheduleReconnectLocked()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Disconnect is explicit teardown: it cancels any pending reconnect timer,
// closes the connection, and suppresses all further automatic reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = Disconnected
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame, perr := model.ParseFrame(data)
		if perr != nil {
			// Malformed frames are dropped whole; nothing partial may
			// reach the store.
			log.Printf("[WebSocket] dropped frame: %v", perr)
			continue
		}
		m.mu.Lock()
		handler := m.onFrame
		m.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}
	conn.Close()
	m.handleClose(conn)
}

// handleClose runs when a read loop exits. Stale loops (a conn the manager
// already replaced) only clean themselves up.
func (m *Manager) handleClose(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		// The manager already replaced or dropped this connection.
		return
	}
	m.conn = nil
	if m.closed {
		return
	}
	m.state = Closed
	log.Printf("[WebSocket] connection closed, reconnecting in %s", m.delay)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer. Callers hold
// m.mu. A second close event while a timer is pending is a no-op.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnect != nil || m.closed {
		return
	}
	m.reconnect = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.reconnect = nil
		if m.closed {
			m.mu.Unlock()
			return
		}
		identity, token := m.identity, m.token
		m.mu.Unlock()

		// Connect logs and re-schedules on its own failure.
		_ = m.Connect(identity, token)
	})
}

func (m *Manager) chatURL(identity, token string) string {
	return fmt.Sprintf("%s/ws/chat/%s/?token=%s",
		m.wsBaseURL, url.PathEscape(identity), url.QueryEscape(token))
}
