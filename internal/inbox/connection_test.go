package inbox

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/model"
)

// frameServer is a minimal relay endpoint for dial-side tests. It accepts
// every upgrade, hands the connection to the test, and counts dials.
type frameServer struct {
	srv   *httptest.Server
	dials int32
	paths chan string
	conns chan *websocket.Conn
}

func newFrameServer(t *testing.T) *frameServer {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	fs := &frameServer{
		paths: make(chan string, 8),
		conns: make(chan *websocket.Conn, 8),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.dials, 1)
		fs.paths <- r.URL.String()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *frameServer) wsURL() string {
	return strings.Replace(fs.srv.URL, "http://", "ws://", 1)
}

func (fs *frameServer) dialCount() int32 {
	return atomic.LoadInt32(&fs.dials)
}

func (fs *frameServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a connection")
		return nil
	}
}

func waitState(t *testing.T, m *Manager, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, still %s", want, m.State())
}

// TestManagerConnect_DeliversFrames inbound frames reach the registered handler
func TestManagerConnect_DeliversFrames(t *testing.T) {
	fs := newFrameServer(t)
	m := NewManager(fs.wsURL(), 100*time.Millisecond)
	defer m.Disconnect()

	frames := make(chan model.Frame, 4)
	m.OnFrame(func(f model.Frame) { frames <- f })

	if err := m.Connect("alice", "secret token"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if m.State() != Open {
		t.Errorf("Expected state open, got %s", m.State())
	}

	// The dial target carries identity and escaped credential
	path := <-fs.paths
	if !strings.HasPrefix(path, "/ws/chat/alice/?token=secret") {
		t.Errorf("Unexpected dial path %q", path)
	}

	conn := fs.waitConn(t)
	conn.WriteJSON(map[string]interface{}{"message": "hi", "sender": "bob", "id": 5})

	select {
	case frame := <-frames:
		if frame.Sender != "bob" || frame.ID != "5" {
			t.Errorf("Unexpected frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for frame")
	}
}

// TestManager_DropsMalformedFrames a bad frame is dropped whole, the
// connection and later frames are unaffected
func TestManager_DropsMalformedFrames(t *testing.T) {
	fs := newFrameServer(t)
	m := NewManager(fs.wsURL(), 100*time.Millisecond)
	defer m.Disconnect()

	frames := make(chan model.Frame, 4)
	m.OnFrame(func(f model.Frame) { frames <- f })

	if err := m.Connect("alice", "alice"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := fs.waitConn(t)

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"sender":"bob"}`)) // missing message
	conn.WriteJSON(map[string]interface{}{"message": "still here", "sender": "bob"})

	select {
	case frame := <-frames:
		if frame.Message != "still here" {
			t.Errorf("Expected only the valid frame, got %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the valid frame")
	}

	select {
	case frame := <-frames:
		t.Errorf("Unexpected extra frame %+v", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestManagerReconnect_AfterClose an unexpected close leads to exactly one
// new dial after the delay
func TestManagerReconnect_AfterClose(t *testing.T) {
	fs := newFrameServer(t)
	m := NewManager(fs.wsURL(), 100*time.Millisecond)
	defer m.Disconnect()

	if err := m.Connect("alice", "alice"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := fs.waitConn(t)

	conn.Close()

	fs.waitConn(t) // the reconnect attempt
	if got := fs.dialCount(); got != 2 {
		t.Errorf("Expected 2 dials after one close, got %d", got)
	}
	waitState(t, m, Open)
}

// TestManagerReconnect_SingleTimer overlapping close events before the timer
// fires must not produce duplicate connections
func TestManagerReconnect_SingleTimer(t *testing.T) {
	fs := newFrameServer(t)
	m := NewManager(fs.wsURL(), 200*time.Millisecond)
	defer m.Disconnect()

	if err := m.Connect("alice", "alice"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	fs.waitConn(t)

	// Two close events 50ms apart with a 200ms delay: one timer, one dial.
	m.mu.Lock()
	m.state = Closed
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	m.mu.Lock()
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	time.Sleep(600 * time.Millisecond)

	if got := fs.dialCount(); got != 2 {
		t.Errorf("Expected exactly 2 dials (1 reconnect), got %d", got)
	}
}

// TestManagerDisconnect_CancelsReconnect explicit teardown cancels the
// pending timer and suppresses further dials
func TestManagerDisconnect_CancelsReconnect(t *testing.T) {
	fs := newFrameServer(t)
	m := NewManager(fs.wsURL(), 100*time.Millisecond)

	if err := m.Connect("alice", "alice"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := fs.waitConn(t)

	conn.Close()
	m.Disconnect()

	time.Sleep(400 * time.Millisecond)

	if got := fs.dialCount(); got != 1 {
		t.Errorf("Expected no dials after Disconnect, got %d total", got)
	}
	if m.State() != Disconnected {
		t.Errorf("Expected state disconnected, got %s", m.State())
	}
	if err := m.Connect("alice", "alice"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Expected ErrManagerClosed after teardown, got %v", err)
	}
}

// TestManagerConnect_RetriesFailedDial a failed dial is retried after the
// delay and reported once the failure streak hits the threshold
func TestManagerConnect_RetriesFailedDial(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		http.Error(w, "no upgrade here", http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewManager(strings.Replace(srv.URL, "http://", "ws://", 1), 30*time.Millisecond)
	defer m.Disconnect()

	trouble := make(chan error, 8)
	m.OnTrouble(func(err error) { trouble <- err })

	if err := m.Connect("alice", "alice"); err == nil {
		t.Fatal("Expected dial error")
	}
	if m.State() != Closed {
		t.Errorf("Expected state closed after failed dial, got %s", m.State())
	}

	select {
	case <-trouble:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the trouble callback")
	}

	if got := atomic.LoadInt32(&dials); got < reconnectFailureThreshold {
		t.Errorf("Expected at least %d dial attempts, got %d", reconnectFailureThreshold, got)
	}

	select {
	case err := <-trouble:
		t.Errorf("Trouble callback fired more than once per streak: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestManagerSend_NotOpen sends on a closed manager fail fast
func TestManagerSend_NotOpen(t *testing.T) {
	m := NewManager("ws://127.0.0.1:1", 100*time.Millisecond)

	err := m.Send(model.OutboundFrame{Message: "hi", Recipient: "bob"})
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
}
