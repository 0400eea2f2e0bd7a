package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shintairiku/marketing-automation-sub003/pkg/events"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades, captures the query string, pushes scripted frames and
// records inbound ones.
type echoServer struct {
	mu       sync.Mutex
	query    string
	inbound  []string
	conns    []*websocket.Conn
	outbound chan string
}

func newEchoServer() *echoServer {
	return &echoServer{outbound: make(chan string, 8)}
}

func (s *echoServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.query = r.URL.RawQuery
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go func() {
		for frame := range s.outbound {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.inbound = append(s.inbound, string(data))
		s.mu.Unlock()
	}
}

// killConnections drops every upgraded connection without a close handshake.
// httptest's CloseClientConnections cannot do this: it stops tracking a
// connection once it is hijacked by the websocket upgrade.
func (s *echoServer) killConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *echoServer) receivedQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.query
}

func (s *echoServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.inbound))
	copy(out, s.inbound)

	return out
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met in time")
}

func TestClient_ConnectCarriesQueryParams(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	opened := make(chan struct{}, 1)
	client := NewClient(wsURL(server), Callbacks{
		OnOpen: func() { opened <- struct{}{} },
	}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1", UserID: "user-1"}))

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen was not invoked")
	}

	assert.True(t, client.IsConnected())
	assert.Contains(t, echo.receivedQuery(), "process_id=proc-1")
	assert.Contains(t, echo.receivedQuery(), "user_id=user-1")
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	client := NewClient(wsURL(server), Callbacks{}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))
	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))
	assert.True(t, client.IsConnected())
}

func TestClient_ConnectFailureIsRecorded(t *testing.T) {
	var captured error

	client := NewClient("ws://127.0.0.1:1/nowhere", Callbacks{
		OnError: func(err error) { captured = err },
	}, slog.Default())

	err := client.Connect(t.Context(), Params{ProcessID: "proc-1"})
	require.Error(t, err)
	assert.False(t, client.IsConnected())
	assert.NotEmpty(t, client.LastError())
	assert.Error(t, captured)
}

func TestClient_MessagesReachCallback(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	messages := make(chan string, 4)
	client := NewClient(wsURL(server), Callbacks{
		OnMessage: func(data []byte) { messages <- string(data) },
	}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))

	echo.outbound <- `{"type":"server_event","payload":{"step":"researching"}}`

	select {
	case msg := <-messages:
		assert.Contains(t, msg, "researching")
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestClient_StartGenerationEnvelope(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	client := NewClient(wsURL(server), Callbacks{}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))

	client.StartGeneration("proc-1", models.StartGenerationRequest{UserPrompt: "write about onboarding"})

	waitUntil(t, func() bool { return len(echo.received()) == 1 })

	var envelope map[string]any

	require.NoError(t, json.Unmarshal([]byte(echo.received()[0]), &envelope))
	assert.Equal(t, "start_generation", envelope["type"])
	assert.Equal(t, "proc-1", envelope["process_id"])

	payload, ok := envelope["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "write about onboarding", payload["user_prompt"])
}

func TestClient_SendResponseEnvelope(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	client := NewClient(wsURL(server), Callbacks{}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))

	client.SendResponse(events.NewClientResponse("proc-1", events.ResponseApprovePlan, events.ApprovalPayload{Approved: true}))

	waitUntil(t, func() bool { return len(echo.received()) == 1 })
	assert.Contains(t, echo.received()[0], `"response_type":"approve_plan"`)
	assert.Empty(t, client.LastError())
}

func TestClient_SendWhileDisconnectedRecordsError(t *testing.T) {
	client := NewClient("ws://localhost:0/ws", Callbacks{}, slog.Default())

	client.SendMessage(map[string]string{"type": "noop"})

	assert.Equal(t, "cannot send: connection is not open", client.LastError())
}

func TestClient_DisconnectIsSilentClosure(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))
	defer server.Close()

	var (
		mu      sync.Mutex
		onError bool
		closed  bool
	)

	client := NewClient(wsURL(server), Callbacks{
		OnError: func(error) {
			mu.Lock()
			onError = true
			mu.Unlock()
		},
		OnClose: func(int, string) {
			mu.Lock()
			closed = true
			mu.Unlock()
		},
	}, slog.Default())

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))

	client.Disconnect()
	assert.False(t, client.IsConnected())

	// A deliberate disconnect is a cancellation, never an error.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, onError)
	assert.False(t, closed)
	assert.Empty(t, client.LastError())
}

func TestClient_AbnormalCloseRecordsError(t *testing.T) {
	echo := newEchoServer()
	server := httptest.NewServer(http.HandlerFunc(echo.handler))

	errs := make(chan error, 1)
	client := NewClient(wsURL(server), Callbacks{
		OnError: func(err error) { errs <- err },
	}, slog.Default())
	defer client.Disconnect()

	require.NoError(t, client.Connect(t.Context(), Params{ProcessID: "proc-1"}))

	// Kill the server side without a close handshake.
	echo.killConnections()

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("abnormal closure was not surfaced")
	}

	assert.Contains(t, client.LastError(), "connection closed abnormally")
	assert.False(t, client.IsConnected())
	server.Close()
}
