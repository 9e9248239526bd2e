package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/garage-relay/internal/actuator"
	"github.com/nerrad567/garage-relay/internal/audit"
	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	"github.com/nerrad567/garage-relay/internal/metrics"
	"github.com/nerrad567/garage-relay/internal/user"
	_ "github.com/nerrad567/garage-relay/migrations"
)

var testWSConfig = config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type testEnv struct {
	srv    *Server
	db     *database.DB
	users  *user.SQLiteRepository
	audit  *audit.SQLiteRepository
	events *recordingPublisher
}

type envOption func(*Deps)

func withActuator(a actuator.Actuator) envOption {
	return func(d *Deps) { d.Actuator = a }
}

func withKeyCheck() envOption {
	return func(d *Deps) { d.Security.RequireRegisteredKey = true }
}

// setupTestDB opens an in-memory database with the embedded schema applied.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 5})
	require.NoError(t, err, "open test database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()), "migrate test database")
	return db
}

// testServer creates a Server with a NoOp actuator and SQLite-backed stores.
func testServer(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	env := &testEnv{
		db:     db,
		users:  user.NewSQLiteRepository(db.DB),
		audit:  audit.NewSQLiteRepository(db.DB),
		events: &recordingPublisher{},
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:        testWSConfig,
		Logger:    logging.Discard(),
		Actuator:  actuator.NewNoOp(actuator.Options{Pin: 2, Hold: 200 * time.Millisecond, ActiveLow: true, RestoreInactive: true}),
		Users:     env.users,
		AuditRepo: env.audit,
		Events:    env.events,
		DB:        db,
		Metrics:   metrics.New(),
		Version:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	env.srv = srv
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

// ─── Toggle ────────────────────────────────────────────────────────

func TestToggle_NoOp(t *testing.T) {
	env := testServer(t)

	start := time.Now()
	w := env.do(http.MethodPost, "/toggle/anykey", "")
	took := time.Since(start)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, w.Body.Len(), "body")
	assert.Less(t, took, 200*time.Millisecond, "NoOp toggle should return well under the hold")

	got := env.events.all()
	require.Len(t, got, 1)
	assert.Equal(t, events.DoorToggled, got[0].Type)
	assert.Equal(t, events.KeyFingerprint("anykey"), got[0].KeyID)
	assert.Equal(t, 2, got[0].Pin)
}

func TestToggle_BackendFailure(t *testing.T) {
	backend := actuator.NewFakeBackend()
	backend.SetAcquireErr(errors.New("gpio memory unavailable"))
	drv, err := actuator.NewDriver(backend, actuator.Options{Pin: 2, Hold: time.Millisecond})
	require.NoError(t, err)

	env := testServer(t, withActuator(drv))
	w := env.do(http.MethodPost, "/toggle/anykey", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "gpio memory unavailable")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"), "Content-Type = %q", w.Header().Get("Content-Type"))

	got := env.events.all()
	require.Len(t, got, 1)
	assert.Equal(t, events.DoorFailed, got[0].Type)
	assert.NotEmpty(t, got[0].Error)
}

func TestToggle_PulsesFakeLine(t *testing.T) {
	backend := actuator.NewFakeBackend()
	drv, err := actuator.NewDriver(backend, actuator.Options{
		Pin: 2, Hold: 20 * time.Millisecond, ActiveLow: true, RestoreInactive: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })

	env := testServer(t, withActuator(drv))
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/toggle/k", "").Code)

	tr := backend.Line(2).Transitions()
	require.Len(t, tr, 2)
	assert.Equal(t, actuator.Low, tr[0].Level)
	assert.Equal(t, actuator.High, tr[1].Level)
	assert.GreaterOrEqual(t, tr[1].At.Sub(tr[0].At), 20*time.Millisecond)
}

func TestToggle_KeyCheck(t *testing.T) {
	env := testServer(t, withKeyCheck())

	w := env.do(http.MethodPost, "/toggle/"+uuid.NewString(), "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unknown access key", w.Body.String())
	assert.Empty(t, env.events.all(), "rejected toggle should not publish")

	u, err := env.users.Register(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/toggle/"+u.Key, "").Code)
}

func TestToggle_KeyCheckStorageError(t *testing.T) {
	env := testServer(t, withKeyCheck())
	env.db.Close()

	w := env.do(http.MethodPost, "/toggle/whatever", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestToggle_WrongMethod(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/toggle/anykey", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// ─── Registration ──────────────────────────────────────────────────

func registeredKey(t *testing.T, body string) string {
	t.Helper()
	const prefix, suffix = "<h1>User code</h1><p>", "</p>"
	require.True(t, strings.HasPrefix(body, prefix) && strings.HasSuffix(body, suffix), "body = %q, want user code fragment", body)
	return strings.TrimSuffix(strings.TrimPrefix(body, prefix), suffix)
}

func TestRegisterUser_StringBody(t *testing.T) {
	env := testServer(t)

	w1 := env.do(http.MethodPost, "/user", `"alice"`)
	w2 := env.do(http.MethodPost, "/user", `"alice"`)

	for _, w := range []*httptest.ResponseRecorder{w1, w2} {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"), "Content-Type = %q", w.Header().Get("Content-Type"))
	}

	k1, k2 := registeredKey(t, w1.Body.String()), registeredKey(t, w2.Body.String())
	assert.NotEqual(t, k1, k2)
	for _, k := range []string{k1, k2} {
		_, err := uuid.Parse(k)
		assert.NoError(t, err, "key %q is not a UUID", k)
		u, err := env.users.GetByKey(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Name)
	}

	got := env.events.all()
	require.Len(t, got, 2)
	assert.Equal(t, events.UserRegistered, got[0].Type)
	assert.Equal(t, events.KeyFingerprint(k1), got[0].KeyID)
}

func TestRegisterUser_ObjectBody(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodPost, "/user", `{"name":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code)

	u, err := env.users.GetByKey(context.Background(), registeredKey(t, w.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name)
}

func TestRegisterUser_BadBody(t *testing.T) {
	env := testServer(t)

	for _, body := range []string{"", "alice", "42", "true", "null", "{}", `{"name":null}`, `{"name":`} {
		w := env.do(http.MethodPost, "/user", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		assert.NotZero(t, w.Body.Len(), "body %q: want a diagnostic", body)
	}

	n, err := env.users.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "bad requests should not store users")
}

func TestRegisterUser_StorageError(t *testing.T) {
	env := testServer(t)
	env.db.Close()

	w := env.do(http.MethodPost, "/user", `"alice"`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotZero(t, w.Body.Len(), "want a diagnostic body")
}

// capturingMQTT records what the MQTT sink would put on the broker.
type capturingMQTT struct {
	mu       sync.Mutex
	payloads []string
}

func (c *capturingMQTT) PublishEvent(_ string, payload []byte) error {
	c.mu.Lock()
	c.payloads = append(c.payloads, string(payload))
	c.mu.Unlock()
	return nil
}

func TestRegisterUser_KeyStaysOutOfEventOutputs(t *testing.T) {
	hub := newTestHub(t)
	bus := events.NewBus(logging.Discard())
	t.Cleanup(bus.Close)

	env := testServer(t, withKeyCheck(), func(d *Deps) {
		d.Events = bus
		d.Hub = hub
	})
	broker := &capturingMQTT{}
	bus.Add(events.NewAuditSink(env.audit))
	bus.Add(events.NewMQTTSink(broker))
	bus.Add(hub)

	watcher := newWSClient(hub, nil)
	watcher.subscribe(events.ChannelUser, events.ChannelDoor)
	hub.Register(watcher)

	w := env.do(http.MethodPost, "/user", `"alice"`)
	require.Equal(t, http.StatusOK, w.Code)
	key := registeredKey(t, w.Body.String())
	keyID := events.KeyFingerprint(key)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/toggle/"+key, "").Code)
	bus.Wait()

	var outputs []string

	for _, path := range []string{"/api/v1/audit?action=register", "/api/v1/audit?action=toggle"} {
		aw := env.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, aw.Code)
		var result audit.ListResult
		require.NoError(t, json.Unmarshal(aw.Body.Bytes(), &result))
		require.Len(t, result.Logs, 1, path)
		outputs = append(outputs, aw.Body.String())
	}

	for range 2 {
		select {
		case frame := <-watcher.send:
			outputs = append(outputs, string(frame))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for websocket frame")
		}
	}

	broker.mu.Lock()
	require.Len(t, broker.payloads, 2)
	outputs = append(outputs, broker.payloads...)
	broker.mu.Unlock()

	for _, out := range outputs {
		assert.NotContains(t, out, key)
		assert.Contains(t, out, keyID)
	}
}

func TestDecodeUserName(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{body: `"alice"`, want: "alice"},
		{body: `  "spaced"  `, want: "spaced"},
		{body: `{"name":"bob"}`, want: "bob"},
		{body: `{"name":""}`, want: ""},
		{body: `{}`, wantErr: true},
		{body: `{"name":null}`, wantErr: true},
		{body: `{"name":7}`, wantErr: true},
		{body: ``, wantErr: true},
		{body: `[1]`, wantErr: true},
		{body: `null`, wantErr: true},
		{body: `42`, wantErr: true},
		{body: `true`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := decodeUserName(strings.NewReader(tt.body))
		if tt.wantErr {
			assert.Error(t, err, "decodeUserName(%q)", tt.body)
			continue
		}
		if assert.NoError(t, err, "decodeUserName(%q)", tt.body) {
			assert.Equal(t, tt.want, got, "decodeUserName(%q)", tt.body)
		}
	}
}

// ─── Health / Metrics / Audit ──────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.Equal(t, "noop", resp["driver"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := testServer(t)
	env.db.Close()

	w := env.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics_JSON(t *testing.T) {
	env := testServer(t)
	env.do(http.MethodPost, "/toggle/k", "")
	env.do(http.MethodPost, "/user", `"alice"`)

	w := env.do(http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var m SystemMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "noop", m.Relay.Driver)
	assert.EqualValues(t, 1, m.Relay.Pulses)
	assert.Equal(t, 2, m.Relay.Pin)
	assert.True(t, m.Relay.ActiveLow)
	assert.EqualValues(t, 200, m.Relay.HoldMS)
	assert.EqualValues(t, 1, m.Users.Registered)
	assert.NotZero(t, m.Runtime.Goroutines)
	assert.False(t, m.MQTT.Enabled, "mqtt should report disabled")
}

func TestMetrics_Prometheus(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "garage_ws_clients_connected")
}

func TestAudit_List(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	for _, action := range []string{audit.ActionToggle, audit.ActionRegister, audit.ActionToggle} {
		require.NoError(t, env.audit.Create(ctx, &audit.AuditLog{Action: action, EntityType: audit.EntityDoor, Source: "api"}))
	}

	w := env.do(http.MethodGet, "/api/v1/audit?action=toggle&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result audit.ListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Logs, 1)
	assert.Equal(t, 1, result.Limit)
}

func TestAudit_BadLimit(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/api/v1/audit?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudit_NotConfigured(t *testing.T) {
	env := testServer(t, func(d *Deps) { d.AuditRepo = nil })

	w := env.do(http.MethodGet, "/api/v1/audit", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/api/v1/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	assert.Equal(t, "client-123", w.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/user", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	assert.Equal(t, 2, w.Code/100, "preflight status = %d, want 2xx", w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := testServer(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = []string{"http://garage.local"} })

	req := httptest.NewRequest(http.MethodOptions, "/user", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := env.do(http.MethodGet, "/api/v1/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err, "New(Deps{}) should fail without a logger")

	_, err = New(Deps{Logger: logging.Discard()})
	assert.Error(t, err, "New() should fail without an actuator")
}

// ─── Hub ───────────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testWSConfig, logging.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := newWSClient(hub, nil)
	client.subscribe(events.ChannelDoor)
	hub.Register(client)

	require.NoError(t, hub.Handle(context.Background(), events.Toggled(events.SourceAPI, "k", 2, time.Second, time.Second, nil)))

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		require.NoError(t, json.Unmarshal(msg, &wsMsg))
		assert.Equal(t, events.ChannelDoor, wsMsg.EventType)
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := newWSClient(hub, nil)
	client.subscribe(events.ChannelUser)
	hub.Register(client)

	hub.Broadcast(events.ChannelDoor, map[string]any{"pin": 2})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)
	assert.Zero(t, hub.ClientCount())

	client := newWSClient(hub, nil)
	hub.Register(client)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Zero(t, hub.ClientCount())
	assert.False(t, client.enqueue([]byte("{}")), "enqueue after unregister should report false")
}

// ─── Server lifecycle ──────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)
	port := 19180
	env.srv.cfg.Port = port

	assert.Error(t, env.srv.HealthCheck(context.Background()), "HealthCheck() before Start()")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.srv.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 5*time.Second, env.srv.server.ReadTimeout)
	assert.Equal(t, 5*time.Second, env.srv.server.WriteTimeout)
	assert.Equal(t, 5*time.Second, env.srv.server.IdleTimeout)

	assert.NoError(t, env.srv.HealthCheck(context.Background()))

	addr := fmt.Sprintf("http://127.0.0.1:%d", port)
	resp, err := http.Post(addr+"/toggle/anykey", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, env.srv.Close())

	time.Sleep(100 * time.Millisecond)
	_, err = http.Get(addr + "/api/v1/health")
	assert.Error(t, err, "server still responding after Close()")
}

// ─── WebSocket ─────────────────────────────────────────────────────

// connectWebSocket serves the router over a real listener and dials /api/v1/ws.
func connectWebSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "websocket dial (resp: %v)", resp)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SubscribeAndReceiveToggle(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{events.ChannelDoor}},
	}))

	resp := readWS(t, ws)
	require.Equal(t, WSTypeResponse, resp.Type)
	require.Equal(t, "sub-1", resp.ID)
	assert.Equal(t, 1, env.srv.hub.ClientCount())

	env.srv.hub.Handle(context.Background(), events.Toggled(events.SourceAPI, "k", 2, 0, 0, nil)) //nolint:errcheck // never fails

	msg := readWS(t, ws)
	assert.Equal(t, WSTypeEvent, msg.Type)
	assert.Equal(t, events.ChannelDoor, msg.EventType)
	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok, "payload = %v", msg.Payload)
	assert.Equal(t, string(events.DoorToggled), payload["type"])
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	for _, m := range []WSMessage{
		{Type: WSTypeSubscribe, ID: "sub-1", Payload: WSSubscribePayload{Channels: []string{"door", "user"}}},
		{Type: WSTypeUnsubscribe, ID: "unsub-1", Payload: WSSubscribePayload{Channels: []string{"user"}}},
	} {
		require.NoError(t, ws.WriteJSON(m))
		resp := readWS(t, ws)
		assert.Equal(t, WSTypeResponse, resp.Type, m.Type)
		assert.Equal(t, m.ID, resp.ID)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}))

	resp := readWS(t, ws)
	assert.Equal(t, WSTypePong, resp.Type)
	assert.Equal(t, "ping-1", resp.ID)
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, WSTypeError, readWS(t, ws).Type, "invalid JSON")

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "open_door", ID: "x"}))
	assert.Equal(t, WSTypeError, readWS(t, ws).Type, "unknown type")
}
