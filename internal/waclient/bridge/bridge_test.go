package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/waclient"
)

// sidecar is a fake protocol sidecar. Each accepted session socket is delivered on conns.
type sidecar struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	queries chan string
}

func newSidecar(t *testing.T) *sidecar {
	t.Helper()
	s := &sidecar{conns: make(chan *websocket.Conn, 1), queries: make(chan string, 1)}
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":[2,3000,1015901307],"isLatest":true}`))
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		s.queries <- r.URL.Query().Get("id")
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- ws
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sidecar) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-s.conns:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("sidecar: no session dialled")
		return nil
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func nextEvent(t *testing.T, c waclient.Client) waclient.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func dial(t *testing.T, s *sidecar, store *authstate.Store) (waclient.Client, *websocket.Conn) {
	t.Helper()
	f, err := New(Config{URL: s.srv.URL})
	require.NoError(t, err)
	c, err := f.NewClient(context.Background(), waclient.Options{
		TenantID: 42,
		Auth:     store,
		Version:  waclient.Version{2, 3000, 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.Equal(t, "42", <-s.queries)
	return c, s.accept(t)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoBridgeURL)
	_, err = New(Config{URL: "ftp://sidecar"})
	require.Error(t, err)
}

func TestFetchLatestVersion(t *testing.T) {
	s := newSidecar(t)
	f, err := New(Config{URL: s.srv.URL})
	require.NoError(t, err)
	v, err := f.FetchLatestVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, waclient.Version{2, 3000, 1015901307}, v)
}

func TestFetchLatestVersion_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	f, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	_, err = f.FetchLatestVersion(context.Background())
	require.Error(t, err)
}

func TestNewClient_SendsOpenWithTaggedCreds(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{"noiseKey": []byte{1, 2, 3}, "registrationId": 7}), nil)
	_, ws := dial(t, s, store)

	open := readFrame(t, ws)
	require.Equal(t, "open", open["type"])
	require.Equal(t, []any{float64(2), float64(3000), float64(1)}, open["version"])
	creds := open["creds"].(map[string]any)
	require.Equal(t, map[string]any{"type": "Buffer", "data": "AQID"}, creds["noiseKey"])
	require.Equal(t, float64(7), creds["registrationId"])
}

func TestClient_KeysSetAndGet(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	_, ws := dial(t, s, store)
	readFrame(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"keys.set","data":{"session":{"a":{"type":"Buffer","data":"AAE="}},"app-state-sync-key":{"k":{"keyData":"raw"}}}}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"keys.get","id":"r1","category":"session","ids":["a","missing"]}`)))

	res := readFrame(t, ws)
	require.Equal(t, "keys.result", res["type"])
	require.Equal(t, "r1", res["id"])
	require.Equal(t, map[string]any{"a": map[string]any{"type": "Buffer", "data": "AAE="}}, res["values"])

	require.Equal(t, map[string]any{"a": []byte{0, 1}}, store.Get("session", []string{"a"}))
	got := store.Get("app-state-sync-key", []string{"k"})
	require.JSONEq(t, `{"keyData":"raw"}`, string(got["k"].(json.RawMessage)))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"keys.set","data":{"session":{"a":null}}}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"keys.get","id":"r2","category":"session","ids":["a"]}`)))
	res = readFrame(t, ws)
	require.Equal(t, map[string]any{}, res["values"])
}

func TestClient_EventsInOrderAndCloseEndsStream(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	c, ws := dial(t, s, store)
	readFrame(t, ws)

	frames := []string{
		`{"type":"connection.update","connection":"connecting"}`,
		`{"type":"connection.update","qr":"2@abc"}`,
		`{"type":"creds.update","creds":{"me":{"id":"5511@s.whatsapp.net"},"signedIdentityKey":{"private":{"0":9,"1":8}}}}`,
		`{"type":"connection.update","connection":"close","lastDisconnect":{"statusCode":401,"message":"logged out"}}`,
	}
	for _, f := range frames {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	require.Equal(t, waclient.ConnectionUpdate{Phase: waclient.PhaseConnecting}, nextEvent(t, c))
	require.Equal(t, waclient.ConnectionUpdate{QR: "2@abc"}, nextEvent(t, c))
	require.Equal(t, waclient.CredsUpdate{}, nextEvent(t, c))

	closed := nextEvent(t, c).(waclient.ConnectionUpdate)
	require.Equal(t, waclient.PhaseClose, closed.Phase)
	require.Equal(t, waclient.ReasonLoggedOut, closed.LastDisconnect.Reason())

	_, ok := <-c.Events()
	require.False(t, ok, "stream must end after close update")

	store.ViewCreds(func(cr authstate.Creds) {
		require.Equal(t, map[string]any{"id": "5511@s.whatsapp.net"}, cr["me"])
		require.Equal(t, []byte{9, 8}, cr["signedIdentityKey"].(map[string]any)["private"])
	})
}

func TestClient_SocketDropEmitsConnectionLost(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	c, ws := dial(t, s, store)
	readFrame(t, ws)
	ws.Close()

	ev := nextEvent(t, c).(waclient.ConnectionUpdate)
	require.Equal(t, waclient.PhaseClose, ev.Phase)
	require.Equal(t, waclient.ReasonConnectionLost, ev.LastDisconnect.Reason())
}

func TestClient_LocalCloseEmitsNothing(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	c, ws := dial(t, s, store)
	readFrame(t, ws)

	require.NoError(t, c.Close())
	select {
	case ev, ok := <-c.Events():
		require.False(t, ok, "unexpected event %v", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("events not closed")
	}
}

func TestClient_LogoutWaitsForAck(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	c, ws := dial(t, s, store)
	readFrame(t, ws)

	errc := make(chan error, 1)
	go func() { errc <- c.Logout(context.Background()) }()

	req := readFrame(t, ws)
	require.Equal(t, "logout", req["type"])
	id := req["id"].(string)
	require.NotEmpty(t, id)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "ack", "id": id}))
	require.NoError(t, <-errc)

	go func() { errc <- c.Logout(context.Background()) }()
	req = readFrame(t, ws)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "ack", "id": req["id"], "error": "not paired"}))
	err := <-errc
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not paired"))
}

func TestClient_JIDIgnoreUsesPredicate(t *testing.T) {
	s := newSidecar(t)
	store := authstate.NewStore(authstate.NewState(authstate.Creds{}), nil)
	_, ws := dial(t, s, store)
	readFrame(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"jid.ignore","id":"j1","jid":"status@broadcast"}`)))
	res := readFrame(t, ws)
	require.Equal(t, map[string]any{"type": "jid.ignore.result", "id": "j1", "ignore": true}, res)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"jid.ignore","id":"j2","jid":"55@s.whatsapp.net"}`)))
	res = readFrame(t, ws)
	require.Equal(t, false, res["ignore"])
}
