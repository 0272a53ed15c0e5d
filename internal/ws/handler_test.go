package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/client"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/hub"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// upstream plays the realtime server: it sends an init frame on every
// connection and counts how many it has accepted.
func upstream(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"type":"init","stats":{"connectionCount":2,"activeUsers":1}}`))
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/user", &accepted
}

func relay(t *testing.T) (*httptest.Server, *hub.Session, *atomic.Int32) {
	t.Helper()
	url, accepted := upstream(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, func(userID string) client.Config {
		return client.Config{URL: url, UserID: userID}
	}, zap.NewNop())

	reply := make(chan hub.MountResult, 1)
	h.Inbox() <- hub.Mount{UserID: "admin", Reply: reply}
	res := <-reply
	require.NoError(t, res.Err)

	r := chi.NewRouter()
	r.Get("/sessions/{id}/ws", Handler(h, zap.NewNop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, res.Session, accepted
}

func readSnapshot(t *testing.T, conn *websocket.Conn) SnapshotMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg SnapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func dialRelay(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestRelay_StreamsSnapshots(t *testing.T) {
	srv, sess, _ := relay(t)
	conn := dialRelay(t, srv, sess.ID)

	// The join snapshot may predate the init frame; keep reading until the
	// stats arrive.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readSnapshot(t, conn)
		assert.Equal(t, TypeSnapshot, msg.Type)
		require.NotNil(t, msg.State)
		if msg.State.Stats.ConnectionCount == 2 {
			assert.True(t, msg.State.Connected)
			assert.Equal(t, 1, msg.State.Stats.ActiveUsers)
			return
		}
	}
	t.Fatalf("never saw the init stats")
}

func TestRelay_UnknownSession(t *testing.T) {
	srv, _, _ := relay(t)
	resp, err := http.Get(srv.URL + "/sessions/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelay_ReconnectRequest(t *testing.T) {
	srv, sess, accepted := relay(t)
	require.Eventually(t, func() bool { return sess.Manager.Phase() == client.PhaseConnected }, 2*time.Second, 10*time.Millisecond)

	conn := dialRelay(t, srv, sess.ID)
	_ = readSnapshot(t, conn)

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"reconnect"}`)))
	assert.Eventually(t, func() bool { return accepted.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_RejectsUnknownMessages(t *testing.T) {
	srv, sess, _ := relay(t)
	conn := dialRelay(t, srv, sess.ID)

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"pick"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		if strings.Contains(string(data), `"type":"error"`) {
			assert.JSONEq(t, `{"type":"error","error":"unknown type"}`, string(data))
			return
		}
	}
}

func TestForward(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(out chan store.Snapshot, done chan struct{}, cancel context.CancelFunc)
		wantEnded bool
	}{
		{"outbox closed", func(out chan store.Snapshot, _ chan struct{}, _ context.CancelFunc) { close(out) }, true},
		{"store gone, outbox never closed", func(_ chan store.Snapshot, done chan struct{}, _ context.CancelFunc) { close(done) }, true},
		{"request over", func(_ chan store.Snapshot, _ chan struct{}, cancel context.CancelFunc) { cancel() }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			out := make(chan store.Snapshot, 2)
			done := make(chan struct{})

			var written []int
			result := make(chan bool, 1)
			go func() {
				result <- forward(ctx, out, done, func(s store.Snapshot) error {
					written = append(written, s.Version)
					return nil
				})
			}()

			out <- store.Snapshot{Version: 1}
			require.Eventually(t, func() bool { return len(out) == 0 }, time.Second, 5*time.Millisecond)
			tc.setup(out, done, cancel)

			select {
			case ended := <-result:
				assert.Equal(t, tc.wantEnded, ended)
			case <-time.After(time.Second):
				t.Fatalf("forward did not return")
			}
			assert.Equal(t, []int{1}, written)
		})
	}
}

func TestForward_StopsOnWriteError(t *testing.T) {
	out := make(chan store.Snapshot, 1)
	out <- store.Snapshot{Version: 1}
	ended := forward(context.Background(), out, nil, func(store.Snapshot) error { return websocket.CloseError{Code: websocket.StatusGoingAway} })
	assert.False(t, ended)
}
