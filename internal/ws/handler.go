package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/engine"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/hub"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	TypeSnapshot  = "snapshot"
	TypeError     = "error"
	TypeReconnect = "reconnect"
)

const writeTimeout = 3 * time.Second

// SnapshotMessage is what relay subscribers receive on every state change.
type SnapshotMessage struct {
	Type    string        `json:"type"`
	Version int           `json:"version"`
	State   *engine.State `json:"state"`
}

// Handler relays a session's snapshots to a browser over websocket. The
// only thing a relay client may send is {"type":"reconnect"}.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		reply := make(chan *hub.Session, 1)
		h.Inbox() <- hub.GetSession{ID: id, Reply: reply}
		sess := <-reply
		if sess == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := logger.With(zap.String("session", sess.ID), zap.String("subscriber", clientID))
		log.Info("relay subscriber joined")

		out := make(chan store.Snapshot, 16)
		select {
		case sess.Store.Inbox() <- store.Join{ClientID: clientID, Outbox: out}:
		case <-sess.Store.Done():
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer func() {
			select {
			case sess.Store.Inbox() <- store.Leave{ClientID: clientID}:
			case <-sess.Store.Done():
			}
			log.Info("relay subscriber left")
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			ended := forward(writeCtx, out, sess.Store.Done(), func(snap store.Snapshot) error {
				payload, err := json.Marshal(SnapshotMessage{Type: TypeSnapshot, Version: snap.Version, State: &snap.State})
				if err != nil {
					log.Error("encode snapshot", zap.Error(err))
					return nil
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				defer cancel()
				return conn.Write(ctx, websocket.MessageText, payload)
			})
			if ended {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			if !gjson.ValidBytes(data) {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			switch gjson.GetBytes(data, "type").String() {
			case TypeReconnect:
				sess.Manager.Reconnect()
			default:
				writeError(r.Context(), conn, "unknown type")
			}
		}
	}
}

// forward hands snapshots to write until ctx ends, a write fails, or the
// store side stops. It reports true in the last case: the outbox was closed
// (dropped as slow, session ended) or the store is gone. A Join left in a
// dead store's inbox never gets its outbox closed, hence done.
func forward(ctx context.Context, out <-chan store.Snapshot, done <-chan struct{}, write func(store.Snapshot) error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return true
		case snap, ok := <-out:
			if !ok {
				return true
			}
			if err := write(snap); err != nil {
				return false
			}
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{TypeError, msg})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
