package hub

import (
	"context"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/client"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// Mount starts a new session: one store and one connection manager.
type Mount struct {
	UserID string
	Reply  chan MountResult
}

type MountResult struct {
	Session *Session
	Err     error
}

type GetSession struct {
	ID    string
	Reply chan *Session
}

type ListSessions struct {
	Reply chan []*Session
}

// Unmount disposes a session. Reply, if set, receives true once the
// connection has been closed and its timers released.
type Unmount struct {
	ID    string
	Reply chan bool
}

type ShutdownHub struct {
	Done chan struct{}
}

func (Mount) isHubMsg()        {}
func (GetSession) isHubMsg()   {}
func (ListSessions) isHubMsg() {}
func (Unmount) isHubMsg()      {}
func (ShutdownHub) isHubMsg()  {}

// ConfigFunc builds the manager config for a caller identity.
type ConfigFunc func(userID string) client.Config

type Session struct {
	ID      string
	Store   *store.Store
	Manager *client.Manager

	cancel context.CancelFunc
}

func (s *Session) dispose() {
	s.cancel()
	<-s.Manager.Done()
	<-s.Store.Done()
}

type Hub struct {
	inbox     chan HubMsg
	sessions  map[string]*Session
	newConfig ConfigFunc
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context, newConfig ConfigFunc, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		sessions:  make(map[string]*Session),
		newConfig: newConfig,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Mount:
				s, err := h.mount(msg.UserID)
				msg.Reply <- MountResult{Session: s, Err: err}

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case ListSessions:
				out := make([]*Session, 0, len(h.sessions))
				for _, s := range h.sessions {
					out = append(out, s)
				}
				msg.Reply <- out

			case Unmount:
				s := h.sessions[msg.ID]
				delete(h.sessions, msg.ID)
				if s == nil {
					if msg.Reply != nil {
						msg.Reply <- false
					}
					break
				}
				h.logger.Info("unmounting session", zap.String("session", s.ID))
				go func() {
					s.dispose()
					if msg.Reply != nil {
						msg.Reply <- true
					}
				}()

			case ShutdownHub:
				h.shutdown()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

func (h *Hub) mount(userID string) (*Session, error) {
	id := uuid.NewString()
	logger := h.logger.With(zap.String("session", id))

	ctx, cancel := context.WithCancel(h.ctx)
	st := store.NewStore(ctx, logger)
	mgr, err := client.NewManager(h.newConfig(userID), st, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{ID: id, Store: st, Manager: mgr, cancel: cancel}
	h.sessions[id] = s
	go func() {
		if err := mgr.Run(ctx); err != nil {
			logger.Error("connection manager exited", zap.Error(err))
		}
	}()
	logger.Info("session mounted", zap.String("identity", mgr.Identity()))
	return s, nil
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.dispose()
		delete(h.sessions, id)
	}
	h.cancel()
}
