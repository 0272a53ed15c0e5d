package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/engine"
	"go.uber.org/zap"
)

type Msg interface{ isStoreMsg() }

// FromServer carries one raw inbound frame.
type FromServer struct {
	Data []byte
}

func (FromServer) isStoreMsg() {}

type Opened struct{}

func (Opened) isStoreMsg() {}

type Closed struct{}

func (Closed) isStoreMsg() {}

type Failed struct{ Reason string }

func (Failed) isStoreMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this subscriber receives snapshots
}

func (Join) isStoreMsg() {}

type Leave struct{ ClientID string }

func (Leave) isStoreMsg() {}

type Shutdown struct{}

func (Shutdown) isStoreMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isStoreMsg() {}

type Snapshot struct {
	Version int
	State   engine.State
}

type View struct {
	Version        int
	NumSubscribers int
	State          engine.State
}

// Store owns the reduced state of one session. Everything goes through the
// inbox, so frames are folded strictly in the order they were posted.
type Store struct {
	inbox       chan Msg
	state       engine.State
	version     int
	subscribers map[string]chan Snapshot
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
}

func NewStore(parent context.Context, logger *zap.Logger) *Store {
	ctx, cancel := context.WithCancel(parent)

	s := &Store{
		inbox:       make(chan Msg, 256),
		state:       engine.NewEmptyState(),
		subscribers: make(map[string]chan Snapshot),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}

	go s.loop()
	return s
}

func (s *Store) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.subscribers[msg.ClientID] = msg.Outbox
				msg.Outbox <- Snapshot{Version: s.version, State: s.state}

			case Leave:
				if ch, ok := s.subscribers[msg.ClientID]; ok {
					close(ch)
					delete(s.subscribers, msg.ClientID)
				}

			case FromServer:
				s.applyFrame(msg.Data)

			case Opened:
				s.commit(engine.Reopened(s.state))

			case Closed:
				s.commit(engine.Closed(s.state))

			case Failed:
				s.commit(engine.Failed(s.state, msg.Reason))

			case GetState:
				msg.Reply <- View{
					Version:        s.version,
					NumSubscribers: len(s.subscribers),
					State:          s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Store) applyFrame(data []byte) {
	f, err := engine.ParseFrame(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
		return
	}
	s.logger.Debug("frame received", zap.String("type", f.Type))

	next, err := engine.Apply(s.state, f)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownType) {
			s.logger.Info("ignoring frame", zap.String("type", f.Type))
			return
		}
		s.logger.Warn("frame rejected", zap.Error(err))
		return
	}
	s.commit(next)
}

func (s *Store) commit(next engine.State) {
	s.state = next
	s.version++
	s.broadcast(Snapshot{Version: s.version, State: s.state})
}

func (s *Store) shutdown() {
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.cancel()
}

func (s *Store) broadcast(snap Snapshot) {
	for id, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Subscriber is slow/full - drop it.
			s.logger.Warn("dropping slow subscriber", zap.String("subscriber", id))
			close(ch)
			delete(s.subscribers, id)
		}
	}
}

// Inbox exposes the raw message channel for tests and the HTTP layer.
func (s *Store) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the store has shut down.
func (s *Store) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Store) post(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

// State asks the loop for the current view. It returns false when the
// store is gone or ctx ends first.
func (s *Store) State(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- GetState{Reply: reply}:
	case <-s.ctx.Done():
		return View{}, false
	case <-ctx.Done():
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-s.ctx.Done():
		return View{}, false
	case <-ctx.Done():
		return View{}, false
	}
}

func (s *Store) HandleFrame(data []byte) { s.post(FromServer{Data: data}) }
func (s *Store) HandleOpen() { s.post(Opened{}) }
func (s *Store) HandleClose() { s.post(Closed{}) }
func (s *Store) HandleError(reason string) { s.post(Failed{Reason: reason}) }

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
