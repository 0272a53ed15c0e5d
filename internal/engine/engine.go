package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
	"github.com/tidwall/gjson"
)

var ErrMalformedFrame = errors.New("malformed frame")
var ErrUnknownType = errors.New("unknown message type")

// MaxRecent bounds both recent-event buffers.
const MaxRecent = 50

type State struct {
	Connected    bool                `json:"connected"`
	LastError    string              `json:"lastError,omitempty"`
	Stats        types.Stats         `json:"stats"`
	Interactions []types.Interaction `json:"recentInteractions"`
	ScoreChanges []types.ScoreChange `json:"scoreChanges"`

	// Seq is the last sequence number handed to a stored event. It only
	// grows, across reconnects too.
	Seq uint64 `json:"-"`
}

// Frame is a parsed inbound message. Only ParseFrame produces valid frames.
type Frame struct {
	Type string
	root gjson.Result
}

func ParseFrame(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, ErrMalformedFrame
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Frame{}, ErrMalformedFrame
	}
	return Frame{Type: root.Get("type").String(), root: root}, nil
}

// Apply folds one frame into s and returns the next state. s is never
// modified; buffers in the result are fresh slices whenever they change.
func Apply(s State, f Frame) (State, error) {
	next := s

	switch f.Type {
	case types.TypeInit:
		stats := f.root.Get("stats")
		if !stats.IsObject() {
			return s, nil
		}
		next.Stats = readStats(stats)
		next.Interactions = capRecent(readInteractions(stats.Get("recentInteractions")))
		next.ScoreChanges = capRecent(readScoreChanges(stats.Get("recentScoreChanges")))
		// Lists arrive newest first; the oldest entry gets the lowest number.
		for i := len(next.Interactions) - 1; i >= 0; i-- {
			next.Seq++
			next.Interactions[i].Seq = next.Seq
		}
		for i := len(next.ScoreChanges) - 1; i >= 0; i-- {
			next.Seq++
			next.ScoreChanges[i].Seq = next.Seq
		}
		next.LastError = ""
		return next, nil

	case types.TypeStatsUpdate:
		next.Stats = readStats(f.root)
		return next, nil

	case types.TypeInteractionUpdate:
		data := f.root.Get("data")
		if !data.IsObject() {
			return s, nil
		}
		it := readInteraction(data)
		next.Seq++
		it.Seq = next.Seq
		next.Interactions = prepend(s.Interactions, it, MaxRecent)
		return next, nil

	case types.TypeScoreChangesUpdate:
		data := f.root.Get("data")
		if !data.IsObject() {
			return s, nil
		}
		c := readScoreChange(data)
		next.Seq++
		c.Seq = next.Seq
		next.ScoreChanges = prepend(s.ScoreChanges, c, MaxRecent)
		return next, nil

	case types.TypeHeartbeat:
		return s, nil

	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// Opened starts a fresh connection: everything from the previous one is
// dropped and the server is expected to resend init.
func Opened() State {
	next := NewEmptyState()
	next.Connected = true
	return next
}

// Reopened is Opened for a session that already saw events: numbering
// continues from prev so keys held by views never point at a new event.
func Reopened(prev State) State {
	next := Opened()
	next.Seq = prev.Seq
	return next
}

// Closed keeps the last error; a clean close surfaces nothing new.
func Closed(s State) State {
	s.Connected = false
	return s
}

func Failed(s State, reason string) State {
	s.Connected = false
	s.LastError = reason
	return s
}
