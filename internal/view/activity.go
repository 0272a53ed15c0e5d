package view

import (
	"fmt"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/engine"
	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
)

// ActivityView is the compact realtime feed.
type ActivityView struct {
	Status         string      `json:"status"`
	Connected      bool        `json:"connected"`
	OfferReconnect bool        `json:"offerReconnect"`
	Error          string      `json:"error,omitempty"`
	Stats          types.Stats `json:"stats"`

	Interactions            []ActivityItem `json:"interactions"`
	InteractionsPlaceholder string         `json:"interactionsPlaceholder,omitempty"`
	ScoreChanges            []ActivityItem `json:"scoreChanges"`
	ScoreChangesPlaceholder string         `json:"scoreChangesPlaceholder,omitempty"`
}

type ActivityItem struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

func Activity(s engine.State, loc *time.Location) ActivityView {
	v := ActivityView{
		Status:         statusLabel(s.Connected),
		Connected:      s.Connected,
		OfferReconnect: !s.Connected,
		Error:          s.LastError,
		Stats:          s.Stats,
		Interactions:   make([]ActivityItem, 0, len(s.Interactions)),
		ScoreChanges:   make([]ActivityItem, 0, len(s.ScoreChanges)),
	}

	for _, i := range s.Interactions {
		v.Interactions = append(v.Interactions, ActivityItem{
			Primary:   fmt.Sprintf("%s - %s", interactionAction(i), interactionEntity(i)),
			Secondary: fmt.Sprintf("User: %s • %s", i.UserID, formatClock(i.Timestamp, loc)),
		})
	}
	for _, c := range s.ScoreChanges {
		v.ScoreChanges = append(v.ScoreChanges, ActivityItem{
			Primary:   fmt.Sprintf("%s - Affected %d courses", c.ActionType, affectedCourses(c)),
			Secondary: fmt.Sprintf("User: %s • %s", c.UserID, formatClock(c.Timestamp, loc)),
		})
	}

	if len(v.Interactions) == 0 {
		v.InteractionsPlaceholder = placeholder(s.Connected, "No recent interactions", "Connect to see interactions")
	}
	if len(v.ScoreChanges) == 0 {
		v.ScoreChangesPlaceholder = placeholder(s.Connected, "No recent score changes", "Connect to see score changes")
	}
	return v
}

// affectedCourses prefers the server's count and falls back to the list.
func affectedCourses(c types.ScoreChange) int {
	if c.AffectedCourses != nil {
		return *c.AffectedCourses
	}
	return len(c.Changes)
}

func placeholder(connected bool, empty, offline string) string {
	if connected {
		return empty
	}
	return offline
}
