package view

import (
	"fmt"
	"strconv"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/engine"
	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
)

type Tab int

const (
	TabInteractions Tab = iota
	TabScoreChanges
)

func (t Tab) String() string {
	if t == TabScoreChanges {
		return "score_changes"
	}
	return "interactions"
}

func ParseTab(s string) Tab {
	if s == TabScoreChanges.String() {
		return TabScoreChanges
	}
	return TabInteractions
}

const disconnectedWarning = "WebSocket connection lost. Real-time updates are not available."

type MonitorView struct {
	Status    string      `json:"status"`
	Connected bool        `json:"connected"`
	Warning   string      `json:"warning,omitempty"`
	Stats     types.Stats `json:"stats"`
	ActiveTab string      `json:"activeTab"`
	Tabs      []TabHeader `json:"tabs"`

	Interactions            []InteractionRow `json:"interactions"`
	InteractionsPlaceholder string           `json:"interactionsPlaceholder,omitempty"`
	ScoreChanges            []ScoreChangeRow `json:"scoreChanges"`
	ScoreChangesPlaceholder string           `json:"scoreChangesPlaceholder,omitempty"`
}

type TabHeader struct {
	Label string `json:"label"`
	Badge int    `json:"badge"`
}

type InteractionRow struct {
	Time   string `json:"time"`
	User   string `json:"user"`
	Action string `json:"action"`
	Entity string `json:"entity"`
	Type   string `json:"type"`
}

type ScoreChangeRow struct {
	Key      string `json:"key"`
	Time     string `json:"time"`
	User     string `json:"user"`
	Action   string `json:"action"`
	Affected string `json:"affected"`
	Expanded bool   `json:"expanded"`

	Details            []CourseRow `json:"details,omitempty"`
	DetailsPlaceholder string      `json:"detailsPlaceholder,omitempty"`
}

type CourseRow struct {
	Course   string `json:"course"`
	OldScore string `json:"oldScore"`
	Change   string `json:"change"`
	NewScore string `json:"newScore"`
	Reason   string `json:"reason"`
	Positive bool   `json:"positive"`
}

// Monitor holds the view-local state of the tabbed monitor: which tab is
// active and which score-change rows are expanded. It is not safe for
// concurrent use.
type Monitor struct {
	tab      Tab
	expanded map[string]bool
	loc      *time.Location
}

func NewMonitor(loc *time.Location) *Monitor {
	if loc == nil {
		loc = time.Local
	}
	return &Monitor{expanded: make(map[string]bool), loc: loc}
}

func (m *Monitor) SelectTab(t Tab) { m.tab = t }
func (m *Monitor) ActiveTab() Tab  { return m.tab }

// Toggle flips the detail row for key and reports whether it is now open.
func (m *Monitor) Toggle(key string) bool {
	if m.expanded[key] {
		delete(m.expanded, key)
		return false
	}
	m.expanded[key] = true
	return true
}

func (m *Monitor) Expand(key string) { m.expanded[key] = true }

// RowKey identifies a score change across snapshots by its arrival
// sequence, so an open row stays open while newer events push it down the
// list and two identical events still toggle separately.
func RowKey(c types.ScoreChange) string {
	return strconv.FormatUint(c.Seq, 10)
}

func (m *Monitor) Render(s engine.State) MonitorView {
	v := MonitorView{
		Status:    statusLabel(s.Connected),
		Connected: s.Connected,
		Stats:     s.Stats,
		ActiveTab: m.tab.String(),
		Tabs: []TabHeader{
			{Label: "User Interactions", Badge: len(s.Interactions)},
			{Label: "Score Changes", Badge: len(s.ScoreChanges)},
		},
		Interactions: make([]InteractionRow, 0, len(s.Interactions)),
		ScoreChanges: make([]ScoreChangeRow, 0, len(s.ScoreChanges)),
	}
	if !s.Connected {
		v.Warning = disconnectedWarning
	}

	for _, i := range s.Interactions {
		v.Interactions = append(v.Interactions, InteractionRow{
			Time:   formatDateTime(i.Timestamp, m.loc),
			User:   i.UserID,
			Action: interactionAction(i),
			Entity: interactionEntity(i),
			Type:   firstNonEmpty(i.EntityType, "course"),
		})
	}
	if len(v.Interactions) == 0 {
		v.InteractionsPlaceholder = "No interaction data available"
	}

	for _, c := range s.ScoreChanges {
		row := ScoreChangeRow{
			Key:      RowKey(c),
			Time:     formatDateTime(c.Timestamp, m.loc),
			User:     c.UserID,
			Action:   c.ActionType,
			Affected: fmt.Sprintf("%d courses", len(c.Changes)),
		}
		if m.expanded[row.Key] {
			row.Expanded = true
			row.Details = courseRows(c.Changes)
			if len(row.Details) == 0 {
				row.DetailsPlaceholder = "No course details available"
			}
		}
		v.ScoreChanges = append(v.ScoreChanges, row)
	}
	if len(v.ScoreChanges) == 0 {
		v.ScoreChangesPlaceholder = "No score change data available"
	}
	return v
}

func courseRows(changes []types.CourseChange) []CourseRow {
	rows := make([]CourseRow, 0, len(changes))
	for _, cc := range changes {
		rows = append(rows, CourseRow{
			Course:   firstNonEmpty(cc.CourseName, cc.CourseID, "Unknown Course"),
			OldScore: formatScore(cc.OldScore),
			Change:   formatDelta(cc.ScoreDelta),
			NewScore: formatScore(cc.NewScore),
			Reason:   firstNonEmpty(cc.Reason, "No reason provided"),
			Positive: cc.ScoreDelta != nil && *cc.ScoreDelta > 0,
		})
	}
	return rows
}
