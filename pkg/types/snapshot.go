package types

import (
	"encoding/json"
	"time"
)

type Stats struct {
	ConnectionCount int `json:"connectionCount"`
	ActiveUsers     int `json:"activeUsers"`
	ActiveCourses   int `json:"activeCourses"`
}

// Timestamp is an optional point in time. The server sends epoch
// milliseconds or an RFC 3339 string; anything else is treated as absent.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

func Millis(ms int64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{Time: time.UnixMilli(ms), Valid: true}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UnixMilli())
}

// Interaction is one user interaction reported by the server. Type and
// Course are older spellings of InteractionType and EntityName.
type Interaction struct {
	UserID          string    `json:"userId"`
	InteractionType string    `json:"interactionType,omitempty"`
	Type            string    `json:"type,omitempty"`
	EntityName      string    `json:"entityName,omitempty"`
	Course          string    `json:"course,omitempty"`
	EntityType      string    `json:"entityType,omitempty"`
	Timestamp       Timestamp `json:"timestamp"`

	// Seq is assigned on arrival and is unique within a session.
	Seq uint64          `json:"-"`
	// Raw is the object exactly as received; it is what gets re-encoded.
	Raw json.RawMessage `json:"-"`
}

func (i Interaction) MarshalJSON() ([]byte, error) {
	if len(i.Raw) > 0 {
		return i.Raw, nil
	}
	type plain Interaction
	return json.Marshal(plain(i))
}

type ScoreChange struct {
	UserID          string         `json:"userId"`
	ActionType      string         `json:"actionType"`
	Timestamp       Timestamp      `json:"timestamp"`
	AffectedCourses *int           `json:"affectedCourses,omitempty"`
	Changes         []CourseChange `json:"changes"`

	Seq uint64          `json:"-"`
	Raw json.RawMessage `json:"-"`
}

func (c ScoreChange) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	type plain ScoreChange
	return json.Marshal(plain(c))
}

// CourseChange scores are nil when the server did not send a number.
type CourseChange struct {
	CourseID   string   `json:"courseId,omitempty"`
	CourseName string   `json:"courseName,omitempty"`
	OldScore   *float64 `json:"oldScore"`
	NewScore   *float64 `json:"newScore"`
	ScoreDelta *float64 `json:"scoreDelta"`
	Reason     string   `json:"reason,omitempty"`
}
