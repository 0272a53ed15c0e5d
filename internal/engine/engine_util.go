package engine

import (
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
	"github.com/tidwall/gjson"
)

func NewEmptyState() State {
	return State{
		Interactions: []types.Interaction{},
		ScoreChanges: []types.ScoreChange{},
	}
}

// prepend returns a new slice with v in front of buf, cut to limit.
func prepend[T any](buf []T, v T, limit int) []T {
	n := len(buf) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, n)
	out[0] = v
	copy(out[1:], buf)
	return out
}

func capRecent[T any](buf []T) []T {
	if len(buf) > MaxRecent {
		return buf[:MaxRecent:MaxRecent]
	}
	return buf
}

func readStats(r gjson.Result) types.Stats {
	return types.Stats{
		ConnectionCount: readInt(r.Get("connectionCount")),
		ActiveUsers:     readInt(r.Get("activeUsers")),
		ActiveCourses:   readInt(r.Get("activeCourses")),
	}
}

// readInt reads a JSON number; anything else, including absence, is 0.
func readInt(r gjson.Result) int {
	if r.Type != gjson.Number {
		return 0
	}
	return int(r.Int())
}

func readFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

// readString accepts strings and numbers, ids are not always quoted.
func readString(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return r.String()
	default:
		return ""
	}
}

func readTimestamp(r gjson.Result) types.Timestamp {
	switch r.Type {
	case gjson.Number:
		return types.Millis(r.Int())
	case gjson.String:
		t, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return types.Timestamp{}
		}
		return types.Timestamp{Time: t, Valid: true}
	default:
		return types.Timestamp{}
	}
}

func readInteraction(r gjson.Result) types.Interaction {
	return types.Interaction{
		UserID:          readString(r.Get("userId")),
		InteractionType: readString(r.Get("interactionType")),
		Type:            readString(r.Get("type")),
		EntityName:      readString(r.Get("entityName")),
		Course:          readString(r.Get("course")),
		EntityType:      readString(r.Get("entityType")),
		Timestamp:       readTimestamp(r.Get("timestamp")),
		Raw:             []byte(r.Raw),
	}
}

func readScoreChange(r gjson.Result) types.ScoreChange {
	c := types.ScoreChange{
		UserID:     readString(r.Get("userId")),
		ActionType: readString(r.Get("actionType")),
		Timestamp:  readTimestamp(r.Get("timestamp")),
		Changes:    []types.CourseChange{},
		Raw:        []byte(r.Raw),
	}
	if n := r.Get("affectedCourses"); n.Type == gjson.Number {
		v := int(n.Int())
		c.AffectedCourses = &v
	}
	for _, cc := range objects(r.Get("changes")) {
		c.Changes = append(c.Changes, types.CourseChange{
			CourseID:   readString(cc.Get("courseId")),
			CourseName: readString(cc.Get("courseName")),
			OldScore:   readFloat(cc.Get("oldScore")),
			NewScore:   readFloat(cc.Get("newScore")),
			ScoreDelta: readFloat(cc.Get("scoreDelta")),
			Reason:     readString(cc.Get("reason")),
		})
	}
	return c
}

func readInteractions(r gjson.Result) []types.Interaction {
	out := []types.Interaction{}
	for _, item := range objects(r) {
		out = append(out, readInteraction(item))
	}
	return out
}

func readScoreChanges(r gjson.Result) []types.ScoreChange {
	out := []types.ScoreChange{}
	for _, item := range objects(r) {
		out = append(out, readScoreChange(item))
	}
	return out
}

// objects returns the object elements of a JSON array. Non-arrays yield
// nothing and non-object elements are skipped.
func objects(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	var out []gjson.Result
	for _, item := range r.Array() {
		if item.IsObject() {
			out = append(out, item)
		}
	}
	return out
}
