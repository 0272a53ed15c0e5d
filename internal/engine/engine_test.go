package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustApply(t *testing.T, s State, raw string) State {
	t.Helper()
	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	next, err := Apply(s, f)
	require.NoError(t, err)
	return next
}

func interactionFrame(userID string, ts int) string {
	return fmt.Sprintf(`{"type":"interaction_update","data":{"userId":%q,"interactionType":"view","entityName":"Course","timestamp":%d}}`, userID, ts)
}

func TestInit_ReplacesStatsAndBuffers(t *testing.T) {
	s := mustApply(t, Opened(), `{"type":"init","stats":{"connectionCount":3,"activeUsers":2,"activeCourses":1,
		"recentInteractions":[{"userId":"u1","interactionType":"view","entityName":"Course A","timestamp":1000}]}}`)

	assert.Equal(t, 3, s.Stats.ConnectionCount)
	assert.Equal(t, 2, s.Stats.ActiveUsers)
	assert.Equal(t, 1, s.Stats.ActiveCourses)
	require.Len(t, s.Interactions, 1)
	got := s.Interactions[0]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "view", got.InteractionType)
	assert.Equal(t, "Course A", got.EntityName)
	assert.Equal(t, int64(1000), got.Timestamp.Time.UnixMilli())
	assert.Empty(t, s.ScoreChanges)
	assert.NotNil(t, s.ScoreChanges)
}

func TestInit_SnapshotReplaceNotMerge(t *testing.T) {
	s := mustApply(t, Opened(), `{"type":"init","stats":{"connectionCount":5,"activeUsers":5,"activeCourses":5}}`)
	s = mustApply(t, s, `{"type":"init","stats":{"connectionCount":9}}`)

	assert.Equal(t, 9, s.Stats.ConnectionCount)
	assert.Equal(t, 0, s.Stats.ActiveUsers)
	assert.Equal(t, 0, s.Stats.ActiveCourses)
}

func TestInit_CapsBuffers(t *testing.T) {
	items := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		items = append(items, fmt.Sprintf(`{"userId":"u%d"}`, i))
	}
	raw := fmt.Sprintf(`{"type":"init","stats":{"recentInteractions":[%s]}}`, joinComma(items))

	s := mustApply(t, Opened(), raw)
	require.Len(t, s.Interactions, MaxRecent)
	assert.Equal(t, "u0", s.Interactions[0].UserID)
	assert.Equal(t, "u49", s.Interactions[MaxRecent-1].UserID)
}

func TestInit_WithoutStatsIsIgnored(t *testing.T) {
	s := mustApply(t, Opened(), `{"type":"stats_update","connectionCount":4}`)
	next := mustApply(t, s, `{"type":"init"}`)
	assert.Equal(t, s, next)
}

func TestInit_ClearsLastError(t *testing.T) {
	s := Failed(Opened(), "Connection lost. Reconnecting...")
	s = mustApply(t, s, `{"type":"init","stats":{}}`)
	assert.Empty(t, s.LastError)
}

func TestStatsUpdate_DefaultsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want [3]int
	}{
		{"all present", `{"type":"stats_update","connectionCount":7,"activeUsers":3,"activeCourses":2}`, [3]int{7, 3, 2}},
		{"missing fields", `{"type":"stats_update","activeUsers":3}`, [3]int{0, 3, 0}},
		{"null and strings", `{"type":"stats_update","connectionCount":null,"activeUsers":"many","activeCourses":1}`, [3]int{0, 0, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := mustApply(t, Opened(), `{"type":"stats_update","connectionCount":5,"activeUsers":5,"activeCourses":5}`)
			s := mustApply(t, start, tc.raw)
			got := [3]int{s.Stats.ConnectionCount, s.Stats.ActiveUsers, s.Stats.ActiveCourses}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInteractionUpdate_NewestFirst(t *testing.T) {
	s := Opened()
	for _, id := range []string{"e1", "e2", "e3"} {
		s = mustApply(t, s, interactionFrame(id, 1))
	}

	require.Len(t, s.Interactions, 3)
	assert.Equal(t, "e3", s.Interactions[0].UserID)
	assert.Equal(t, "e2", s.Interactions[1].UserID)
	assert.Equal(t, "e1", s.Interactions[2].UserID)
}

func TestBuffersNeverExceedMax(t *testing.T) {
	for _, n := range []int{49, 50, 51, 120} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := Opened()
			for i := 0; i < n; i++ {
				s = mustApply(t, s, interactionFrame(fmt.Sprintf("i%d", i), i+1))
				s = mustApply(t, s, fmt.Sprintf(`{"type":"score_changes_update","data":{"userId":"s%d","actionType":"enroll"}}`, i))
				require.LessOrEqual(t, len(s.Interactions), MaxRecent)
				require.LessOrEqual(t, len(s.ScoreChanges), MaxRecent)
			}

			want := n
			if want > MaxRecent {
				want = MaxRecent
			}
			require.Len(t, s.Interactions, want)
			require.Len(t, s.ScoreChanges, want)
			for k := 0; k < want; k++ {
				assert.Equal(t, fmt.Sprintf("i%d", n-1-k), s.Interactions[k].UserID)
				assert.Equal(t, fmt.Sprintf("s%d", n-1-k), s.ScoreChanges[k].UserID)
			}
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := mustApply(t, Opened(), interactionFrame("a", 1))
	before := s.Interactions[0]

	next := mustApply(t, s, interactionFrame("b", 2))
	assert.Equal(t, "a", s.Interactions[0].UserID)
	assert.Equal(t, before, s.Interactions[0])
	assert.Len(t, s.Interactions, 1)
	assert.Len(t, next.Interactions, 2)
}

func TestScoreChangeUpdate_DecodesCourseChanges(t *testing.T) {
	s := mustApply(t, Opened(), `{"type":"score_changes_update","data":{"userId":42,"actionType":"review","timestamp":"2024-05-01T10:00:00Z",
		"changes":[{"courseId":"c1","courseName":"Algebra","oldScore":1.5,"newScore":2,"scoreDelta":0.5,"reason":"review"},
		           {"courseId":"c2","oldScore":"x"}, 7]}}`)

	require.Len(t, s.ScoreChanges, 1)
	c := s.ScoreChanges[0]
	assert.Equal(t, "42", c.UserID)
	assert.True(t, c.Timestamp.Valid)
	require.Len(t, c.Changes, 2)
	assert.Equal(t, "Algebra", c.Changes[0].CourseName)
	require.NotNil(t, c.Changes[0].ScoreDelta)
	assert.InDelta(t, 0.5, *c.Changes[0].ScoreDelta, 1e-9)
	assert.Nil(t, c.Changes[1].OldScore)
	assert.Nil(t, c.AffectedCourses)
}

func TestMissingOrMalformedData_Ignored(t *testing.T) {
	cases := []string{
		`{"type":"interaction_update"}`,
		`{"type":"interaction_update","data":null}`,
		`{"type":"score_changes_update","data":[1,2]}`,
		`{"type":"init","stats":{"recentInteractions":"nope","recentScoreChanges":{}}}`,
		`{"type":"heartbeat"}`,
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			s := mustApply(t, Opened(), interactionFrame("keep", 1))
			next := mustApply(t, s, raw)
			assert.LessOrEqual(t, len(next.Interactions), 1)
			assert.Empty(t, next.ScoreChanges)
		})
	}
}

func TestParseFrame_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"type":`, `[1,2,3]`, `"init"`, ""} {
		_, err := ParseFrame([]byte(raw))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("ParseFrame(%q): want ErrMalformedFrame, got %v", raw, err)
		}
	}
}

func TestApply_UnknownTypeLeavesState(t *testing.T) {
	s := mustApply(t, Opened(), interactionFrame("a", 1))
	f, err := ParseFrame([]byte(`{"type":"course_deleted","id":1}`))
	require.NoError(t, err)

	next, err := Apply(s, f)
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, s, next)
}

func TestConnectionTransitions(t *testing.T) {
	s := mustApply(t, Opened(), interactionFrame("a", 1))
	require.True(t, s.Connected)

	s = Failed(s, "boom")
	assert.False(t, s.Connected)
	assert.Equal(t, "boom", s.LastError)

	s = Closed(s)
	assert.Equal(t, "boom", s.LastError, "a close keeps the previous error")

	s = Opened()
	assert.True(t, s.Connected)
	assert.Empty(t, s.LastError)
	assert.Empty(t, s.Interactions, "state does not survive a reconnect")
}

func TestInteraction_PassesRawThrough(t *testing.T) {
	raw := `{"userId":"u1","interactionType":"view","custom":{"nested":true}}`
	s := mustApply(t, Opened(), `{"type":"interaction_update","data":`+raw+`}`)

	out, err := json.Marshal(s.Interactions[0])
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestApply_NumbersEventsOnArrival(t *testing.T) {
	s := mustApply(t, Opened(), `{"type":"init","stats":{
		"recentInteractions":[{"userId":"new"},{"userId":"old"}],
		"recentScoreChanges":[{"userId":"a","actionType":"x"},{"userId":"a","actionType":"x"}]}}`)
	require.Len(t, s.Interactions, 2)
	assert.Equal(t, uint64(2), s.Interactions[0].Seq)
	assert.Equal(t, uint64(1), s.Interactions[1].Seq)
	assert.Equal(t, uint64(4), s.ScoreChanges[0].Seq)
	assert.Equal(t, uint64(3), s.ScoreChanges[1].Seq)

	same := `{"type":"score_changes_update","data":{"userId":"a","actionType":"x","timestamp":5}}`
	s1 := mustApply(t, s, same)
	s2 := mustApply(t, s1, same)
	assert.Equal(t, uint64(5), s1.ScoreChanges[0].Seq)
	assert.Equal(t, uint64(6), s2.ScoreChanges[0].Seq)
	assert.Equal(t, uint64(5), s2.ScoreChanges[1].Seq)
	assert.Equal(t, uint64(6), s2.Seq)

	// The input state keeps its own numbering.
	assert.Equal(t, uint64(4), s.Seq)

	// Ignored frames hand out nothing.
	next := mustApply(t, s2, `{"type":"interaction_update","data":null}`)
	assert.Equal(t, s2.Seq, next.Seq)
}

func TestReopened_ContinuesNumbering(t *testing.T) {
	s := mustApply(t, Opened(), interactionFrame("a", 1))
	s = Reopened(Failed(s, "boom"))
	assert.True(t, s.Connected)
	assert.Empty(t, s.Interactions)
	assert.Empty(t, s.LastError)

	s = mustApply(t, s, interactionFrame("b", 2))
	assert.Equal(t, uint64(2), s.Interactions[0].Seq)
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}
