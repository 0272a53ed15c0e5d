package view

import (
	"strconv"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/pkg/types"
)

const notAvailable = "N/A"

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	clockLayout    = "15:04:05"
)

func formatDateTime(ts types.Timestamp, loc *time.Location) string {
	if !ts.Valid {
		return notAvailable
	}
	return ts.Time.In(orLocal(loc)).Format(dateTimeLayout)
}

func formatClock(ts types.Timestamp, loc *time.Location) string {
	if !ts.Valid {
		return notAvailable
	}
	return ts.Time.In(orLocal(loc)).Format(clockLayout)
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// formatScore renders two decimals; a missing score reads as 0.00.
func formatScore(v *float64) string {
	if v == nil {
		return "0.00"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatDelta(v *float64) string {
	if v != nil && *v > 0 {
		return "+" + formatScore(v)
	}
	return formatScore(v)
}

func statusLabel(connected bool) string {
	if connected {
		return "Connected"
	}
	return "Disconnected"
}

func interactionAction(i types.Interaction) string {
	if i.InteractionType != "" {
		return i.InteractionType
	}
	return i.Type
}

func interactionEntity(i types.Interaction) string {
	if i.EntityName != "" {
		return i.EntityName
	}
	return i.Course
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
