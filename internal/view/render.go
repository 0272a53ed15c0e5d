package view

import (
	"bufio"
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteActivity renders the compact feed as plain text.
func WriteActivity(w io.Writer, v ActivityView) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Realtime Activity")
	fmt.Fprintf(bw, "[%s]", v.Status)
	if v.OfferReconnect {
		fmt.Fprint(bw, "  (press r to reconnect)")
	}
	fmt.Fprintln(bw)
	if v.Error != "" {
		fmt.Fprintf(bw, "! %s\n", v.Error)
	}
	writeStats(bw, v.Stats.ConnectionCount, v.Stats.ActiveUsers, v.Stats.ActiveCourses)

	fmt.Fprintln(bw, "\nRecent Interactions")
	writeItems(bw, v.Interactions, v.InteractionsPlaceholder)
	fmt.Fprintln(bw, "\nRecent Score Changes")
	writeItems(bw, v.ScoreChanges, v.ScoreChangesPlaceholder)

	return bw.Flush()
}

func writeStats(w io.Writer, connections, users, courses int) {
	fmt.Fprintf(w, "Active Connections: %d   Active Users: %d   Active Courses: %d\n", connections, users, courses)
}

func writeItems(w io.Writer, items []ActivityItem, empty string) {
	if len(items) == 0 {
		fmt.Fprintf(w, "  %s\n", empty)
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "  %s\n    %s\n", it.Primary, it.Secondary)
	}
}

// WriteMonitor renders the active tab of the monitor as aligned columns.
func WriteMonitor(w io.Writer, v MonitorView) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Realtime System Monitor [%s]\n", v.Status)
	writeStats(bw, v.Stats.ConnectionCount, v.Stats.ActiveUsers, v.Stats.ActiveCourses)
	if v.Warning != "" {
		fmt.Fprintf(bw, "! %s\n", v.Warning)
	}
	for i, tab := range v.Tabs {
		marker := " "
		if Tab(i) == ParseTab(v.ActiveTab) {
			marker = "*"
		}
		fmt.Fprintf(bw, "%s%s (%d)  ", marker, tab.Label, tab.Badge)
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw)

	tw := tabwriter.NewWriter(bw, 0, 0, 2, ' ', 0)
	if v.ActiveTab == TabScoreChanges.String() {
		writeScoreChanges(tw, v)
	} else {
		writeInteractions(tw, v)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}

func writeInteractions(w io.Writer, v MonitorView) {
	fmt.Fprintln(w, "Time\tUser\tAction\tEntity\tType")
	if len(v.Interactions) == 0 {
		fmt.Fprintln(w, v.InteractionsPlaceholder)
		return
	}
	for _, r := range v.Interactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Time, r.User, r.Action, r.Entity, r.Type)
	}
}

func writeScoreChanges(w io.Writer, v MonitorView) {
	fmt.Fprintln(w, "\tTime\tUser\tAction\tAffected")
	if len(v.ScoreChanges) == 0 {
		fmt.Fprintln(w, v.ScoreChangesPlaceholder)
		return
	}
	for _, r := range v.ScoreChanges {
		toggle := "+"
		if r.Expanded {
			toggle = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", toggle, r.Time, r.User, r.Action, r.Affected)
		if !r.Expanded {
			continue
		}
		if len(r.Details) == 0 {
			fmt.Fprintf(w, "\t  %s\n", r.DetailsPlaceholder)
			continue
		}
		for _, d := range r.Details {
			fmt.Fprintf(w, "\t  %s\told %s\t%s\tnew %s\t%s\n", d.Course, d.OldScore, d.Change, d.NewScore, d.Reason)
		}
	}
}
