package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"classbridge/internal/aggregate"
	"classbridge/internal/model"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)

func at(month time.Month, day int) *time.Time {
	t := time.Date(2025, month, day, 23, 59, 0, 0, time.UTC)
	return &t
}

func render(t *testing.T, fn func(r Renderer)) string {
	t.Helper()
	var buf bytes.Buffer
	fn(New(&buf, Options{}))
	return buf.String()
}

func TestClasses(t *testing.T) {
	out := render(t, func(r Renderer) {
		r.Classes([]model.Course{
			{Name: "ENG4U - English", ShortCode: "ENG", Platform: model.GoogleClassroom},
			{Name: "GLE - Learning Strategies", ShortCode: "GLE", Platform: model.GoogleClassroom},
		})
	})
	require.Contains(t, out, "Google Classroom")
	require.Contains(t, out, "ENG4U - English")
	require.Contains(t, out, "GLE")
	require.Contains(t, out, "No classes found on Brightspace")
	require.Contains(t, out, "╭")
}

func TestItems(t *testing.T) {
	res := aggregate.Build(nil, []model.WorkItem{
		{Title: "Planning Log", Course: "GLE", Status: model.NotSubmitted, Due: at(time.October, 20), Platform: model.GoogleClassroom},
		{Title: "Unit 2 Quiz", Course: "GLE", Status: model.Missing, Kind: model.Quiz, Platform: model.GoogleClassroom},
		{Title: "Essay Draft", Course: "ENG4U", Status: model.NotSubmitted, Due: at(time.October, 1), Platform: model.Brightspace},
		{Title: "Field Trip Friday", Course: "ENG4U", Status: model.Assigned, Kind: model.Announcement, Platform: model.Brightspace, PostedRaw: "Oct 10"},
		{Title: strings.Repeat("x", 80), Course: "ENG4U", Status: model.Upcoming, Kind: model.Event, Platform: model.Brightspace},
	}, now)

	out := render(t, func(r Renderer) { r.Items(res.Groups, now) })

	require.Less(t, strings.Index(out, "ENG4U"), strings.Index(out, "GLE"))
	for _, label := range []string{"MISSING", "OVERDUE", "Not Done", "Upcoming", "Assigned"} {
		require.Contains(t, out, label)
	}
	require.Contains(t, out, "Oct 20, 2025 11:59 PM")
	require.Contains(t, out, model.NoDueDate)
	require.Contains(t, out, "Oct 10")
	require.Contains(t, out, strings.Repeat("x", titleWidth))
	require.NotContains(t, out, strings.Repeat("x", titleWidth+1))
	// colors are off
	require.NotContains(t, out, "\x1b[")
}

func TestItemsCaughtUp(t *testing.T) {
	out := render(t, func(r Renderer) { r.Items(nil, now) })
	require.Contains(t, out, "No incomplete assignments found. All caught up!")
}

func TestSummary(t *testing.T) {
	cases := []struct {
		name     string
		summary  aggregate.Summary
		expected string
		absent   string
	}{
		{
			name:     "attention",
			summary:  aggregate.Summary{Total: 3, Missing: 1, Overdue: 1, NotSubmitted: 2},
			expected: "ATTENTION: 2 item(s) are missing or overdue!",
		},
		{
			name:     "outstanding",
			summary:  aggregate.Summary{Total: 2, NotSubmitted: 2},
			expected: "There are 2 item(s) that still need to be completed.",
			absent:   "Missing",
		},
		{
			name:     "caught up",
			summary:  aggregate.Summary{Total: 1, Announcements: 1},
			expected: "All caught up! No urgent items.",
			absent:   "Overdue",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := render(t, func(r Renderer) { r.Summary(c.summary, now) })
			require.Contains(t, out, c.expected)
			require.Contains(t, out, "Report generated at October 15, 2025 12:00 PM")
			if c.absent != "" {
				require.NotContains(t, out, c.absent)
			}
		})
	}
}

func TestRenderWithColor(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Color: true}).Render(aggregate.Build(nil, []model.WorkItem{
		{Title: "Unit 2 Quiz", Course: "GLE", Status: model.Missing},
	}, now), now)

	out := buf.String()
	require.Contains(t, out, "\x1b[")
	require.Contains(t, out, "Discovered Classes")
	require.Contains(t, out, "Unit 2 Quiz")
	require.Contains(t, out, "ATTENTION: 1 item(s)")
}
