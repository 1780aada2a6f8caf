// Package report renders a run's result as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"classbridge/internal/aggregate"
	"classbridge/internal/model"
	"classbridge/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const titleWidth = 50

type Options struct {
	// Color enables ansi colors, off when the output is not a terminal.
	Color bool
}

type Renderer struct {
	w    io.Writer
	opts Options
}

func New(w io.Writer, opts Options) Renderer {
	return Renderer{w: w, opts: opts}
}

func (r Renderer) color(s string, colors ...text.Color) string {
	if !r.opts.Color {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func (r Renderer) table(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Options.SeparateRows = true
	t.SetOutputMirror(r.w)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func (r Renderer) heading(s string) {
	fmt.Fprintf(r.w, "\n%s\n\n", r.color("== "+s+" ==", text.Bold, text.FgCyan))
}

// Classes prints one table of courses per platform.
func (r Renderer) Classes(courses []model.Course) {
	r.heading("Discovered Classes")
	for _, p := range []model.Platform{model.GoogleClassroom, model.Brightspace} {
		var rows []table.Row
		for _, c := range courses {
			if c.Platform == p {
				rows = append(rows, table.Row{c.Name, c.ShortCode})
			}
		}
		if len(rows) == 0 {
			fmt.Fprintln(r.w, r.color(fmt.Sprintf("No classes found on %s", p), text.FgYellow))
			fmt.Fprintln(r.w)
			continue
		}
		t := r.table(p.String())
		t.AppendHeader(table.Row{"Class", "Code"})
		t.AppendRows(rows)
		t.Render()
		fmt.Fprintln(r.w)
	}
}

func (r Renderer) status(it model.WorkItem, now time.Time) string {
	switch {
	case it.Status == model.Missing:
		return r.color("MISSING", text.Bold, text.FgRed)
	case it.IsOverdue(now):
		return r.color("OVERDUE", text.Bold, text.FgRed)
	case it.Status == model.Late:
		return r.color("LATE", text.Bold, text.FgYellow)
	case it.Status == model.NotSubmitted:
		return r.color("Not Done", text.FgYellow)
	case it.Status == model.Upcoming:
		return r.color("Upcoming", text.FgBlue)
	}
	return "Assigned"
}

// Items prints one table per course.
func (r Renderer) Items(groups []aggregate.Group, now time.Time) {
	r.heading("Incomplete Assignments & Work To Do")
	if len(groups) == 0 {
		fmt.Fprintln(r.w, r.color("No incomplete assignments found. All caught up!", text.Bold, text.FgGreen))
		return
	}

	for _, g := range groups {
		t := r.table(g.Course)
		t.AppendHeader(table.Row{"#", "Type", "Title", "Status", "Due", "Posted", "Platform"})
		for i, it := range g.Items {
			due := it.DisplayDue()
			if it.IsOverdue(now) {
				due = r.color(due, text.Bold, text.FgRed)
			}
			t.AppendRow(table.Row{
				i + 1,
				it.Kind.String(),
				textutil.Truncate(it.Title, titleWidth),
				r.status(it, now),
				due,
				it.DisplayPosted(),
				it.Platform.String(),
			})
		}
		t.Render()
		fmt.Fprintln(r.w)
	}
}

// Summary prints the counts of a run and how urgent they are.
func (r Renderer) Summary(s aggregate.Summary, now time.Time) {
	r.heading("Summary")

	t := r.table("Overview")
	t.AppendRow(table.Row{"Total items found", s.Total})
	if s.Missing > 0 {
		t.AppendRow(table.Row{r.color("Missing", text.Bold, text.FgRed), s.Missing})
	}
	if s.Overdue > 0 {
		t.AppendRow(table.Row{r.color("Overdue", text.Bold, text.FgRed), s.Overdue})
	}
	t.AppendRow(table.Row{"Not submitted", s.NotSubmitted})
	t.AppendRow(table.Row{"Upcoming", s.Upcoming})
	t.AppendRow(table.Row{"Announcements", s.Announcements})
	for _, p := range []model.Platform{model.GoogleClassroom, model.Brightspace} {
		t.AppendRow(table.Row{p.String(), strconv.Itoa(s.PerPlatform[p])})
	}
	t.Render()
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, r.urgencyLine(s))
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "Report generated at %s\n", now.Format("January 02, 2006 03:04 PM"))
}

// urgencyLine is the one line verdict under the summary.
func (r Renderer) urgencyLine(s aggregate.Summary) string {
	switch s.Urgency() {
	case aggregate.Attention:
		return r.color(fmt.Sprintf("ATTENTION: %d item(s) are missing or overdue!", s.Missing+s.Overdue), text.Bold, text.FgRed)
	case aggregate.Outstanding:
		return r.color(fmt.Sprintf("There are %d item(s) that still need to be completed.", s.NotSubmitted), text.FgYellow)
	}
	return r.color("All caught up! No urgent items.", text.Bold, text.FgGreen)
}

// Render prints the whole report of a run.
func (r Renderer) Render(res aggregate.Result, now time.Time) {
	r.Classes(res.Courses)
	r.Items(res.Groups, now)
	r.Summary(aggregate.Summarize(res.Items, now), now)
}
