// Package aggregate merges the items every source produced into one
// deduplicated, grouped and ordered result.
package aggregate

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"classbridge/internal/model"
	"classbridge/lib/textutil"
)

// UnknownCourse groups items that belong to no course.
const UnknownCourse = "General / Unknown"

// shortCodeLength is how much of a course name stands in for a code when no
// subject code matches.
const shortCodeLength = 10

// farFuture orders undated items after every dated one.
var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// ShortCode is the first subject code found in name, upper cased, else the
// first characters of name.
func ShortCode(name string, codes []string) string {
	if code, ok := textutil.MatchCode(name, codes); ok {
		return strings.ToUpper(code)
	}
	if utf8.RuneCountInString(name) <= shortCodeLength {
		return name
	}
	return string([]rune(name)[:shortCodeLength])
}

// SelectCourses keeps the courses whose name contains one of codes. When no
// course matches, every course is kept so a wrong code list still produces a
// report. Either way each course gets its ShortCode.
func SelectCourses(courses []model.Course, codes []string) []model.Course {
	var matched []model.Course
	for _, c := range courses {
		if _, ok := textutil.MatchCode(c.Name, codes); ok {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		matched = append(matched, courses...)
	}

	out := make([]model.Course, len(matched))
	for i, c := range matched {
		c.ShortCode = ShortCode(c.Name, codes)
		out[i] = c
	}
	return out
}

// Dedupe drops every item whose title was already seen, keeping the first.
func Dedupe(items []model.WorkItem) []model.WorkItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.WorkItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		out = append(out, it)
	}
	return out
}

// MergeTodo appends the items of a cross-course to-do list that were not
// already collected from a course, matching on exact title.
func MergeTodo(collected, todo []model.WorkItem) []model.WorkItem {
	seen := make(map[string]struct{}, len(collected))
	for _, it := range collected {
		seen[it.Title] = struct{}{}
	}
	out := append([]model.WorkItem(nil), collected...)
	for _, it := range todo {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Group is the items of one course.
type Group struct {
	Course string
	Items  []model.WorkItem
}

// GroupItems buckets items by course name, courses sorted by name. Items
// without a course go to UnknownCourse.
func GroupItems(items []model.WorkItem) []Group {
	index := map[string]int{}
	var groups []Group
	for _, it := range items {
		name := strings.TrimSpace(it.Course)
		if name == "" {
			name = UnknownCourse
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, Group{Course: name})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Course < groups[j].Course
	})
	return groups
}

func dueOrFarFuture(it model.WorkItem) time.Time {
	if it.Due == nil {
		return farFuture
	}
	return *it.Due
}

// urgency ranks an item inside a course: missing, overdue, dated, undated.
func urgency(it model.WorkItem, now time.Time) int {
	switch {
	case it.Status == model.Missing:
		return 0
	case it.IsOverdue(now):
		return 1
	case it.Due != nil:
		return 2
	}
	return 3
}

// SortGroup orders the items of one course by urgency then due date.
func SortGroup(items []model.WorkItem, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ui, uj := urgency(items[i], now), urgency(items[j], now)
		if ui != uj {
			return ui < uj
		}
		return dueOrFarFuture(items[i]).Before(dueOrFarFuture(items[j]))
	})
}

func needsAttention(it model.WorkItem, now time.Time) bool {
	return it.Status == model.Missing || it.IsOverdue(now)
}

// SortCombined orders items across courses: overdue and missing first, then
// by due date with undated items last.
func SortCombined(items []model.WorkItem, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := needsAttention(items[i], now), needsAttention(items[j], now)
		if ai != aj {
			return ai
		}
		return dueOrFarFuture(items[i]).Before(dueOrFarFuture(items[j]))
	})
}

// Result is what a run hands to the report.
type Result struct {
	Courses []model.Course
	// Items is every item once, in combined order.
	Items  []model.WorkItem
	Groups []Group
}

// Build turns everything a run collected into a Result. Empty titles are
// dropped, titles are deduplicated in the order items were collected.
func Build(courses []model.Course, items []model.WorkItem, now time.Time) Result {
	kept := make([]model.WorkItem, 0, len(items))
	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" {
			continue
		}
		kept = append(kept, it)
	}
	kept = Dedupe(kept)

	groups := GroupItems(kept)
	for _, g := range groups {
		SortGroup(g.Items, now)
	}
	SortCombined(kept, now)

	return Result{
		Courses: courses,
		Items:   kept,
		Groups:  groups,
	}
}
