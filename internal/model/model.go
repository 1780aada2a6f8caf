// Package model holds the canonical course and work item records every
// source is normalized into.
package model

import (
	"strings"
	"time"

	"classbridge/lib/dateutil"
	"classbridge/lib/textutil"
)

type Platform int

const (
	GoogleClassroom Platform = iota
	Brightspace
)

func (p Platform) String() string {
	switch p {
	case GoogleClassroom:
		return "Google Classroom"
	case Brightspace:
		return "Brightspace"
	}
	return "Unknown"
}

type ItemKind int

const (
	Assignment ItemKind = iota
	Announcement
	Material
	Quiz
	Discussion
	Event
)

func (k ItemKind) String() string {
	switch k {
	case Assignment:
		return "Assignment"
	case Announcement:
		return "Announcement"
	case Material:
		return "Material"
	case Quiz:
		return "Quiz"
	case Discussion:
		return "Discussion"
	case Event:
		return "Event"
	}
	return "Unknown"
}

type Status int

const (
	Unknown Status = iota
	NotSubmitted
	Missing
	Late
	Assigned
	Upcoming
)

func (s Status) String() string {
	switch s {
	case NotSubmitted:
		return "Not Submitted"
	case Missing:
		return "Missing"
	case Late:
		return "Late"
	case Assigned:
		return "Assigned"
	case Upcoming:
		return "Upcoming"
	}
	return "Unknown"
}

// Course is one course per distinct id per platform.
type Course struct {
	Name     string
	ID       string
	URL      string
	Platform Platform
	// Section is the line shown under the name on course cards, usually the
	// section or teacher.
	Section   string
	ShortCode string
}

// WorkItem is anything a student has to act on or be told about. Course is a
// soft reference by name.
type WorkItem struct {
	Title       string
	Course      string
	Platform    Platform
	Kind        ItemKind
	Status      Status
	Due         *time.Time
	DueRaw      string
	Description string
	URL         string
	Points      string
	Posted      *time.Time
	PostedRaw   string
}

const (
	DueLayout    = "Jan 02, 2006 03:04 PM"
	PostedLayout = "Jan 02, 2006"
	NoDueDate    = "No due date"

	// DescriptionLimit is how many runes of a description are kept.
	DescriptionLimit = 200
)

func (w WorkItem) IsOverdue(now time.Time) bool {
	return w.Due != nil && w.Due.Before(now)
}

func (w WorkItem) DisplayDue() string {
	if w.Due != nil {
		return w.Due.Format(DueLayout)
	}
	if w.DueRaw != "" {
		return w.DueRaw
	}
	return NoDueDate
}

func (w WorkItem) DisplayPosted() string {
	if w.Posted != nil {
		return w.Posted.Format(PostedLayout)
	}
	return w.PostedRaw
}

// SetDue records raw and the date parsed out of it, if any.
func (w *WorkItem) SetDue(raw string, ref time.Time) {
	w.DueRaw = strings.TrimSpace(raw)
	w.Due = nil
	if t, ok := dateutil.Parse(w.DueRaw, ref); ok {
		w.Due = &t
	}
}

// SetPosted is SetDue for the posted date.
func (w *WorkItem) SetPosted(raw string, ref time.Time) {
	w.PostedRaw = strings.TrimSpace(raw)
	w.Posted = nil
	if t, ok := dateutil.Parse(w.PostedRaw, ref); ok {
		w.Posted = &t
	}
}

// SetDescription keeps a whitespace-collapsed snippet of s.
func (w *WorkItem) SetDescription(s string) {
	w.Description = textutil.Truncate(textutil.CollapseSpace(s), DescriptionLimit)
}

var completedKeywords = []string{"submitted", "completed", "turned in", "done"}

// IsCompleted reports whether raw text says the work is finished. "not
// submitted" is the platforms' label for outstanding work and does not count.
func IsCompleted(text string) bool {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "not submitted", "")
	lower = strings.ReplaceAll(lower, "not turned in", "")
	for _, k := range completedKeywords {
		if containsWord(lower, k) {
			return true
		}
	}
	return false
}

// ClassifyStatus reads status evidence from the raw text around an item. The
// bool is false when the item is already finished and must be dropped.
//
// Precedence: missing, then completed (turned in, done, submitted), then
// late, then fallback.
func ClassifyStatus(text string, fallback Status) (Status, bool) {
	lower := strings.ToLower(text)
	if containsWord(lower, "missing") {
		return Missing, true
	}
	if IsCompleted(lower) {
		return Unknown, false
	}
	if containsWord(lower, "late") {
		return Late, true
	}
	return fallback, true
}

// ClassifyRow is the rule for list rows on Brightspace pages: completed rows
// are dropped, overdue rows are missing, everything else is not submitted.
func ClassifyRow(text string) (Status, bool) {
	if IsCompleted(text) {
		return Unknown, false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "overdue") || strings.Contains(lower, "past due") {
		return Missing, true
	}
	return NotSubmitted, true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// containsWord reports whether needle appears in s on word boundaries, so
// "done" does not match "abandoned" and "late" does not match "translate".
func containsWord(s, needle string) bool {
	for start := 0; start <= len(s)-len(needle); {
		i := strings.Index(s[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if (i == 0 || !isLetter(s[i-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		start = i + 1
	}
	return false
}
