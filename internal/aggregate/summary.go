package aggregate

import (
	"time"

	"classbridge/internal/model"
)

type Urgency int

const (
	CaughtUp Urgency = iota
	Outstanding
	Attention
)

type Summary struct {
	Total   int
	Missing int
	// Overdue does not count missing items.
	Overdue       int
	NotSubmitted  int
	Upcoming      int
	Announcements int
	PerPlatform   map[model.Platform]int
}

func Summarize(items []model.WorkItem, now time.Time) Summary {
	s := Summary{
		Total:       len(items),
		PerPlatform: map[model.Platform]int{},
	}
	for _, it := range items {
		switch {
		case it.Status == model.Missing:
			s.Missing++
		case it.IsOverdue(now):
			s.Overdue++
		}
		switch it.Status {
		case model.NotSubmitted:
			s.NotSubmitted++
		case model.Upcoming:
			s.Upcoming++
		}
		if it.Kind == model.Announcement {
			s.Announcements++
		}
		s.PerPlatform[it.Platform]++
	}
	return s
}

func (s Summary) Urgency() Urgency {
	if s.Missing+s.Overdue > 0 {
		return Attention
	}
	if s.NotSubmitted > 0 {
		return Outstanding
	}
	return CaughtUp
}
