// Package dateutil pulls dates out of the free text the platforms render next
// to work items ("Due Oct 7, 11:59 PM", "Due Tomorrow", "May 8, 2024 5:00 PM").
package dateutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var referenceMonths = []string{
	"january",
	"february",
	"march",
	"april",
	"may",
	"june",
	"july",
	"august",
	"september",
	"october",
	"november",
	"december",
}

// ParseMonth returns the month a word abbreviates, or 0 when it is not a month.
func ParseMonth(text string) time.Month {
	text = strings.ToLower(strings.TrimSuffix(text, "."))
	if len(text) < 3 {
		return 0
	}
	for i, month := range referenceMonths {
		if strings.HasPrefix(month, text) {
			return time.January + time.Month(i)
		}
	}
	return 0
}

// ResolveSchoolYear picks the year for a month/day that came without one. A
// school year runs August to June, so a fall date seen in spring belongs to
// the previous calendar year and a spring date seen in fall to the next one.
func ResolveSchoolYear(month time.Month, day int, ref time.Time) time.Time {
	year := ref.Year()
	if (month >= time.August && month <= time.December) &&
		(ref.Month() < time.June && ref.Month() >= time.January) {
		year--
	}
	if (month >= time.January && month < time.June) &&
		(ref.Month() >= time.August && ref.Month() <= time.December) {
		year++
	}
	return time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
}

var (
	yearRegex        = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	numericDateRegex = regexp.MustCompile(`\b\d{1,4}[/-]\d{1,2}[/-]\d{1,4}\b`)
	monthDayRegex    = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.? *(\d{1,2})(?:st|nd|rd|th)?\b`)
	clock12Regex     = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))? *([ap])\.?m\b`)
	clock24Regex     = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noiseRegex       = regexp.MustCompile(`(?i)\b(due|posted|date|on|at|by|edited|created)\b:?`)
	spaceRegex       = regexp.MustCompile(`\s+`)
)

// non-breaking spaces show up between the time and AM/PM
var spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ")

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func clean(text string) string {
	text = noiseRegex.ReplaceAllString(text, " ")
	text = spaceReplacer.Replace(text)
	text = spaceRegex.ReplaceAllString(text, " ")
	return strings.Trim(text, " ,:-\t\n")
}

// clock returns the hour and minute mentioned in text, if any.
func clock(text string) (int, int, bool) {
	if m := clock12Regex.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		hour %= 12
		if strings.EqualFold(m[3], "p") {
			hour += 12
		}
		return hour, minute, true
	}
	if m := clock24Regex.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return hour, minute, true
	}
	return 0, 0, false
}

func withClock(day time.Time, text string) time.Time {
	hour, minute, ok := clock(text)
	if !ok {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseRelative(text string, ref time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	today := startOfDay(ref)
	switch {
	case strings.Contains(lower, "tomorrow"):
		return withClock(today.AddDate(0, 0, 1), text), true
	case strings.Contains(lower, "yesterday"):
		return withClock(today.AddDate(0, 0, -1), text), true
	case strings.Contains(lower, "today"):
		return withClock(today, text), true
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.'
	}) {
		wd, ok := weekdays[word]
		if !ok {
			continue
		}
		offset := (int(wd) - int(ref.Weekday()) + 7) % 7
		return withClock(today.AddDate(0, 0, offset), text), true
	}
	return time.Time{}, false
}

func parseMonthDay(text string, ref time.Time) (time.Time, bool) {
	for _, match := range monthDayRegex.FindAllStringSubmatch(text, -1) {
		month := ParseMonth(match[1])
		if month == 0 {
			continue
		}
		day, err := strconv.Atoi(match[2])
		if err != nil || day < 1 || day > 31 {
			continue
		}

		var date time.Time
		if y := yearRegex.FindString(text); y != "" {
			year, _ := strconv.Atoi(y)
			date = time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
		} else {
			date = ResolveSchoolYear(month, day, ref)
		}
		return withClock(date, text), true
	}
	return time.Time{}, false
}

// Parse finds a date in free text. ref anchors relative words ("tomorrow",
// "Friday") and the year of dates that omit one. Failure to find a date is
// expected and reported through the bool, callers keep the raw text instead.
func Parse(text string, ref time.Time) (time.Time, bool) {
	cleaned := clean(text)
	if cleaned == "" {
		return time.Time{}, false
	}

	hasYear := yearRegex.MatchString(cleaned) || numericDateRegex.MatchString(cleaned)
	if hasYear {
		t, err := dateparse.ParseIn(cleaned, ref.Location())
		if err == nil {
			return t, true
		}
	}
	if t, ok := parseMonthDay(cleaned, ref); ok {
		return t, true
	}
	if !hasYear {
		if t, ok := parseRelative(cleaned, ref); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

var monthTokenRegex = regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sept?(ember)?|oct(ober)?|nov(ember)?|dec(ember)?)\b`)

// HasMonth reports whether a line mentions a month by name, used to pick the
// date line out of a multi-line row.
func HasMonth(line string) bool {
	return monthTokenRegex.MatchString(line)
}
