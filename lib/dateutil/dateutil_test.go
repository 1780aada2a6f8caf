package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Wednesday
var ref = time.Date(2025, time.October, 15, 10, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	cases := []struct {
		text   string
		ok     bool
		expect time.Time
	}{
		{text: "Due Oct 7, 11:59 PM", ok: true, expect: time.Date(2025, time.October, 7, 23, 59, 0, 0, time.UTC)},
		{text: "Due Oct 7, 11:59\u202fPM", ok: true, expect: time.Date(2025, time.October, 7, 23, 59, 0, 0, time.UTC)},
		{text: "Due Tomorrow", ok: true, expect: time.Date(2025, time.October, 16, 0, 0, 0, 0, time.UTC)},
		{text: "Due Today, 11:59 PM", ok: true, expect: time.Date(2025, time.October, 15, 23, 59, 0, 0, time.UTC)},
		{text: "Due Friday", ok: true, expect: time.Date(2025, time.October, 17, 0, 0, 0, 0, time.UTC)},
		{text: "Due Wednesday", ok: true, expect: time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC)},
		{text: "Mar 3", ok: true, expect: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)},
		{text: "Posted Sept 30", ok: true, expect: time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC)},
		{text: "Due on Nov 2 at 9am", ok: true, expect: time.Date(2025, time.November, 2, 9, 0, 0, 0, time.UTC)},
		{text: "2024-10-07", ok: true, expect: time.Date(2024, time.October, 7, 0, 0, 0, 0, time.UTC)},
		{text: "No due date", ok: false},
		{text: "", ok: false},
		{text: "Essay draft", ok: false},
	}

	for _, test := range cases {
		t.Run(test.text, func(t *testing.T) {
			got, ok := Parse(test.text, ref)
			require.Equal(t, test.ok, ok)
			if test.ok {
				require.True(t, test.expect.Equal(got), "expected %s, got %s", test.expect, got)
			}
		})
	}
}

func TestParseWithYear(t *testing.T) {
	got, ok := Parse("May 8, 2009 5:57:51 PM", ref)
	require.True(t, ok)
	require.Equal(t, 2009, got.Year())
	require.Equal(t, time.May, got.Month())
	require.Equal(t, 8, got.Day())
}

func TestResolveSchoolYear(t *testing.T) {
	cases := []struct {
		month  time.Month
		day    int
		ref    time.Time
		expect int
	}{
		{month: time.September, day: 5, ref: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), expect: 2025},
		{month: time.February, day: 5, ref: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), expect: 2026},
		{month: time.November, day: 5, ref: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), expect: 2025},
		{month: time.April, day: 5, ref: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), expect: 2026},
		{month: time.July, day: 5, ref: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), expect: 2026},
	}

	for _, test := range cases {
		got := ResolveSchoolYear(test.month, test.day, test.ref)
		require.Equal(t, test.expect, got.Year())
		require.Equal(t, test.month, got.Month())
		require.Equal(t, test.day, got.Day())
	}
}

func TestHasMonth(t *testing.T) {
	require.True(t, HasMonth("Due Oct 7"))
	require.True(t, HasMonth("september 30, 2025"))
	require.True(t, HasMonth("Sept. 30"))
	require.False(t, HasMonth("Not Submitted"))
	require.False(t, HasMonth("Monday"))
	require.False(t, HasMonth("Marker assignment"))
}
