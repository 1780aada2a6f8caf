package brightspace

import (
	"context"
	"strings"
	"testing"
	"time"

	"classbridge/internal/components/chrono"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver/fakedriver"
	"classbridge/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)

func date(month time.Month, day, hour, minute int) *time.Time {
	t := time.Date(2025, month, day, hour, minute, 0, 0, time.UTC)
	return &t
}

// api answers in-page fetches by path, unknown paths answer null.
func api(d *fakedriver.Driver, responses map[string]any) {
	d.Eval = func(d *fakedriver.Driver, script string, args []any) (any, error) {
		if script != fetchInPage || len(args) != 1 {
			return nil, nil
		}
		return responses[args[0].(string)], nil
	}
}

func newScraper(d *fakedriver.Driver) (Scraper, *telemetry.Recorder) {
	rec := telemetry.NewRecorder()
	return NewScraper(d, NewPageFetcher(d), chrono.Fixed{At: now}, rec, Timing{}), rec
}

func TestCourseID(t *testing.T) {
	cases := []struct {
		href, id string
	}{
		{"https://tdsb.elearningontario.ca/d2l/home/123456", "123456"},
		{"/d2l/le/content/98765/Home", "98765"},
		{"/d2l/lms/news/main.d2l?ou=4242", "4242"},
		{"/some/path/77/", "77"},
		{"/d2l/home", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.id, CourseID(c.href), c.href)
	}
}

const homeWithCourses = `<html><body>
	<div role="dialog"><p>Your browser is looking a little retro.</p><button>Got It</button></div>
	<nav><a href="/d2l/home">Home</a></nav>
	<div class="d2l-card"><a href="/d2l/home/1001"><div>ENG4U - English</div><div>Ms. Smith</div></a></div>
	<a href="/d2l/le/content/1001/Home">ENG4U content</a>
	<div class="d2l-card"><a href="/d2l/home/1002">GLE2O - Learning Strategies</a></div>
	<div class="d2l-card"><a href="/d2l/home/1003"></a></div>
</body></html>`

func TestCoursesFromLinks(t *testing.T) {
	d := fakedriver.New()
	d.Pages[HomePage] = homeWithCourses
	s, _ := newScraper(d)

	courses, err := s.Courses(context.Background())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.Course{
		{Name: "ENG4U - English", ID: "1001", URL: HomeURL("1001"), Platform: model.Brightspace},
		{Name: "GLE2O - Learning Strategies", ID: "1002", URL: HomeURL("1002"), Platform: model.Brightspace},
	}, courses))
	require.Equal(t, []string{`button:has-text("Got It")`}, d.Clicks())
	require.Equal(t, []string{HomePage}, d.Navigations())
}

func TestCoursesFromEnrollments(t *testing.T) {
	d := fakedriver.New()
	api(d, map[string]any{
		enrollmentsPath: map[string]any{
			"Items": []any{
				map[string]any{"OrgUnit": map[string]any{"Id": 6606, "Name": "Toronto DSB", "Type": map[string]any{"Code": "Organization"}}},
				map[string]any{"OrgUnit": map[string]any{"Id": 2001, "Name": "PPL1O - Healthy Active Living", "Type": map[string]any{"Code": "Course Offering"}}},
				map[string]any{"OrgUnit": map[string]any{"Id": 0, "Name": "Broken"}},
				map[string]any{"OrgUnit": map[string]any{"Id": 2002, "Name": "CHC2D - History"}},
			},
		},
	})
	s, rec := newScraper(d)

	courses, err := s.Courses(context.Background())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.Course{
		{Name: "PPL1O - Healthy Active Living", ID: "2001", URL: HomeURL("2001"), Platform: model.Brightspace},
		{Name: "CHC2D - History", ID: "2002", URL: HomeURL("2002"), Platform: model.Brightspace},
	}, courses))
	require.Equal(t, []string{HomePage}, d.Navigations())

	n, ok := rec.Count("courses.links")
	require.True(t, ok)
	require.Zero(t, n)
}

func TestCoursesFromMyCoursesPage(t *testing.T) {
	d := fakedriver.New()
	d.Pages[MyCoursesURL] = `<html><body><table>
		<tr><td><a href="/d2l/home/3001">ENG2D - English</a></td></tr>
		<tr><td><a href="/d2l/home/3001">ENG2D - English</a></td></tr>
	</table></body></html>`
	s, rec := newScraper(d)

	courses, err := s.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "ENG2D - English", courses[0].Name)
	require.Equal(t, []string{HomePage, MyCoursesURL}, d.Navigations())
	require.True(t, rec.Has("warning", "courses.api"))
}

var eng = model.Course{Name: "ENG4U - English", ID: "1001", URL: HomeURL("1001"), Platform: model.Brightspace}

func TestAssignmentsFromAPI(t *testing.T) {
	d := fakedriver.New()
	api(d, map[string]any{
		"/d2l/api/le/1.0/1001/dropbox/folders/": []any{
			map[string]any{
				"Id":                 1,
				"Name":               "Unit 1 Essay",
				"DueDate":            "2025-10-20T03:59:00.000Z",
				"CustomInstructions": map[string]any{"Text": "Write   1000 words.\n\nCite sources."},
				"Assessment":         map[string]any{"ScoreDenominator": 25.5},
			},
			map[string]any{"Id": 2, "Name": "Reading Log", "DueDate": nil},
			map[string]any{"Id": 3, "Name": "  "},
		},
	})
	s, _ := newScraper(d)

	items, err := s.Assignments(context.Background(), eng)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.WorkItem{
		{
			Title:       "Unit 1 Essay",
			Course:      eng.Name,
			Platform:    model.Brightspace,
			Kind:        model.Assignment,
			Status:      model.NotSubmitted,
			Due:         date(time.October, 20, 3, 59),
			DueRaw:      "2025-10-20T03:59:00.000Z",
			Description: "Write 1000 words. Cite sources.",
			Points:      "25.5",
		},
		{
			Title:    "Reading Log",
			Course:   eng.Name,
			Platform: model.Brightspace,
			Kind:     model.Assignment,
			Status:   model.NotSubmitted,
		},
	}, items))
	require.Empty(t, d.Navigations())
}

func TestAssignmentsFromListPage(t *testing.T) {
	d := fakedriver.New()
	d.Pages[AssignmentsURL("1001")] = `<html><body><table>
		<thead><tr><th>Name</th><th>Due Date</th><th>Status</th></tr></thead>
		<tbody>
			<tr><td><a href="/d2l/lms/dropbox/user/folder_submit_files.d2l?db=1">Unit 1 Essay</a></td><td>Oct 22, 2025</td><td>Not Submitted</td></tr>
			<tr><td><a href="/d2l/lms/dropbox/user/folder_submit_files.d2l?db=2">Lab Report</a></td><td>Oct 1, 2025</td><td>Submitted</td></tr>
			<tr><td><a href="/d2l/lms/dropbox/user/folder_submit_files.d2l?db=3">Poster</a></td><td>Overdue</td></tr>
			<tr><td>ab</td></tr>
		</tbody>
	</table></body></html>`
	s, rec := newScraper(d)

	items, err := s.Assignments(context.Background(), eng)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.WorkItem{
		{
			Title:    "Unit 1 Essay",
			Course:   eng.Name,
			Platform: model.Brightspace,
			Kind:     model.Assignment,
			Status:   model.NotSubmitted,
			Due:      date(time.October, 22, 0, 0),
			DueRaw:   "Oct 22, 2025",
		},
		{
			Title:    "Poster",
			Course:   eng.Name,
			Platform: model.Brightspace,
			Kind:     model.Assignment,
			Status:   model.Missing,
		},
	}, items))
	n, _ := rec.Count("assignments.list-page")
	require.Equal(t, int64(2), n)
}

func TestQuizzesFromAPI(t *testing.T) {
	d := fakedriver.New()
	api(d, map[string]any{
		"/d2l/api/le/1.0/1001/quizzes/": map[string]any{
			"Objects": []any{
				map[string]any{"QuizId": 7, "Name": "Unit 2 Quiz", "EndDate": "2025-10-24T16:00:00Z"},
			},
		},
	})
	s, _ := newScraper(d)

	items, err := s.Quizzes(context.Background(), eng)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, model.Quiz, items[0].Kind)
	require.NotNil(t, items[0].Due)
	require.True(t, date(time.October, 24, 16, 0).Equal(*items[0].Due))
}

func TestQuizzesFromListPage(t *testing.T) {
	d := fakedriver.New()
	d.Pages[QuizzesURL("1001")] = `<html><body>
		<div class="d2l-datalist-item"><div>Vocabulary Check</div><div>Due Oct 30, 2025</div></div>
		<div class="d2l-datalist-item"><div>Practice Quiz</div><div>Completed</div></div>
	</body></html>`
	s, _ := newScraper(d)

	items, err := s.Quizzes(context.Background(), eng)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Vocabulary Check", items[0].Title)
	require.Equal(t, model.NotSubmitted, items[0].Status)
	require.NotNil(t, items[0].Due)
	require.True(t, date(time.October, 30, 0, 0).Equal(*items[0].Due))
}

func TestAnnouncementsFromAPI(t *testing.T) {
	var news []any
	for i := 0; i < 12; i++ {
		news = append(news, map[string]any{
			"Id":        i,
			"Title":     "Update",
			"Body":      map[string]any{"Text": strings.Repeat("x", 300), "Html": "<p>x</p>"},
			"StartDate": "2025-10-10T13:00:00.000Z",
		})
	}
	d := fakedriver.New()
	api(d, map[string]any{"/d2l/api/le/1.0/1001/news/": news})
	s, _ := newScraper(d)

	items, err := s.Announcements(context.Background(), eng)
	require.NoError(t, err)
	require.Len(t, items, newsLimit)
	for _, it := range items {
		require.Equal(t, model.Announcement, it.Kind)
		require.Equal(t, model.Assigned, it.Status)
		require.Len(t, it.Description, model.DescriptionLimit)
		require.NotNil(t, it.Posted)
		require.True(t, date(time.October, 10, 13, 0).Equal(*it.Posted))
	}
}

func TestAnnouncementsStrictFallback(t *testing.T) {
	d := fakedriver.New()
	d.Pages[NewsURL("1001")] = `<html><body>
		<div class="d2l-msg-container"><div>Show Search Options</div><div>Search In</div></div>
		<div class="d2l-msg-container"><div>Hi</div></div>
		<div class="d2l-msg-container"><div>News</div><div>Nothing here yet today</div></div>
		<div class="d2l-msg-container"><div>Note</div><div>Bring your textbook</div></div>
		<div class="d2l-msg-container"><div>Field Trip Friday</div><div>Posted Oct 10, 2025</div><div>Bring a lunch.</div></div>
	</body></html>`
	s, rec := newScraper(d)

	items, err := s.Announcements(context.Background(), eng)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.WorkItem{{
		Title:       "Field Trip Friday",
		Course:      eng.Name,
		Platform:    model.Brightspace,
		Kind:        model.Announcement,
		Status:      model.Assigned,
		Description: "Bring a lunch.",
		Posted:      date(time.October, 10, 0, 0),
		PostedRaw:   "Posted Oct 10, 2025",
	}}, items))
	require.Equal(t, []string{NewsURL("1001")}, d.Navigations())

	n, ok := rec.Count("announcements.news-page")
	require.True(t, ok)
	require.Zero(t, n)
}

func TestScrapeAllIsolatesCourses(t *testing.T) {
	d := fakedriver.New()
	api(d, map[string]any{
		"/d2l/api/le/1.0/1001/dropbox/folders/": []any{map[string]any{"Name": "Unit 1 Essay"}},
		"/d2l/api/le/1.0/1001/quizzes/":         map[string]any{"Objects": []any{map[string]any{"Name": "Unit 2 Quiz"}}},
		"/d2l/api/le/1.0/1001/news/":            []any{map[string]any{"Title": "Welcome back"}},
	})
	s, rec := newScraper(d)

	broken := model.Course{Name: "Homeroom", URL: "https://tdsb.elearningontario.ca/d2l/home"}
	items := s.ScrapeAll(context.Background(), []model.Course{broken, eng})

	var titles []string
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	require.Equal(t, []string{"Unit 1 Essay", "Unit 2 Quiz", "Welcome back"}, titles)

	reports := rec.Reports("broken")
	require.Len(t, reports, 1)
	require.Equal(t, "Homeroom", reports[0].Params[1])
}

const homeWithWidgets = `<html><body>
	<div class="d2l-widget">
		<h2>Work To Do</h2>
		<div>Overdue</div>
		<a href="/d2l/lms/dropbox/user/folder_submit_files.d2l?db=1">Unit 1 Essay</a>
		<div>Due Oct 20</div>
		<div>Upcoming</div>
		<a href="/d2l/lms/quizzing/user/quiz_summary.d2l?qi=7">Lab Report</a>
	</div>
	<div class="d2l-widget">
		<h2>Upcoming Events</h2>
		<div>Parent Teacher Night</div>
		<div>Oct 23, 2025</div>
	</div>
</body></html>`

func TestWidgets(t *testing.T) {
	d := fakedriver.New()
	d.Pages[HomePage] = homeWithWidgets
	s, _ := newScraper(d)

	items, err := s.Widgets(context.Background())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.WorkItem{
		{
			Title:    "Unit 1 Essay",
			Platform: model.Brightspace,
			Kind:     model.Assignment,
			Status:   model.NotSubmitted,
			Due:      date(time.October, 20, 0, 0),
			DueRaw:   "Due Oct 20",
		},
		{
			Title:    "Lab Report",
			Platform: model.Brightspace,
			Kind:     model.Assignment,
			Status:   model.NotSubmitted,
		},
		{
			Title:    "Parent Teacher Night",
			Platform: model.Brightspace,
			Kind:     model.Event,
			Status:   model.Upcoming,
			Due:      date(time.October, 23, 0, 0),
			DueRaw:   "Oct 23, 2025",
		},
	}, items))
}

func TestWidgetsEmptyWorkToDo(t *testing.T) {
	d := fakedriver.New()
	d.Pages[HomePage] = `<html><body>
		<section><div><h2>Work To Do</h2></div></section>
		<section>
			<h2>Upcoming Events</h2>
			<ul><li>Field Trip</li><li>Oct 20, 2025</li></ul>
		</section>
	</body></html>`
	s, _ := newScraper(d)

	items, err := s.Widgets(context.Background())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]model.WorkItem{
		{
			Title:    "Field Trip",
			Platform: model.Brightspace,
			Kind:     model.Event,
			Status:   model.Upcoming,
			Due:      date(time.October, 20, 0, 0),
			DueRaw:   "Oct 20, 2025",
		},
	}, items))
}

func TestWidgetLinesStopAtNextWidget(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<section><div><h2>Work To Do</h2></div></section>
		<section><h2>Upcoming Events</h2><ul><li>Field Trip</li><li>Oct 20, 2025</li></ul></section>
	</body></html>`))
	require.NoError(t, err)

	require.Empty(t, widgetLines(doc, WorkToDo))
	require.Equal(t, []string{"Field Trip", "Oct 20, 2025"}, widgetLines(doc, UpcomingEvents))
}

func TestWidgetsMissing(t *testing.T) {
	d := fakedriver.New()
	d.Pages[HomePage] = `<html><body><div>Welcome</div></body></html>`
	s, _ := newScraper(d)

	items, err := s.Widgets(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestFormatPoints(t *testing.T) {
	require.Equal(t, "10", formatPoints(10))
	require.Equal(t, "12.5", formatPoints(12.5))
	require.Equal(t, "100", formatPoints(100))
}
