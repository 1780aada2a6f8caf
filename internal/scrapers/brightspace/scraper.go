// Package brightspace reads courses, assignments, quizzes, announcements and
// the home page widgets out of a Brightspace (D2L) session that is already
// signed in.
//
// Every kind of data is read api first, through the json endpoints the
// portal's own pages use, then from the portal's list pages.
package brightspace

import (
	"context"
	"fmt"
	"time"

	"classbridge/internal/components/assert"
	"classbridge/internal/components/chrono"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/internal/model"
	"classbridge/lib/htmlutil"
	"classbridge/lib/scraper"

	"github.com/PuerkitoBio/goquery"
)

const (
	BaseURL      = "https://tdsb.elearningontario.ca"
	HomePage     = BaseURL + "/d2l/home"
	MyCoursesURL = BaseURL + "/d2l/le/manageCourses/search/6606"

	WorkToDo       = "Work To Do"
	UpcomingEvents = "Upcoming Events"
)

const (
	report_scraper_courses       = "scraper.courses"
	report_scraper_assignments   = "scraper.assignments"
	report_scraper_quizzes       = "scraper.quizzes"
	report_scraper_announcements = "scraper.announcements"
	report_scraper_course        = "scraper.course"
	report_scraper_widgets       = "scraper.widgets"
	report_scraper_fetch         = "scraper.fetch"
)

const (
	courseLinkCSS    = `a[href*="/d2l/home/"], a[href*="/d2l/le/content/"], d2l-card a, .d2l-card a, .course-card a, a.d2l-link[href*="/d2l/"]`
	assignmentRowCSS = `table tr, .d2l-datalist-item, div[class*="assignment"], a[href*="dropbox"]`
	quizRowCSS       = `table tr, .d2l-datalist-item`
	newsItemCSS      = `.d2l-datalist-item`
	newsFallbackCSS  = `div[class*="news-item"], div[class*="d2l-msg-container"]`
)

var (
	retroDialog = driver.Candidates{
		driver.HasText("button", "Got It"),
		driver.HasText("a", "Got It"),
	}
	workToDoLabels = []string{"work to do", "upcoming", "upcoming events", "overdue", "view all work", "no items"}
	eventLabels    = []string{"upcoming events", "calendar", "view all events", "no events"}
)

func HomeURL(id string) string {
	return fmt.Sprintf("%s/d2l/home/%s", BaseURL, id)
}

func AssignmentsURL(id string) string {
	return fmt.Sprintf("%s/d2l/lms/dropbox/user/folders_list.d2l?ou=%s", BaseURL, id)
}

func QuizzesURL(id string) string {
	return fmt.Sprintf("%s/d2l/lms/quizzing/user/quizzes_list.d2l?ou=%s", BaseURL, id)
}

func NewsURL(id string) string {
	return fmt.Sprintf("%s/d2l/lms/news/main.d2l?ou=%s", BaseURL, id)
}

type Timing struct {
	Settle      time.Duration
	ListSettle  time.Duration
	ScrollPause time.Duration
	MaxScrolls  int
}

func DefaultTiming() Timing {
	return Timing{
		Settle:      2 * time.Second,
		ListSettle:  1500 * time.Millisecond,
		ScrollPause: 1500 * time.Millisecond,
		MaxScrolls:  10,
	}
}

type Scraper struct {
	d      driver.Driver
	fetch  Fetcher
	clock  chrono.API
	tel    telemetry.API
	timing Timing
}

func NewScraper(d driver.Driver, fetch Fetcher, clock chrono.API, tel telemetry.API, timing Timing) Scraper {
	assert.NotNil(d, "driver")
	assert.NotNil(fetch, "fetcher")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")
	return Scraper{
		d:      d,
		fetch:  fetch,
		clock:  clock,
		tel:    telemetry.NewScopedAPI("brightspace", tel),
		timing: timing,
	}
}

func (s Scraper) open(ctx context.Context, url string, settle time.Duration) (*goquery.Document, error) {
	if err := s.d.Navigate(ctx, url, driver.ReadyLoad); err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	driver.Sleep(ctx, settle)
	return s.document(ctx)
}

func (s Scraper) document(ctx context.Context) (*goquery.Document, error) {
	content, err := s.d.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := htmlutil.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func (s Scraper) dismissRetroDialog(ctx context.Context) {
	el, _, ok := retroDialog.First(ctx, s.d)
	if !ok {
		return
	}
	if err := el.Click(ctx); err != nil {
		s.tel.ReportWarning(report_scraper_courses, fmt.Errorf("dismiss dialog: %w", err))
		return
	}
	driver.Sleep(ctx, s.timing.Settle)
}

// Courses lists every course the student is enrolled in.
func (s Scraper) Courses(ctx context.Context) ([]model.Course, error) {
	if err := s.d.Navigate(ctx, HomePage, driver.ReadyLoad); err != nil {
		return nil, fmt.Errorf("open home page: %w", err)
	}
	driver.Sleep(ctx, s.timing.Settle)
	s.dismissRetroDialog(ctx)
	driver.ScrollToLoad(ctx, s.d, s.timing.MaxScrolls, s.timing.ScrollPause)
	s.d.Screenshot(ctx, "brightspace_home")

	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}

	courses, used := scraper.FirstNonEmpty(ctx, s.tel, "courses",
		scraper.Of("links", func(ctx context.Context) ([]model.Course, error) {
			return linkCourses(doc.Find(courseLinkCSS)), nil
		}),
		scraper.Of("api", func(ctx context.Context) ([]model.Course, error) {
			var res enrollmentsResponse
			if err := fetchInto(ctx, s.fetch, enrollmentsPath, &res); err != nil {
				return nil, err
			}
			return coursesFromEnrollments(res), nil
		}),
		scraper.Of("my-courses", func(ctx context.Context) ([]model.Course, error) {
			doc, err := s.open(ctx, MyCoursesURL, s.timing.Settle)
			if err != nil {
				return nil, err
			}
			return linkCourses(doc.Find(`a[href*="/d2l/home/"]`)), nil
		}),
	)
	if len(courses) == 0 {
		s.tel.ReportWarning(report_scraper_courses, "no courses found", s.d.URL(ctx))
	}
	s.tel.ReportDebug("courses", len(courses), used)
	return courses, nil
}

func courseID(course model.Course) string {
	if course.ID != "" {
		return course.ID
	}
	return CourseID(course.URL)
}

// Assignments lists the open assignment folders of a course.
func (s Scraper) Assignments(ctx context.Context, course model.Course) ([]model.WorkItem, error) {
	id := courseID(course)
	if id == "" {
		return nil, fmt.Errorf("no course id in %q", course.URL)
	}
	now := s.clock.Now()

	items, _ := scraper.FirstNonEmpty(ctx, s.tel, "assignments",
		scraper.Of("api", func(ctx context.Context) ([]model.WorkItem, error) {
			var folders []dropboxFolder
			if err := fetchInto(ctx, s.fetch, fmt.Sprintf(dropboxPathFmt, id), &folders); err != nil {
				return nil, err
			}
			return scraper.Each(folders, func(f dropboxFolder) (model.WorkItem, bool) {
				return workFromFolder(f, course.Name, now)
			}), nil
		}),
		scraper.Of("list-page", func(ctx context.Context) ([]model.WorkItem, error) {
			doc, err := s.open(ctx, AssignmentsURL(id), s.timing.Settle)
			if err != nil {
				return nil, err
			}
			return scraper.Each(rows(doc, assignmentRowCSS), func(lines []string) (model.WorkItem, bool) {
				return parseRow(lines, assignmentHeaders, model.Assignment, course.Name, now)
			}), nil
		}),
	)
	return items, nil
}

// Quizzes lists the quizzes of a course that are not completed.
func (s Scraper) Quizzes(ctx context.Context, course model.Course) ([]model.WorkItem, error) {
	id := courseID(course)
	if id == "" {
		return nil, fmt.Errorf("no course id in %q", course.URL)
	}
	now := s.clock.Now()

	items, _ := scraper.FirstNonEmpty(ctx, s.tel, "quizzes",
		scraper.Of("api", func(ctx context.Context) ([]model.WorkItem, error) {
			var res quizzesResponse
			if err := fetchInto(ctx, s.fetch, fmt.Sprintf(quizzesPathFmt, id), &res); err != nil {
				return nil, err
			}
			return scraper.Each(res.Objects, func(q quiz) (model.WorkItem, bool) {
				return workFromQuiz(q, course.Name, now)
			}), nil
		}),
		scraper.Of("list-page", func(ctx context.Context) ([]model.WorkItem, error) {
			doc, err := s.open(ctx, QuizzesURL(id), s.timing.ListSettle)
			if err != nil {
				return nil, err
			}
			return scraper.Each(rows(doc, quizRowCSS), func(lines []string) (model.WorkItem, bool) {
				return parseRow(lines, quizHeaders, model.Quiz, course.Name, now)
			}), nil
		}),
	)
	return items, nil
}

// Announcements lists the latest announcements of a course.
func (s Scraper) Announcements(ctx context.Context, course model.Course) ([]model.WorkItem, error) {
	id := courseID(course)
	if id == "" {
		return nil, fmt.Errorf("no course id in %q", course.URL)
	}
	now := s.clock.Now()

	// the news page is opened at most once and shared by both page strategies
	var newsPage *goquery.Document
	news := func(ctx context.Context) (*goquery.Document, error) {
		if newsPage != nil {
			return newsPage, nil
		}
		doc, err := s.open(ctx, NewsURL(id), s.timing.ListSettle)
		if err != nil {
			return nil, err
		}
		newsPage = doc
		return doc, nil
	}
	blocks := func(ctx context.Context, css string) ([]model.WorkItem, error) {
		doc, err := news(ctx)
		if err != nil {
			return nil, err
		}
		found := rows(doc, css)
		if len(found) > newsLimit {
			found = found[:newsLimit]
		}
		return scraper.Each(found, func(lines []string) (model.WorkItem, bool) {
			return parseAnnouncement(lines, course.Name, now)
		}), nil
	}

	items, _ := scraper.FirstNonEmpty(ctx, s.tel, "announcements",
		scraper.Of("api", func(ctx context.Context) ([]model.WorkItem, error) {
			var res []newsItem
			if err := fetchInto(ctx, s.fetch, fmt.Sprintf(newsPathFmt, id), &res); err != nil {
				return nil, err
			}
			if len(res) > newsLimit {
				res = res[:newsLimit]
			}
			return scraper.Each(res, func(n newsItem) (model.WorkItem, bool) {
				return workFromNews(n, course.Name, now)
			}), nil
		}),
		scraper.Of("news-page", func(ctx context.Context) ([]model.WorkItem, error) {
			return blocks(ctx, newsItemCSS)
		}),
		scraper.Of("news-containers", func(ctx context.Context) ([]model.WorkItem, error) {
			return blocks(ctx, newsFallbackCSS)
		}),
	)
	return items, nil
}

// CourseItems is every assignment, quiz and announcement of one course.
func (s Scraper) CourseItems(ctx context.Context, course model.Course) ([]model.WorkItem, error) {
	var all []model.WorkItem
	for _, read := range []struct {
		id  string
		run func(context.Context, model.Course) ([]model.WorkItem, error)
	}{
		{report_scraper_assignments, s.Assignments},
		{report_scraper_quizzes, s.Quizzes},
		{report_scraper_announcements, s.Announcements},
	} {
		items, err := read.run(ctx, course)
		if err != nil {
			return all, fmt.Errorf("%s: %w", read.id, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

// ScrapeAll collects the items of every course. A course that fails is
// reported and skipped.
func (s Scraper) ScrapeAll(ctx context.Context, courses []model.Course) []model.WorkItem {
	var all []model.WorkItem
	for _, c := range courses {
		if ctx.Err() != nil {
			break
		}
		items, err := s.safeCourseItems(ctx, c)
		if err != nil {
			s.tel.ReportBroken(report_scraper_course, err, c.Name)
			continue
		}
		s.tel.ReportDebug("course items", c.Name, len(items))
		all = append(all, items...)
	}
	return all
}

func (s Scraper) safeCourseItems(ctx context.Context, c model.Course) (items []model.WorkItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.CourseItems(ctx, c)
}

// Widgets reads the "Work To Do" and "Upcoming Events" widgets of the home
// page. Their items belong to no particular course.
func (s Scraper) Widgets(ctx context.Context) ([]model.WorkItem, error) {
	doc, err := s.open(ctx, HomePage, s.timing.Settle)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	work := widgetItems(widgetLines(doc, WorkToDo), workToDoLabels, model.Assignment, model.NotSubmitted, now)
	s.tel.ReportCount("widgets.work-to-do", int64(len(work)))
	events := widgetItems(widgetLines(doc, UpcomingEvents), eventLabels, model.Event, model.Upcoming, now)
	s.tel.ReportCount("widgets.upcoming-events", int64(len(events)))

	if len(work)+len(events) == 0 {
		s.tel.ReportDebug(report_scraper_widgets, "no widget items")
	}
	return append(work, events...), nil
}
