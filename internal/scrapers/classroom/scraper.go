// Package classroom reads courses and outstanding work out of a Google
// Classroom session that is already signed in.
package classroom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classbridge/internal/components/assert"
	"classbridge/internal/components/chrono"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/internal/model"
	"classbridge/lib/htmlutil"
	"classbridge/lib/scraper"
	"classbridge/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	BaseURL = "https://classroom.google.com"
	HomeURL = BaseURL + "/h"
	TodoURL = BaseURL + "/u/0/a/not-turned-in/all"

	// UnknownClass is the course of a to-do item no known course matches.
	UnknownClass = "Unknown Class"

	nothingToDo = "nothing on your to-do list"
	// minimum Jaro-Winkler similarity for a to-do line to name a course
	courseSimilarity = 0.9
)

const (
	report_scraper_courses     = "scraper.courses"
	report_scraper_course_work = "scraper.course-work"
	report_scraper_todo        = "scraper.todo"
)

var (
	courseLinks  = driver.Candidates{driver.CSS(`a[href*="/c/"]`)}
	classworkTab = driver.Candidates{
		driver.HasText("a", "Classwork"),
		driver.CSS(`a[aria-label*="Classwork"]`),
		driver.CSS(`a[href*="/cw/"]`),
		driver.CSS(`a[data-tab-id="5"]`),
	}
)

// Timing holds the fixed waits the scraper gives the page to render.
type Timing struct {
	LinkWait    time.Duration
	Render      time.Duration
	Settle      time.Duration
	TodoSettle  time.Duration
	ScrollPause time.Duration
	MaxScrolls  int
}

func DefaultTiming() Timing {
	return Timing{
		LinkWait:    30 * time.Second,
		Render:      5 * time.Second,
		Settle:      2 * time.Second,
		TodoSettle:  3 * time.Second,
		ScrollPause: time.Second,
		MaxScrolls:  10,
	}
}

type Scraper struct {
	d      driver.Driver
	clock  chrono.API
	tel    telemetry.API
	timing Timing
}

func NewScraper(d driver.Driver, clock chrono.API, tel telemetry.API, timing Timing) Scraper {
	assert.NotNil(d, "driver")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")
	return Scraper{
		d:      d,
		clock:  clock,
		tel:    telemetry.NewScopedAPI("classroom", tel),
		timing: timing,
	}
}

func (s Scraper) document(ctx context.Context) (string, *goquery.Document, error) {
	content, err := s.d.Content(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := htmlutil.Parse(content)
	if err != nil {
		return "", nil, fmt.Errorf("parse page: %w", err)
	}
	return content, doc, nil
}

// Courses lists every course on the classes page.
func (s Scraper) Courses(ctx context.Context) ([]model.Course, error) {
	if err := s.d.Navigate(ctx, HomeURL, driver.ReadyDOM); err != nil {
		return nil, fmt.Errorf("open classes page: %w", err)
	}
	if !driver.WaitFor(ctx, s.timing.LinkWait, courseLinks.Present(s.d)) {
		s.tel.ReportWarning(report_scraper_courses, "no course links rendered", s.d.URL(ctx))
	}
	driver.Sleep(ctx, s.timing.Render)
	s.d.Screenshot(ctx, "classroom_courses")

	content, doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}

	courses, used := scraper.FirstNonEmpty(ctx, s.tel, "courses",
		scraper.Of("links", func(ctx context.Context) ([]model.Course, error) {
			return ConsolidateLinks(anchorLinks(doc.Find(`a[href*="/c/"]`))), nil
		}),
		scraper.Of("attributes", func(ctx context.Context) ([]model.Course, error) {
			return ConsolidateLinks(anchorLinks(doc.Find(`a[data-courseid], a[href*="classroom.google.com/c/"]`))), nil
		}),
		scraper.Of("html", func(ctx context.Context) ([]model.Course, error) {
			return ConsolidateLinks(rawLinks(content)), nil
		}),
	)
	if len(courses) == 0 {
		s.tel.ReportWarning(report_scraper_courses, "no courses found", s.d.URL(ctx))
	}
	s.tel.ReportDebug("courses", len(courses), used)
	return courses, nil
}

func (s Scraper) openClasswork(ctx context.Context, course model.Course) error {
	if err := s.d.Navigate(ctx, course.URL, driver.ReadyLoad); err != nil {
		return fmt.Errorf("open course: %w", err)
	}
	driver.Sleep(ctx, s.timing.Settle)

	if tab, sel, ok := classworkTab.First(ctx, s.d); ok {
		err := tab.Click(ctx)
		if err == nil {
			driver.Sleep(ctx, s.timing.Settle)
			return nil
		}
		s.tel.ReportWarning(report_scraper_course_work, fmt.Errorf("click %s: %w", sel, err), course.Name)
	}

	id := course.ID
	if id == "" {
		id = CourseID(course.URL)
	}
	fallback := fmt.Sprintf("%s/c/%s/a/not-turned-in/all", BaseURL, id)
	if err := s.d.Navigate(ctx, fallback, driver.ReadyLoad); err != nil {
		return fmt.Errorf("open classwork: %w", err)
	}
	driver.Sleep(ctx, s.timing.Settle)
	return nil
}

// CourseWork lists the unfinished items on a course's classwork page.
func (s Scraper) CourseWork(ctx context.Context, course model.Course) ([]model.WorkItem, error) {
	if err := s.openClasswork(ctx, course); err != nil {
		return nil, err
	}
	driver.ScrollToLoad(ctx, s.d, s.timing.MaxScrolls, s.timing.ScrollPause)
	s.d.Screenshot(ctx, "classroom_classwork_"+course.Name)

	content, doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	items, _ := scraper.FirstNonEmpty(ctx, s.tel, "course-work",
		scraper.Of("stream-items", func(ctx context.Context) ([]model.WorkItem, error) {
			containers := doc.Find(`div[data-stream-item-id][data-stream-item-type]`)
			return scraper.Each(eachSelection(containers), func(sel *goquery.Selection) (model.WorkItem, bool) {
				return parseStreamItem(sel, course.Name, model.Assigned, now)
			}), nil
		}),
		scraper.Of("detail-links", func(ctx context.Context) ([]model.WorkItem, error) {
			return rawWorkItems(content, course.Name), nil
		}),
	)
	return items, nil
}

// ScrapeAll collects course work for every course. A course that fails is
// reported and skipped.
func (s Scraper) ScrapeAll(ctx context.Context, courses []model.Course) []model.WorkItem {
	var all []model.WorkItem
	for _, c := range courses {
		if ctx.Err() != nil {
			break
		}
		items, err := s.safeCourseWork(ctx, c)
		if err != nil {
			s.tel.ReportBroken(report_scraper_course_work, err, c.Name)
			continue
		}
		s.tel.ReportDebug("course work", c.Name, len(items))
		all = append(all, items...)
	}
	return all
}

func (s Scraper) safeCourseWork(ctx context.Context, c model.Course) (items []model.WorkItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.CourseWork(ctx, c)
}

// Todo reads the to-do page shared by every course. Items are attributed to
// a course by subject code, then by name similarity, else UnknownClass.
func (s Scraper) Todo(ctx context.Context, courses []model.Course, codes []string) ([]model.WorkItem, error) {
	if err := s.d.Navigate(ctx, TodoURL, driver.ReadyLoad); err != nil {
		return nil, fmt.Errorf("open to-do page: %w", err)
	}
	driver.Sleep(ctx, s.timing.TodoSettle)
	driver.ScrollToLoad(ctx, s.d, s.timing.MaxScrolls, s.timing.ScrollPause)
	s.d.Screenshot(ctx, "classroom_todo")

	_, doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	body := strings.ToLower(htmlutil.CleanText(doc.Find("body").Text()))
	if strings.Contains(body, nothingToDo) {
		s.tel.ReportDebug("to-do list is empty")
		return nil, nil
	}

	now := s.clock.Now()
	items, _ := scraper.FirstNonEmpty(ctx, s.tel, "todo",
		scraper.Of("stream-items", func(ctx context.Context) ([]model.WorkItem, error) {
			// nested children carry the id attribute too
			containers := doc.Find(`div[data-stream-item-id]`).Not(`div[data-stream-item-id] div[data-stream-item-id]`)
			return scraper.Each(eachSelection(containers), func(sel *goquery.Selection) (model.WorkItem, bool) {
				item, ok := parseStreamItem(sel, "", model.NotSubmitted, now)
				if ok {
					item.Course = resolveCourse(htmlutil.SelectionLines(sel), courses, codes)
				}
				return item, ok
			}), nil
		}),
		scraper.Of("detail-links", func(ctx context.Context) ([]model.WorkItem, error) {
			return scraper.Each(eachSelection(doc.Find(`a[href*="/details"]`)), func(a *goquery.Selection) (model.WorkItem, bool) {
				label, _ := a.Attr("aria-label")
				title, kind, ok := ParseLabel(label)
				if !ok {
					return model.WorkItem{}, false
				}
				href, _ := a.Attr("href")
				return model.WorkItem{
					Title:    title,
					Course:   UnknownClass,
					Platform: model.GoogleClassroom,
					Kind:     kind,
					Status:   model.NotSubmitted,
					URL:      htmlutil.Resolve(BaseURL, href),
				}, true
			}), nil
		}),
	)
	if len(items) == 0 {
		s.tel.ReportWarning(report_scraper_todo, "to-do page had no readable items", s.d.URL(ctx))
	}
	return items, nil
}

func eachSelection(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

// resolveCourse picks the course a to-do item belongs to from the lines of
// text around it.
func resolveCourse(lines []string, courses []model.Course, codes []string) string {
	text := strings.Join(lines, "\n")
	if code, ok := textutil.MatchCode(text, codes); ok {
		for _, c := range courses {
			if _, ok := textutil.MatchCode(c.Name, []string{code}); ok {
				return c.Name
			}
		}
		return code
	}

	names := make([]string, 0, len(courses))
	for _, c := range courses {
		names = append(names, c.Name)
	}
	for _, line := range lines {
		if name, ok := textutil.ClosestName(line, names, courseSimilarity); ok {
			return name
		}
	}
	return UnknownClass
}
