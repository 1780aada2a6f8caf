package brightspace

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"classbridge/internal/model"
	"classbridge/lib/dateutil"
	"classbridge/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var courseIDRegexes = []*regexp.Regexp{
	regexp.MustCompile(`/d2l/home/(\d+)`),
	regexp.MustCompile(`/d2l/le/[a-z]+/(\d+)`),
	regexp.MustCompile(`[?&]ou=(\d+)`),
	regexp.MustCompile(`/(\d+)/?$`),
}

// CourseID is the org unit id in a course address, or "" when there is none.
func CourseID(href string) string {
	for _, r := range courseIDRegexes {
		if m := r.FindStringSubmatch(href); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

func isCourseHref(href string) bool {
	return strings.Contains(href, "/d2l/home/") || strings.Contains(href, "/d2l/le/")
}

// linkCourses reads one course per org unit out of course links, in the order
// they appear. The first line of a link's text names the course.
func linkCourses(sel *goquery.Selection) []model.Course {
	var courses []model.Course
	seen := map[string]bool{}
	sel.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		lines := htmlutil.SelectionLines(a)
		if href == "" || len(lines) == 0 || !isCourseHref(href) {
			return
		}
		url := htmlutil.Resolve(BaseURL, href)
		id := CourseID(href)
		key := id
		if key == "" {
			key = url
		} else {
			url = HomeURL(id)
		}
		if seen[key] {
			return
		}
		seen[key] = true
		courses = append(courses, model.Course{
			Name:     lines[0],
			ID:       id,
			URL:      url,
			Platform: model.Brightspace,
		})
	})
	return courses
}

var (
	assignmentHeaders = []string{"name", "assignment", "assignments", "due date", "status", "folder"}
	quizHeaders       = []string{"name", "quiz", "quizzes", "date", "status"}
)

func isOneOf(s string, set []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// parseRow reads a row of a list page: the first line is the title, the
// first line naming a month is the due date, and completion keywords
// anywhere drop the row.
func parseRow(lines []string, headers []string, kind model.ItemKind, course string, now time.Time) (model.WorkItem, bool) {
	text := strings.Join(lines, "\n")
	if len(lines) == 0 || utf8.RuneCountInString(text) < 3 {
		return model.WorkItem{}, false
	}
	title := lines[0]
	if isOneOf(title, headers) {
		return model.WorkItem{}, false
	}
	status, keep := model.ClassifyRow(text)
	if !keep {
		return model.WorkItem{}, false
	}

	item := model.WorkItem{
		Title:    title,
		Course:   course,
		Platform: model.Brightspace,
		Kind:     kind,
		Status:   status,
	}
	for _, line := range lines[1:] {
		if dateutil.HasMonth(line) {
			item.SetDue(line, now)
			break
		}
	}
	return item, true
}

// rows is every row of a list page, rows nested inside another row are
// skipped so a table inside a datalist item is read once.
func rows(doc *goquery.Document, css string) [][]string {
	var out [][]string
	all := doc.Find(css)
	all.Each(func(_ int, row *goquery.Selection) {
		if row.ParentsFiltered(css).Length() > 0 {
			return
		}
		out = append(out, htmlutil.SelectionLines(row))
	})
	return out
}

// uiLabels are controls of the news page that look like announcement titles.
var uiLabels = []string{
	"show search options", "hide search options", "search in",
	"headlinecontent", "posted in", "search", "filter",
	"sort", "show", "hide", "actions", "select all",
	"news", "announcements", "no items to display",
}

const (
	minAnnouncementText  = 8
	minAnnouncementTitle = 5
)

// parseAnnouncement reads an announcement block of the news page. Blocks too
// short to be content and known control labels are rejected.
func parseAnnouncement(lines []string, course string, now time.Time) (model.WorkItem, bool) {
	text := strings.Join(lines, "\n")
	if len(lines) == 0 || utf8.RuneCountInString(text) < minAnnouncementText {
		return model.WorkItem{}, false
	}
	title := lines[0]
	if isOneOf(title, uiLabels) || utf8.RuneCountInString(title) < minAnnouncementTitle {
		return model.WorkItem{}, false
	}

	item := model.WorkItem{
		Title:    title,
		Course:   course,
		Platform: model.Brightspace,
		Kind:     model.Announcement,
		Status:   model.Assigned,
	}
	var body []string
	for _, line := range lines[1:] {
		if item.PostedRaw == "" && dateutil.HasMonth(line) {
			item.SetPosted(line, now)
			continue
		}
		body = append(body, line)
	}
	item.SetDescription(strings.Join(body, " "))
	return item, true
}

var widgetHeadings = []string{WorkToDo, UpcomingEvents}

// widgetLines finds the home page widget headed by title and returns the
// lines under the heading, up to the heading of the next widget.
func widgetLines(doc *goquery.Document, title string) []string {
	heading := doc.Find("h1, h2, h3, h4, h5, h6, d2l-heading, span, div, a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		lines := htmlutil.SelectionLines(s)
		return len(lines) == 1 && strings.EqualFold(lines[0], title)
	}).First()
	if heading.Length() == 0 {
		return nil
	}

	for p := heading.Parent(); p.Length() > 0; p = p.Parent() {
		lines := htmlutil.SelectionLines(p)
		if len(lines) <= 1 {
			continue
		}
		for i, line := range lines {
			if strings.EqualFold(line, title) {
				return untilHeading(lines[i+1:])
			}
		}
		return untilHeading(lines)
	}
	return nil
}

func untilHeading(lines []string) []string {
	for i, line := range lines {
		for _, h := range widgetHeadings {
			if strings.EqualFold(line, h) {
				return lines[:i]
			}
		}
	}
	return lines
}

// widgetItems turns widget lines into items. A line that is only a date is
// the due date of the item above it.
func widgetItems(lines, labels []string, kind model.ItemKind, status model.Status, now time.Time) []model.WorkItem {
	var items []model.WorkItem
	for _, line := range lines {
		if isOneOf(line, labels) {
			continue
		}
		if n := len(items); n > 0 && items[n-1].DueRaw == "" && isDateLine(line, now) {
			items[n-1].SetDue(line, now)
			continue
		}
		items = append(items, model.WorkItem{
			Title:    line,
			Platform: model.Brightspace,
			Kind:     kind,
			Status:   status,
		})
	}
	return items
}

var dueLineRegex = regexp.MustCompile(`(?i)^(due|starts?|ends?|available)\b`)

func isDateLine(line string, now time.Time) bool {
	if dueLineRegex.MatchString(line) {
		return true
	}
	if !dateutil.HasMonth(line) || utf8.RuneCountInString(line) > 40 {
		return false
	}
	_, ok := dateutil.Parse(line, now)
	return ok
}
