package classroom

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"classbridge/internal/model"
	"classbridge/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Link is one raw anchor pointing at a course.
type Link struct {
	ID   string
	Href string
	Text string
}

var (
	courseIDRegex  = regexp.MustCompile(`/c/([^/?#"]+)`)
	sectionPath    = regexp.MustCompile(`/sp/.+$`)
	courseRawRegex = regexp.MustCompile(`href="(/c/[^"]+)"[^>]*>([^<]+)`)
	workRawRegex   = regexp.MustCompile(`href="(/c/[^/"]+/(?:a|sa)/[^"]+)"[^>]*>([^<]+)`)
	labelRegex     = regexp.MustCompile(`^(Assignment|Quiz|Material|Question):\s*"(.+)"`)
)

// CourseID is the id segment of a course address.
func CourseID(href string) string {
	m := courseIDRegex.FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ConsolidateLinks collapses links into one course per id, in the order ids
// first appear. The longest text of an id names the course: short duplicates
// are usually card images or icon-only sidebar entries.
func ConsolidateLinks(links []Link) []model.Course {
	var order []string
	best := map[string]Link{}
	for _, l := range links {
		text := strings.TrimSpace(l.Text)
		if l.ID == "" || text == "" {
			continue
		}
		l.Text = text
		cur, seen := best[l.ID]
		if !seen {
			order = append(order, l.ID)
			best[l.ID] = l
			continue
		}
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(cur.Text) {
			best[l.ID] = l
		}
	}

	courses := make([]model.Course, 0, len(order))
	for _, id := range order {
		l := best[id]
		name, section := nameAndSection(l.Text, id)
		courses = append(courses, model.Course{
			Name:     name,
			ID:       id,
			URL:      sectionPath.ReplaceAllString(htmlutil.Resolve(BaseURL, l.Href), ""),
			Platform: model.GoogleClassroom,
			Section:  section,
		})
	}
	return courses
}

// nameAndSection reads a card's text. Sidebar entries start with a one or two
// letter avatar glyph, in which case the name is on the second line.
func nameAndSection(text, fallback string) (string, string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = htmlutil.CleanText(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) >= 2 && utf8.RuneCountInString(lines[0]) <= 2 {
		lines = lines[1:]
	}
	switch len(lines) {
	case 0:
		return fallback, ""
	case 1:
		return lines[0], ""
	}
	return lines[0], lines[1]
}

func anchorLinks(sel *goquery.Selection) []Link {
	var links []Link
	sel.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := CourseID(href)
		if id == "" {
			id, _ = a.Attr("data-courseid")
		}
		links = append(links, Link{
			ID:   id,
			Href: href,
			Text: strings.Join(htmlutil.SelectionLines(a), "\n"),
		})
	})
	return links
}

func rawLinks(content string) []Link {
	var links []Link
	for _, m := range courseRawRegex.FindAllStringSubmatch(content, -1) {
		links = append(links, Link{
			ID:   CourseID(m[1]),
			Href: m[1],
			Text: htmlutil.CleanText(html.UnescapeString(m[2])),
		})
	}
	return links
}

// ParseLabel reads the aria label Classroom puts on item links, like
// `Assignment: "Planning Log"`.
func ParseLabel(label string) (string, model.ItemKind, bool) {
	m := labelRegex.FindStringSubmatch(strings.TrimSpace(label))
	if len(m) < 3 {
		return "", model.Assignment, false
	}
	switch m[1] {
	case "Quiz", "Question":
		return m[2], model.Quiz, true
	case "Material":
		return m[2], model.Material, true
	}
	return m[2], model.Assignment, true
}

// parseStreamItem reads one stream item container. Items without a title and
// finished items are rejected.
func parseStreamItem(sel *goquery.Selection, course string, fallback model.Status, now time.Time) (model.WorkItem, bool) {
	item := model.WorkItem{
		Course:   course,
		Platform: model.GoogleClassroom,
		Kind:     model.Assignment,
	}

	link := sel.Find("a[aria-label]").First()
	if label, ok := link.Attr("aria-label"); ok {
		if title, kind, ok := ParseLabel(label); ok {
			item.Title = title
			item.Kind = kind
		}
	}
	if item.Title == "" {
		// "Someone posted a new assignment: Planning Log"
		desc := strings.Join(htmlutil.SelectionLines(sel.Find(".JvYRu, .qoXqmb").First()), " ")
		if i := strings.LastIndex(desc, ":"); i >= 0 {
			desc = desc[i+1:]
		}
		item.Title = strings.TrimSpace(desc)
	}
	if item.Title == "" {
		return model.WorkItem{}, false
	}

	status, keep := model.ClassifyStatus(strings.Join(htmlutil.SelectionLines(sel), "\n"), fallback)
	if !keep {
		return model.WorkItem{}, false
	}
	item.Status = status

	if href, ok := link.Attr("href"); ok && href != "" {
		item.URL = htmlutil.Resolve(BaseURL, href)
	}
	if due := strings.Join(htmlutil.SelectionLines(sel.Find(".MXd8B").First()), " "); due != "" {
		item.SetDue(due, now)
	}
	return item, true
}

func rawWorkItems(content, course string) []model.WorkItem {
	var items []model.WorkItem
	for _, m := range workRawRegex.FindAllStringSubmatch(content, -1) {
		title := htmlutil.CleanText(html.UnescapeString(m[2]))
		if utf8.RuneCountInString(title) <= 2 {
			continue
		}
		items = append(items, model.WorkItem{
			Title:    title,
			Course:   course,
			Platform: model.GoogleClassroom,
			Kind:     model.Assignment,
			Status:   model.Assigned,
			URL:      htmlutil.Resolve(BaseURL, m[1]),
		})
	}
	return items
}
