package brightspace

import (
	"strconv"
	"strings"
	"time"

	"classbridge/internal/model"
)

// Valence endpoints the portal's own pages call.
const (
	enrollmentsPath = "/d2l/api/lp/1.0/enrollments/myenrollments/?sortBy=-PinDate"
	dropboxPathFmt  = "/d2l/api/le/1.0/%s/dropbox/folders/"
	quizzesPathFmt  = "/d2l/api/le/1.0/%s/quizzes/"
	newsPathFmt     = "/d2l/api/le/1.0/%s/news/"

	// only the latest announcements of a course are kept
	newsLimit = 10
)

const courseOffering = "Course Offering"

type orgUnit struct {
	Id   int64
	Name string
	Type struct {
		Code string
	}
}

type enrollmentsResponse struct {
	Items []struct {
		OrgUnit orgUnit
	}
}

type richText struct {
	Text string
	Html string
}

type dropboxFolder struct {
	Id                 int64
	Name               string
	DueDate            *string
	CustomInstructions *richText
	Assessment         *struct {
		ScoreDenominator *float64
	}
}

type quiz struct {
	QuizId      int64
	Name        string
	DueDate     *string
	EndDate     *string
	Description *struct {
		Text richText
	}
}

type quizzesResponse struct {
	Objects []quiz
}

type newsItem struct {
	Id        int64
	Title     string
	Body      richText
	StartDate *string
	IsHidden  bool
}

func coursesFromEnrollments(res enrollmentsResponse) []model.Course {
	var courses []model.Course
	for _, item := range res.Items {
		ou := item.OrgUnit
		name := strings.TrimSpace(ou.Name)
		if name == "" || ou.Id == 0 {
			continue
		}
		// enrollments also list the school, department and semester
		if ou.Type.Code != "" && ou.Type.Code != courseOffering {
			continue
		}
		id := strconv.FormatInt(ou.Id, 10)
		courses = append(courses, model.Course{
			Name:     name,
			ID:       id,
			URL:      HomeURL(id),
			Platform: model.Brightspace,
		})
	}
	return courses
}

// setAPITime reads the ISO timestamps the api returns, falling back to the
// free text parser for anything else.
func setAPITime(raw *string, loc *time.Location, fallback func(string), assign func(time.Time)) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		fallback(*raw)
		return
	}
	assign(t.In(loc))
}

func formatPoints(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func workFromFolder(f dropboxFolder, course string, now time.Time) (model.WorkItem, bool) {
	title := strings.TrimSpace(f.Name)
	if title == "" {
		return model.WorkItem{}, false
	}
	item := model.WorkItem{
		Title:    title,
		Course:   course,
		Platform: model.Brightspace,
		Kind:     model.Assignment,
		Status:   model.NotSubmitted,
	}
	setAPITime(f.DueDate, now.Location(),
		func(raw string) { item.SetDue(raw, now) },
		func(t time.Time) {
			item.Due = &t
			item.DueRaw = *f.DueDate
		},
	)
	if f.CustomInstructions != nil {
		item.SetDescription(f.CustomInstructions.Text)
	}
	if f.Assessment != nil && f.Assessment.ScoreDenominator != nil {
		item.Points = formatPoints(*f.Assessment.ScoreDenominator)
	}
	return item, true
}

func workFromQuiz(q quiz, course string, now time.Time) (model.WorkItem, bool) {
	title := strings.TrimSpace(q.Name)
	if title == "" {
		return model.WorkItem{}, false
	}
	item := model.WorkItem{
		Title:    title,
		Course:   course,
		Platform: model.Brightspace,
		Kind:     model.Quiz,
		Status:   model.NotSubmitted,
	}
	due := q.DueDate
	if due == nil {
		due = q.EndDate
	}
	setAPITime(due, now.Location(),
		func(raw string) { item.SetDue(raw, now) },
		func(t time.Time) {
			item.Due = &t
			item.DueRaw = *due
		},
	)
	if q.Description != nil {
		item.SetDescription(q.Description.Text.Text)
	}
	return item, true
}

func workFromNews(n newsItem, course string, now time.Time) (model.WorkItem, bool) {
	title := strings.TrimSpace(n.Title)
	if title == "" || n.IsHidden {
		return model.WorkItem{}, false
	}
	item := model.WorkItem{
		Title:    title,
		Course:   course,
		Platform: model.Brightspace,
		Kind:     model.Announcement,
		Status:   model.Assigned,
	}
	item.SetDescription(n.Body.Text)
	setAPITime(n.StartDate, now.Location(),
		func(raw string) { item.SetPosted(raw, now) },
		func(t time.Time) {
			item.Posted = &t
			item.PostedRaw = *n.StartDate
		},
	)
	return item, true
}
