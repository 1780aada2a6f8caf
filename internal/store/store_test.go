package store

import (
	"context"
	"testing"
	"time"

	"classbridge/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.LatestRun(ctx)
	require.ErrorIs(t, err, ErrNoRun)

	due := time.Date(2025, time.October, 20, 23, 59, 0, 0, time.UTC)
	run := Run{
		ID:       "first",
		Started:  time.Unix(1760529600, 0),
		Finished: time.Unix(1760529900, 0),
		Courses: []model.Course{
			{Name: "GLE - Learning Strategies", ID: "NjQ1", URL: "https://classroom.google.com/c/NjQ1", ShortCode: "GLE"},
			{Name: "ENG4U", ID: "1001", Platform: model.Brightspace, ShortCode: "ENG"},
		},
		Items: []model.WorkItem{
			{
				Title:    "Planning Log",
				Course:   "GLE - Learning Strategies",
				Status:   model.NotSubmitted,
				Due:      &due,
				DueRaw:   "Due Oct 20",
				URL:      "https://classroom.google.com/c/NjQ1/a/MTI/details",
				Points:   "10",
				Platform: model.GoogleClassroom,
			},
			{
				Title:     "Field Trip Friday",
				Course:    "ENG4U",
				Kind:      model.Announcement,
				Status:    model.Assigned,
				PostedRaw: "last week",
				Platform:  model.Brightspace,
			},
		},
	}
	require.NoError(t, s.SaveRun(ctx, run))

	later := Run{ID: "second", Started: run.Started.Add(time.Hour), Finished: run.Finished.Add(time.Hour)}
	require.NoError(t, s.SaveRun(ctx, later))

	loaded, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", loaded.ID)
	require.Empty(t, loaded.Items)

	_, err = s.db.ExecContext(ctx, "delete from run where id = ?", "second")
	require.NoError(t, err)

	loaded, err = s.LatestRun(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(run.Courses, loaded.Courses))
	require.Len(t, loaded.Items, 2)
	require.True(t, due.Equal(*loaded.Items[0].Due))
	require.Nil(t, loaded.Items[1].Due)

	loaded.Items[0].Due = nil
	run.Items[0].Due = nil
	require.Empty(t, cmp.Diff(run.Items, loaded.Items))
}

func TestSaveRunIsAtomic(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	run := Run{ID: "dup", Started: time.Unix(100, 0), Finished: time.Unix(200, 0)}
	require.NoError(t, s.SaveRun(ctx, run))

	run.Items = []model.WorkItem{{Title: "Essay"}}
	require.Error(t, s.SaveRun(ctx, run))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, "select count(*) from work_item").Scan(&count))
	require.Zero(t, count)

	require.Error(t, s.SaveRun(ctx, Run{}))
}
