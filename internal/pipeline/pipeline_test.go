package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"classbridge/internal/components/chrono"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/internal/driver/fakedriver"
	"classbridge/internal/identity"
	"classbridge/internal/model"
	"classbridge/internal/scrapers/brightspace"
	"classbridge/internal/scrapers/classroom"
	"classbridge/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	driver.PollInterval = 2 * time.Millisecond
	goleak.VerifyTestMain(m)
}

var now = time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)

const classroomLanding = "https://classroom.google.com/u/0/h"

type fetcherFunc func(ctx context.Context, path string) (json.RawMessage, error)

func (f fetcherFunc) FetchJSON(ctx context.Context, path string) (json.RawMessage, error) {
	return f(ctx, path)
}

// portals serves both portals already signed in, with one ENG course on
// each and an Art course that is filtered out.
func portals() *fakedriver.Driver {
	d := fakedriver.New()
	d.Redirects[identity.GoogleLoginURL] = classroomLanding
	d.Pages[classroomLanding] = `<html><body><div>Classes</div></body></html>`
	d.Pages[classroom.HomeURL] = `<html><body>
		<a href="/c/ODc2"><div>ENG4U</div><div>Ms. Smith</div></a>
		<a href="/c/OTk5"><div>Art</div></a>
	</body></html>`
	d.Pages["https://classroom.google.com/c/ODc2"] = `<html><body>Stream</body></html>`
	d.Pages["https://classroom.google.com/c/ODc2/a/not-turned-in/all"] = `<html><body>
		<a href="/c/ODc2/a/OTE/details">Essay Draft</a>
	</body></html>`
	d.Pages[classroom.TodoURL] = `<html><body>
		<div data-stream-item-id="a1">
			<a aria-label='Assignment: "Essay Draft"' href="/c/ODc2/a/OTE/details"></a>
			<div>ENG4U</div>
		</div>
		<div data-stream-item-id="a2">
			<a aria-label='Quiz: "Unit 3 Quiz"' href="/c/ODc2/a/OTI/details"></a>
			<div>ENG4U</div>
		</div>
	</body></html>`
	d.Pages[brightspace.HomePage] = `<html><body>
		<div class="d2l-card"><a href="/d2l/home/1001">ENG4U - English</a></div>
		<div class="d2l-card"><a href="/d2l/home/1002">Visual Art</a></div>
	</body></html>`
	return d
}

func dropbox(ctx context.Context, path string) (json.RawMessage, error) {
	if path == "/d2l/api/le/1.0/1001/dropbox/folders/" {
		return json.RawMessage(`[{"Id": 7, "Name": "Persuasive Essay", "DueDate": "2025-10-20T03:59:00.000Z"}]`), nil
	}
	return nil, brightspace.ErrNoResponse
}

func testDeps(d *fakedriver.Driver, rec *telemetry.Recorder) Deps {
	return Deps{
		Open: func(ctx context.Context, opts driver.Options) (driver.Driver, error) {
			return d, nil
		},
		Clock: chrono.Fixed{At: now},
		Tel:   rec,
		Fetcher: func(driver.Driver) brightspace.Fetcher {
			return fetcherFunc(dropbox)
		},
		RunID: "run-1",
	}
}

func testConfig() Config {
	return Config{
		Username:     "student@example.com",
		Password:     "hunter2",
		SubjectCodes: []string{"ENG"},
	}
}

func titles(items []model.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestRunCollectsBothPortals(t *testing.T) {
	d := portals()
	rec := telemetry.NewRecorder()

	res, err := Run(context.Background(), testConfig(), testDeps(d, rec))
	require.NoError(t, err)
	require.True(t, d.Closed())
	require.Empty(t, rec.Reports("broken"))

	require.Len(t, res.Courses, 2)
	require.Equal(t, "ENG", res.Courses[0].ShortCode)
	require.Equal(t, model.GoogleClassroom, res.Courses[0].Platform)
	require.Equal(t, model.Brightspace, res.Courses[1].Platform)

	require.ElementsMatch(t, []string{"Essay Draft", "Unit 3 Quiz", "Persuasive Essay"}, titles(res.Items))
	for _, it := range res.Items {
		if it.Title == "Persuasive Essay" {
			require.Equal(t, model.Brightspace, it.Platform)
			require.Equal(t, model.NotSubmitted, it.Status)
			require.NotNil(t, it.Due)
		}
	}
	require.NotEmpty(t, res.Groups)
}

func TestRunSkipsSources(t *testing.T) {
	d := portals()
	cfg := testConfig()
	cfg.SkipBrightspace = true

	res, err := Run(context.Background(), cfg, testDeps(d, telemetry.NewRecorder()))
	require.NoError(t, err)
	for _, c := range res.Courses {
		require.Equal(t, model.GoogleClassroom, c.Platform)
	}
	require.NotContains(t, d.Navigations(), brightspace.HomePage)
}

func TestRunOpenFailure(t *testing.T) {
	deps := testDeps(nil, telemetry.NewRecorder())
	launch := errors.New("chrome not found")
	deps.Open = func(context.Context, driver.Options) (driver.Driver, error) {
		return nil, launch
	}

	_, err := Run(context.Background(), testConfig(), deps)
	require.ErrorIs(t, err, launch)
}

func TestRunSavesToStore(t *testing.T) {
	d := portals()
	cfg := testConfig()
	cfg.DB = filepath.Join(t.TempDir(), "runs.db")

	res, err := Run(context.Background(), cfg, testDeps(d, telemetry.NewRecorder()))
	require.NoError(t, err)

	s, err := store.Open(context.Background(), cfg.DB)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)
	require.Len(t, run.Courses, len(res.Courses))
	require.Equal(t, titles(res.Items), titles(run.Items))
}

func TestCoursesOnly(t *testing.T) {
	d := portals()

	courses, err := Courses(context.Background(), testConfig(), testDeps(d, telemetry.NewRecorder()))
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.True(t, d.Closed())
	require.NotContains(t, d.Navigations(), classroom.TodoURL)
	require.NotContains(t, d.Navigations(), "https://classroom.google.com/c/ODc2")
}

func TestCollectIsolatesFailures(t *testing.T) {
	signedIn := func(context.Context) identity.Result {
		return identity.Result{Final: identity.Destination}
	}
	eng := func(context.Context) ([]model.Course, error) {
		return []model.Course{{Name: "ENG4U"}, {Name: "Art"}}, nil
	}

	cases := []struct {
		name    string
		src     source
		courses int
		broken  bool
		warning bool
	}{
		{
			name: "extraction panics",
			src: source{
				name:    "panicky",
				login:   signedIn,
				courses: eng,
				items: func(context.Context, []model.Course) []model.WorkItem {
					panic("page crashed")
				},
			},
			courses: 1,
			broken:  true,
		},
		{
			name: "no course list",
			src: source{
				name:  "offline",
				login: signedIn,
				courses: func(context.Context) ([]model.Course, error) {
					return nil, errors.New("net::ERR_INTERNET_DISCONNECTED")
				},
			},
			broken: true,
		},
		{
			name: "login dead end still extracts",
			src: source{
				name: "stuck",
				login: func(context.Context) identity.Result {
					return identity.Result{Final: identity.Failed}
				},
				courses: eng,
				items: func(context.Context, []model.Course) []model.WorkItem {
					return []model.WorkItem{{Title: "Essay Draft"}}
				},
			},
			courses: 1,
			warning: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := telemetry.NewRecorder()
			r := &run{
				cfg: Config{SubjectCodes: []string{"ENG"}},
				tel: rec,
				d:   fakedriver.New(),
			}

			courses, _ := r.collect(context.Background(), c.src, true)
			require.Len(t, courses, c.courses)
			require.Equal(t, c.broken, rec.Has("broken", report_pipeline_source))
			require.Equal(t, c.warning, rec.Has("warning", report_pipeline_login))
			if c.broken {
				require.Equal(t, c.src.name, rec.Reports("broken")[0].Params[1])
			}
		})
	}
}
