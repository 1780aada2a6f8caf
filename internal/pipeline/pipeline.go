// Package pipeline runs one end to end pass: a fresh browser session, a login
// and extraction per portal, then aggregation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"classbridge/internal/aggregate"
	"classbridge/internal/components/assert"
	"classbridge/internal/components/chrono"
	"classbridge/internal/components/telemetry"
	"classbridge/internal/driver"
	"classbridge/internal/identity"
	"classbridge/internal/model"
	"classbridge/internal/scrapers/brightspace"
	"classbridge/internal/scrapers/classroom"
	"classbridge/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("classbridge.internal.pipeline")

const (
	report_pipeline_source = "pipeline.source"
	report_pipeline_login  = "pipeline.login"
	report_pipeline_close  = "pipeline.close"
	report_pipeline_store  = "pipeline.store"
)

// DefaultSubjectCodes is used when no subject codes are configured.
var DefaultSubjectCodes = []string{"ENG", "GLE", "PPL", "History"}

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Headless bool   `json:"headless"`
	Debug    bool   `json:"debug"`
	// SubjectCodes picks the courses of the current semester out of every
	// enrolled course.
	SubjectCodes    []string `json:"subject_codes"`
	DB              string   `json:"db"`
	SkipClassroom   bool     `json:"skip_classroom"`
	SkipBrightspace bool     `json:"skip_brightspace"`
	ArtifactDir     string   `json:"artifact_dir"`
}

func (c Config) driverOptions() driver.Options {
	opts := driver.DefaultOptions()
	opts.Headless = c.Headless
	opts.Debug = c.Debug
	opts.ArtifactDir = c.ArtifactDir
	return opts
}

// OpenDriver starts a fresh browser session.
type OpenDriver func(ctx context.Context, opts driver.Options) (driver.Driver, error)

type Deps struct {
	Open  OpenDriver
	Clock chrono.API
	Tel   telemetry.API
	// Sink receives raw api exchanges, may be nil.
	Sink telemetry.MessageSink
	// Fetcher builds the Brightspace api transport, nil means
	// brightspace.DefaultFetcher.
	Fetcher func(d driver.Driver) brightspace.Fetcher

	ClassroomProfile   identity.Profile
	BrightspaceProfile identity.Profile
	ClassroomTiming    classroom.Timing
	BrightspaceTiming  brightspace.Timing
	// RunID names the run in the store, generated when empty.
	RunID string
}

// DefaultDeps are the waits a real session needs.
func DefaultDeps(open OpenDriver, tel telemetry.API) Deps {
	return Deps{
		Open:               open,
		Clock:              chrono.NewStandardImpl(),
		Tel:                tel,
		ClassroomProfile:   identity.GenerousProfile(),
		BrightspaceProfile: identity.FastProfile(),
		ClassroomTiming:    classroom.DefaultTiming(),
		BrightspaceTiming:  brightspace.DefaultTiming(),
	}
}

// source is one portal: how to sign in, what courses it has and what work
// is in them.
type source struct {
	name     string
	platform model.Platform
	login    func(ctx context.Context) identity.Result
	courses  func(ctx context.Context) ([]model.Course, error)
	items    func(ctx context.Context, courses []model.Course) []model.WorkItem
}

type run struct {
	cfg  Config
	deps Deps
	tel  telemetry.API
	d    driver.Driver
}

func start(ctx context.Context, cfg Config, deps Deps) (*run, error) {
	assert.NotNil(deps.Open, "driver factory")
	assert.NotNil(deps.Clock, "clock")
	assert.NotNil(deps.Tel, "telemetry")

	if len(cfg.SubjectCodes) == 0 {
		cfg.SubjectCodes = DefaultSubjectCodes
	}
	d, err := deps.Open(ctx, cfg.driverOptions())
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	return &run{
		cfg:  cfg,
		deps: deps,
		tel:  telemetry.NewScopedAPI("pipeline", deps.Tel),
		d:    d,
	}, nil
}

func (r *run) close() {
	if err := r.d.Close(); err != nil {
		r.tel.ReportWarning(report_pipeline_close, err)
	}
}

func (r *run) negotiator() identity.Negotiator {
	return identity.NewNegotiator(identity.Credentials{
		Username: r.cfg.Username,
		Password: r.cfg.Password,
	}, r.deps.Tel)
}

func (r *run) sources() []source {
	var out []source
	if !r.cfg.SkipClassroom {
		s := classroom.NewScraper(r.d, r.deps.Clock, r.deps.Tel, r.deps.ClassroomTiming)
		out = append(out, source{
			name:     "classroom",
			platform: model.GoogleClassroom,
			login: func(ctx context.Context) identity.Result {
				return r.negotiator().Login(ctx, r.d, identity.ClassroomFlow(), r.deps.ClassroomProfile)
			},
			courses: s.Courses,
			items: func(ctx context.Context, courses []model.Course) []model.WorkItem {
				items := s.ScrapeAll(ctx, courses)
				todo, err := s.Todo(ctx, courses, r.cfg.SubjectCodes)
				if err != nil {
					r.tel.ReportWarning(report_pipeline_source, "classroom", fmt.Errorf("to-do list: %w", err))
					return items
				}
				return aggregate.MergeTodo(items, todo)
			},
		})
	}
	if !r.cfg.SkipBrightspace {
		var fetch brightspace.Fetcher
		if r.deps.Fetcher != nil {
			fetch = r.deps.Fetcher(r.d)
		} else {
			fetch = brightspace.DefaultFetcher(r.d, r.deps.Tel, r.deps.Sink)
		}
		s := brightspace.NewScraper(r.d, fetch, r.deps.Clock, r.deps.Tel, r.deps.BrightspaceTiming)
		out = append(out, source{
			name:     "brightspace",
			platform: model.Brightspace,
			login: func(ctx context.Context) identity.Result {
				return r.negotiator().Login(ctx, r.d, identity.BrightspaceFlow(), r.deps.BrightspaceProfile)
			},
			courses: s.Courses,
			items: func(ctx context.Context, courses []model.Course) []model.WorkItem {
				items := s.ScrapeAll(ctx, courses)
				widgets, err := s.Widgets(ctx)
				if err != nil {
					r.tel.ReportWarning(report_pipeline_source, "brightspace", fmt.Errorf("home widgets: %w", err))
					return items
				}
				return aggregate.MergeTodo(items, widgets)
			},
		})
	}
	return out
}

// collect signs src in and extracts from it. A failure of any kind is
// reported and ends only this source, whatever was gathered before it is
// kept.
func (r *run) collect(ctx context.Context, src source, withItems bool) (courses []model.Course, items []model.WorkItem) {
	ctx, span := tracer.Start(ctx, "collect", trace.WithAttributes(
		attribute.String("source", src.name),
		attribute.String("platform", src.platform.String()),
	))
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportBroken(report_pipeline_source, err, src.name)
	}
	defer func() {
		if p := recover(); p != nil {
			fail(fmt.Errorf("panic: %v", p))
		}
	}()

	res := src.login(ctx)
	if !res.OK() {
		// the page may still be usable, extraction finds out
		r.tel.ReportWarning(report_pipeline_login, src.name, res.Final.String())
	}

	all, err := src.courses(ctx)
	if err != nil {
		fail(fmt.Errorf("list courses: %w", err))
		return nil, nil
	}
	courses = aggregate.SelectCourses(all, r.cfg.SubjectCodes)
	span.SetAttributes(attribute.Int("courses", len(courses)))
	r.tel.ReportCount(src.name+".courses", int64(len(courses)))
	if !withItems || ctx.Err() != nil {
		return courses, nil
	}

	items = src.items(ctx, courses)
	span.SetAttributes(attribute.Int("items", len(items)))
	r.tel.ReportCount(src.name+".items", int64(len(items)))
	return courses, items
}

// Run performs one full pass and returns the aggregated result. The only
// error is failing to open the browser, anything after that is reported and
// yields a smaller result.
func Run(ctx context.Context, cfg Config, deps Deps) (aggregate.Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	r, err := start(ctx, cfg, deps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return aggregate.Result{}, err
	}
	defer r.close()

	started := deps.Clock.Now()
	var courses []model.Course
	var items []model.WorkItem
	for _, src := range r.sources() {
		c, i := r.collect(ctx, src, true)
		courses = append(courses, c...)
		items = append(items, i...)
	}
	finished := deps.Clock.Now()

	result := aggregate.Build(courses, items, finished)
	if r.cfg.DB != "" {
		r.save(ctx, started, finished, result)
	}
	return result, nil
}

// Courses signs in and lists the selected courses of every source without
// extracting their work.
func Courses(ctx context.Context, cfg Config, deps Deps) ([]model.Course, error) {
	ctx, span := tracer.Start(ctx, "Courses")
	defer span.End()

	r, err := start(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	defer r.close()

	var courses []model.Course
	for _, src := range r.sources() {
		c, _ := r.collect(ctx, src, false)
		courses = append(courses, c...)
	}
	return courses, nil
}

func (r *run) save(ctx context.Context, started, finished time.Time, result aggregate.Result) {
	id := r.deps.RunID
	if id == "" {
		id = uuid.NewString()
	}

	// saved even when the run was interrupted
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s, err := store.Open(ctx, r.cfg.DB)
	if err != nil {
		r.tel.ReportBroken(report_pipeline_store, err, r.cfg.DB)
		return
	}
	defer s.Close()

	err = s.SaveRun(ctx, store.Run{
		ID:       id,
		Started:  started,
		Finished: finished,
		Courses:  result.Courses,
		Items:    result.Items,
	})
	if err != nil {
		r.tel.ReportBroken(report_pipeline_store, err, r.cfg.DB)
		return
	}
	r.tel.ReportDebug("saved run", id, r.cfg.DB)
}
