// Package store keeps the results of runs in a sqlite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"classbridge/internal/model"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var ErrNoRun = errors.New("no run stored")

type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Courses  []model.Course
	Items    []model.WorkItem
}

type Store struct {
	db     *sql.DB
	makeTx makeTx
}

// Open opens (creating if needed) the database at path and applies the
// schema. path may be ":memory:".
func Open(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	// every connection to ":memory:" is a different database
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, Schema)
	if err != nil {
		db.Close()
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return Store{db: db, makeTx: newMakeTx(db)}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullableUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// SaveRun writes a run with its courses and items in one transaction.
func (s Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	_, err = tx.ExecContext(
		ctx,
		"insert into run(id, started_at, finished_at) values (?, ?, ?)",
		run.ID, run.Started.Unix(), run.Finished.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, c := range run.Courses {
		_, err := tx.ExecContext(
			ctx,
			`insert into course(run_id, platform, external_id, name, url, short_code)
			values (?, ?, ?, ?, ?, ?)`,
			run.ID, int(c.Platform), c.ID, c.Name, c.URL, c.ShortCode,
		)
		if err != nil {
			return fmt.Errorf("insert course '%s': %w", c.Name, err)
		}
	}

	for _, it := range run.Items {
		_, err := tx.ExecContext(
			ctx,
			`insert into work_item(
				run_id, platform, course, title, kind, status,
				due, due_raw, posted, posted_raw, description, url, points
			) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, int(it.Platform), it.Course, it.Title, int(it.Kind), int(it.Status),
			nullableUnix(it.Due), it.DueRaw, nullableUnix(it.Posted), it.PostedRaw,
			it.Description, it.URL, it.Points,
		)
		if err != nil {
			return fmt.Errorf("insert item '%s': %w", it.Title, err)
		}
	}

	return commit()
}

// LatestRun reads back the most recently started run.
func (s Store) LatestRun(ctx context.Context) (Run, error) {
	var run Run
	var started, finished int64
	err := s.db.QueryRowContext(
		ctx,
		"select id, started_at, finished_at from run order by started_at desc, rowid desc limit 1",
	).Scan(&run.ID, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	if err != nil {
		return Run{}, err
	}
	run.Started = time.Unix(started, 0)
	run.Finished = time.Unix(finished, 0)

	run.Courses, err = s.courses(ctx, run.ID)
	if err != nil {
		return Run{}, err
	}
	run.Items, err = s.items(ctx, run.ID)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s Store) courses(ctx context.Context, runID string) ([]model.Course, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"select platform, external_id, name, url, short_code from course where run_id = ? order by rowid",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Course
	for rows.Next() {
		var c model.Course
		var platform int
		err := rows.Scan(&platform, &c.ID, &c.Name, &c.URL, &c.ShortCode)
		if err != nil {
			return nil, err
		}
		c.Platform = model.Platform(platform)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s Store) items(ctx context.Context, runID string) ([]model.WorkItem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select platform, course, title, kind, status,
			due, due_raw, posted, posted_raw, description, url, points
		from work_item where run_id = ? order by rowid`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkItem
	for rows.Next() {
		var it model.WorkItem
		var platform, kind, status int
		var due, posted sql.NullInt64
		err := rows.Scan(
			&platform, &it.Course, &it.Title, &kind, &status,
			&due, &it.DueRaw, &posted, &it.PostedRaw, &it.Description, &it.URL, &it.Points,
		)
		if err != nil {
			return nil, err
		}
		it.Platform = model.Platform(platform)
		it.Kind = model.ItemKind(kind)
		it.Status = model.Status(status)
		it.Due = fromNullableUnix(due)
		it.Posted = fromNullableUnix(posted)
		out = append(out, it)
	}
	return out, rows.Err()
}
