package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stellarlinkco/mirumi/internal/store"
)

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Title: "focus"})

	run, err := f.sessions.StartSession(ctx, id)
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}
	open, err := f.sessions.OpenSession(ctx, id)
	if err != nil {
		t.Fatalf("OpenSession error: %v", err)
	}
	if open.ID != run || !open.Open() || open.EndType != EndRunning || open.Duration != 0 {
		t.Errorf("open run = %+v", open)
	}
	got := f.get(t, id)
	if got.LastRunAt == nil || *got.LastRunAt != open.StartedAt {
		t.Errorf("LastRunAt = %v, want %s", got.LastRunAt, open.StartedAt)
	}

	if err := f.sessions.EndSession(ctx, run, EndCompleted, 95); err != nil {
		t.Fatalf("EndSession error: %v", err)
	}
	if _, err := f.sessions.OpenSession(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("OpenSession after end error = %v, want ErrNotFound", err)
	}
	runs := f.get(t, id).RunHistory
	if len(runs) != 1 || runs[0].Open() || runs[0].Duration != 95 || runs[0].EndType != EndCompleted {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSession_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Title: "t"})

	first, _ := f.sessions.StartSession(ctx, id)
	_ = f.sessions.EndSession(ctx, first, EndPaused, 30)
	second, _ := f.sessions.StartSession(ctx, id)

	runs := f.get(t, id).RunHistory
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not newest first: %+v", runs)
	}
}

func TestSession_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Title: "t"})

	if _, err := f.sessions.StartSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("StartSession(missing) error = %v", err)
	}
	if err := f.sessions.EndSession(ctx, "missing", EndPaused, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("EndSession(missing) error = %v", err)
	}
	run, _ := f.sessions.StartSession(ctx, id)
	if err := f.sessions.EndSession(ctx, run, EndRunning, 1); !errors.Is(err, store.ErrValidation) {
		t.Errorf("EndSession(running) error = %v", err)
	}
	if err := f.sessions.EndSession(ctx, run, EndPaused, -1); !errors.Is(err, store.ErrValidation) {
		t.Errorf("EndSession(-1) error = %v", err)
	}
}

func TestExtendTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Title: "t"})

	reason := "needs polish"
	if _, err := f.sessions.ExtendTime(ctx, ExtendInput{TaskID: id, AddedMinutes: 10, PreviousDuration: 5, NewDuration: 15, Reason: &reason}); err != nil {
		t.Fatalf("ExtendTime error: %v", err)
	}
	if _, err := f.sessions.ExtendTime(ctx, ExtendInput{TaskID: id, AddedMinutes: 5, PreviousDuration: 15, NewDuration: 20}); err != nil {
		t.Fatalf("ExtendTime error: %v", err)
	}

	got := f.get(t, id)
	if got.ExpectedDuration == nil || *got.ExpectedDuration != 20 {
		t.Errorf("ExpectedDuration = %v, want 20", got.ExpectedDuration)
	}
	if len(got.TimeExtensions) != 2 || got.TimeExtensions[0].NewDuration != 20 || got.TimeExtensions[1].Reason == nil {
		t.Errorf("TimeExtensions = %+v", got.TimeExtensions)
	}

	if _, err := f.sessions.ExtendTime(ctx, ExtendInput{TaskID: id, NewDuration: 0}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("zero duration error = %v", err)
	}
	if _, err := f.sessions.ExtendTime(ctx, ExtendInput{TaskID: "missing", AddedMinutes: 1, PreviousDuration: 1, NewDuration: 2}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing task error = %v", err)
	}
	if got := f.get(t, id); len(got.TimeExtensions) != 2 {
		t.Errorf("failed extension left a row: %d", len(got.TimeExtensions))
	}
}

func TestParseEndType(t *testing.T) {
	cases := map[string]EndType{
		"running":   EndRunning,
		"COMPLETED": EndCompleted,
		" paused ":  EndPaused,
		"timeout":   EndTimeout,
		"crashed":   EndInterrupted,
		"":          EndInterrupted,
	}
	for in, want := range cases {
		if got := ParseEndType(in); got != want {
			t.Errorf("ParseEndType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	f.engine.now = func() time.Time { return now }

	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	stamp := now.Add(2 * time.Hour).UTC().Format("2006-01-02T15:04:05.000Z")

	f.create(t, CreateInput{Title: "inbox today", TargetDate: &today, IsImportant: true})
	f.create(t, CreateInput{Title: "inbox stamp today", TargetDate: &stamp})
	f.create(t, CreateInput{Title: "tomorrow", TargetDate: &tomorrow})
	f.create(t, CreateInput{Title: "overdue", TargetDate: &yesterday})
	done := f.create(t, CreateInput{Title: "done overdue", TargetDate: &yesterday, IsImportant: true})
	gone := f.create(t, CreateInput{Title: "archived"})
	started := f.create(t, CreateInput{Title: "started"})

	if err := f.engine.Complete(ctx, done, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Archive(ctx, gone); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Start(ctx, started); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts error: %v", err)
	}
	want := Counts{Inbox: 5, Completed: 1, Starred: 1, Today: 2, Tomorrow: 1, Overdue: 1, Archive: 1}
	if got != want {
		t.Errorf("Counts = %+v, want %+v", got, want)
	}
}
