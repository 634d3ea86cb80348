package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talksum/talksum/pkg/talksum/scheduler"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndSince(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	for i, text := range []string{"first", "second", "third"} {
		err := s.Append(ctx, Message{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			RoomID:    "R1",
			Actor:     "Alice",
			Message:   text,
		})
		if err != nil {
			t.Fatalf("append %q: %v", text, err)
		}
	}
	// Another room must not leak into R1 queries.
	if err := s.Append(ctx, Message{Timestamp: base, RoomID: "R2", Actor: "Bob", Message: "elsewhere"}); err != nil {
		t.Fatalf("append R2: %v", err)
	}

	msgs, err := s.Since(ctx, "R1", base)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Message != want {
			t.Errorf("msgs[%d] = %q, want %q (ascending order)", i, msgs[i].Message, want)
		}
	}

	// since is inclusive and filters older rows.
	msgs, err = s.Since(ctx, "R1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Message != "second" {
		t.Errorf("since filter returned %d messages starting %q, want 2 starting %q",
			len(msgs), msgs[0].Message, "second")
	}
}

func TestSinceTieBreakByInsertion(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	for _, text := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, Message{Timestamp: ts, RoomID: "R1", Actor: "Alice", Message: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.Since(ctx, "R1", ts)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if msgs[i].Message != want {
			t.Errorf("msgs[%d] = %q, want %q (insertion order tie-break)", i, msgs[i].Message, want)
		}
	}
}

func TestJobRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	lastRun := time.Date(2024, 2, 1, 17, 30, 0, 0, time.UTC)
	job := &scheduler.Job{
		ID:        scheduler.ComputeJobID("R1", 17, 30),
		RoomID:    "R1",
		RoomName:  "Team",
		Hour:      17,
		Minute:    30,
		CreatedAt: time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
	}

	if err := s.SaveJob(job); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Saving again after a run updates the row instead of duplicating it.
	job.LastRunAt = &lastRun
	job.RunCount = 1
	job.LastError = "boom"
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("update: %v", err)
	}

	jobs, err := s.LoadJobs()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(jobs))
	}
	got := jobs[0]
	if got.ID != job.ID || got.RoomID != "R1" || got.Hour != 17 || got.Minute != 30 {
		t.Errorf("loaded job %+v does not match saved job", got)
	}
	if got.RunCount != 1 || got.LastError != "boom" {
		t.Errorf("run state not persisted: %+v", got)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(lastRun) {
		t.Errorf("LastRunAt = %v, want %v", got.LastRunAt, lastRun)
	}

	if err := s.DeleteJob(job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	jobs, err = s.LoadJobs()
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("loaded %d jobs after delete, want 0", len(jobs))
	}
}
