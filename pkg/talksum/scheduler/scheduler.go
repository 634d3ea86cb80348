// Package scheduler maintains the recurring per-room summary jobs.
// Uses robfig/cron for trigger execution, with SQLite-based persistence
// for surviving restarts. Each job fires daily at a fixed hour:minute in
// server-local time.
package scheduler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Errors returned by job operations. The bot layer maps these to
// user-visible replies.
var (
	// ErrInvalidTime indicates an out-of-range hour or minute.
	ErrInvalidTime = errors.New("invalid time: hour must be 0-23 and minute 0-59")

	// ErrJobExists indicates an identical (room, hour, minute) job is
	// already scheduled. Informational, not a failure.
	ErrJobExists = errors.New("job already exists")

	// ErrNotAuthorized indicates the job id is not owned by the caller's room.
	ErrNotAuthorized = errors.New("job belongs to another room")
)

// jobTimeout bounds a single fired summarization. The backend poll loop
// itself gives up after 30 minutes; the extra slack covers the store query
// and the reply send.
const jobTimeout = 35 * time.Minute

// Job is one recurring daily summary trigger for a room.
type Job struct {
	// ID is the deterministic job identifier. Always prefixed with
	// RoomID + "_" so that ownership can be checked by prefix alone.
	ID string `json:"id"`

	// RoomID is the opaque room token the job belongs to.
	RoomID string `json:"room_id"`

	// RoomName is the room display name at creation time. Informational
	// only; it is not part of the job identity (rooms get renamed).
	RoomName string `json:"room_name"`

	// Hour and Minute are the daily firing time, server-local.
	Hour   int `json:"hour"`
	Minute int `json:"minute"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// LastRunAt is the last firing timestamp.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastError holds the error from the last firing, if any.
	LastError string `json:"last_error,omitempty"`

	// RunCount tracks how many times the job has fired.
	RunCount int `json:"run_count"`
}

// Recurrence returns the human-readable recurrence label. Jobs are always
// daily in the current design (day-of-week wildcard).
func (j *Job) Recurrence() string { return "Daily" }

// FireAt renders the firing time as HH:MM:SS.
func (j *Job) FireAt() string {
	return fmt.Sprintf("%02d:%02d:00", j.Hour, j.Minute)
}

// Handler is called when a job fires. The fixed 24-hour lookback is applied
// by the handler; errors are logged by the scheduler and never propagate
// into the cron run loop.
type Handler func(ctx context.Context, job *Job) error

// Storage persists jobs across restarts.
type Storage interface {
	SaveJob(job *Job) error
	DeleteJob(id string) error
	LoadJobs() ([]*Job, error)
}

// Scheduler manages the per-room daily summary jobs.
type Scheduler struct {
	jobs    map[string]*Job
	cron    *cron.Cron
	cronIDs map[string]cron.EntryID

	storage Storage
	handler Handler

	logger *slog.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler with the given storage and fire handler.
func New(storage Storage, handler Handler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:    make(map[string]*Job),
		cronIDs: make(map[string]cron.EntryID),
		storage: storage,
		handler: handler,
		logger:  logger.With("component", "scheduler"),
	}
}

// ComputeJobID derives the deterministic job identifier. The canonical key
// is (room id, hour, minute): the room display name is deliberately excluded
// so that renaming a room cannot desynchronize the duplicate check. The
// room id prefix makes ownership checkable without a lookup.
func ComputeJobID(roomID string, hour, minute int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d", roomID, hour, minute)))
	return roomID + "_" + hex.EncodeToString(sum[:])
}

// ValidTime reports whether hour:minute is a valid time of day.
func ValidTime(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// Add registers a daily job for the room. Adding the same (room, hour,
// minute) twice is a no-op that returns the existing job together with
// ErrJobExists.
func (s *Scheduler) Add(roomID, roomName string, hour, minute int) (*Job, error) {
	if !ValidTime(hour, minute) {
		return nil, ErrInvalidTime
	}

	id := ComputeJobID(roomID, hour, minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The id is a pure function of the tuple, so a map hit is exactly
	// "same room, same time already scheduled".
	if existing, ok := s.jobs[id]; ok {
		return existing, ErrJobExists
	}

	job := &Job{
		ID:        id,
		RoomID:    roomID,
		RoomName:  roomName,
		Hour:      hour,
		Minute:    minute,
		CreatedAt: time.Now(),
	}

	if s.cron != nil {
		if err := s.scheduleCronJob(job); err != nil {
			return nil, fmt.Errorf("register cron trigger: %w", err)
		}
	}

	s.jobs[id] = job

	if s.storage != nil {
		if err := s.storage.SaveJob(job); err != nil {
			s.logger.Error("failed to persist job", "id", job.ID, "error", err)
		}
	}

	s.logger.Info("job added",
		"id", job.ID,
		"room", roomID,
		"fires_at", job.FireAt(),
	)
	return job, nil
}

// List returns the room's jobs ordered by firing time. An empty result
// means no jobs are scheduled for the room; rendering the sentinel reply
// is the caller's concern.
func (s *Scheduler) List(roomID string) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := roomID + "_"
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if strings.HasPrefix(j.ID, prefix) {
			result = append(result, j)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].Hour != result[b].Hour {
			return result[a].Hour < result[b].Hour
		}
		return result[a].Minute < result[b].Minute
	})
	return result
}

// Delete removes a job. The sole authorization check is the room-id prefix:
// a caller may only delete jobs whose id starts with its own room token.
// Deleting an absent (but owned) id is a silent no-op.
func (s *Scheduler) Delete(roomID, jobID string) error {
	if !strings.HasPrefix(jobID, roomID+"_") {
		return ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil
	}

	if entryID, ok := s.cronIDs[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, jobID)
	}
	delete(s.jobs, jobID)

	if s.storage != nil {
		if err := s.storage.DeleteJob(jobID); err != nil {
			s.logger.Error("failed to remove job from storage", "id", jobID, "error", err)
		}
	}

	s.logger.Info("job removed", "id", jobID)
	return nil
}

// Count returns the total number of registered jobs.
func (s *Scheduler) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Start creates the cron runner and loads persisted jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	if s.storage != nil {
		jobs, err := s.storage.LoadJobs()
		if err != nil {
			s.logger.Error("failed to load jobs", "error", err)
		} else {
			s.mu.Lock()
			for _, job := range jobs {
				s.jobs[job.ID] = job
				if err := s.scheduleCronJob(job); err != nil {
					s.logger.Warn("skipping persisted job with bad trigger",
						"id", job.ID, "error", err)
				}
			}
			s.mu.Unlock()
			s.logger.Info("jobs loaded from storage", "count", len(jobs))
		}
	}

	s.cron.Start()

	s.logger.Info("scheduler started", "jobs", s.Count())
	return nil
}

// Stop gracefully shuts down the cron runner, waiting briefly for a
// running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

// scheduleCronJob registers the daily trigger. Caller holds s.mu.
func (s *Scheduler) scheduleCronJob(job *Job) error {
	spec := fmt.Sprintf("%d %d * * *", job.Minute, job.Hour)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(job)
	})
	if err != nil {
		return err
	}
	s.cronIDs[job.ID] = entryID
	return nil
}

// fire runs one job through the handler. Runs on the cron goroutine, so a
// slow summarization occupies the scheduler until it completes or times
// out; that bounds the system to one scheduled summarization at a time.
// Failures are logged and the day is skipped — no retry (see DESIGN.md).
func (s *Scheduler) fire(job *Job) {
	defer func() {
		// One bad job must not crash the cron loop or deregister itself.
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "id", job.ID, "panic", r)
			s.recordRun(job, fmt.Errorf("panic: %v", r))
		}
	}()

	s.mu.Lock()
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	s.mu.Unlock()

	s.logger.Info("firing scheduled job", "id", job.ID, "room", job.RoomID)

	if s.handler == nil {
		s.logger.Warn("no handler configured, skipping job", "id", job.ID)
		return
	}

	ctx, cancelFn := context.WithTimeout(s.ctx, jobTimeout)
	defer cancelFn()

	err := s.handler(ctx, job)
	if err != nil {
		s.logger.Error("scheduled job failed", "id", job.ID, "error", err)
	} else {
		s.logger.Info("scheduled job completed", "id", job.ID)
	}
	s.recordRun(job, err)
}

// recordRun writes the outcome of one firing onto the job and persists it,
// unless the job was deleted while running. Called on the normal return path
// and from the panic recovery, so a crashed run's state survives a restart.
func (s *Scheduler) recordRun(job *Job, err error) {
	s.mu.Lock()
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	_, stillExists := s.jobs[job.ID]
	s.mu.Unlock()

	if s.storage != nil && stillExists {
		if saveErr := s.storage.SaveJob(job); saveErr != nil {
			s.logger.Error("failed to persist job state", "id", job.ID, "error", saveErr)
		}
	}
}
