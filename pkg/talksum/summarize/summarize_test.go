package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/talksum/talksum/pkg/talksum/store"
	"github.com/talksum/talksum/pkg/talksum/textproc"
	"github.com/talksum/talksum/pkg/talksum/window"
)

type fakeSource struct {
	messages []store.Message
	err      error
}

func (f *fakeSource) Since(_ context.Context, _ string, _ time.Time) ([]store.Message, error) {
	return f.messages, f.err
}

type fakeBackend struct {
	hasType    bool
	capErr     error
	capOnceErr error // returned by the first capability call only
	capCalls   int
	output     string
	awaitErr   error
	schedules  int
	lastPrompt string
}

func (f *fakeBackend) HasSummaryTaskType(_ context.Context) (bool, error) {
	f.capCalls++
	if f.capOnceErr != nil && f.capCalls == 1 {
		return false, f.capOnceErr
	}
	return f.hasType, f.capErr
}

func (f *fakeBackend) Schedule(_ context.Context, prompt string) (*textproc.Task, error) {
	f.schedules++
	f.lastPrompt = prompt
	return &textproc.Task{ID: 42, Status: "SCHEDULED"}, nil
}

func (f *fakeBackend) Await(_ context.Context, id int64) (string, error) {
	if f.awaitErr != nil {
		return "", f.awaitErr
	}
	return f.output, nil
}

func messagesAt(ts time.Time, texts ...string) []store.Message {
	msgs := make([]store.Message, len(texts))
	for i, text := range texts {
		msgs[i] = store.Message{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			RoomID:    "R1",
			Actor:     "Alice",
			Message:   text,
		}
	}
	return msgs
}

func TestSummarizeShortCircuitsOnEmptyWindow(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{hasType: true, output: "should not be used"}
	g := New(&fakeSource{}, backend, time.UTC, nil)

	got, err := g.Summarize(context.Background(), "R1", "Team", 3*time.Hour+40*time.Minute)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != NoConversationReply {
		t.Errorf("reply = %q, want the fixed no-conversation reply", got)
	}
	if backend.schedules != 0 {
		t.Errorf("backend was called %d times, want 0", backend.schedules)
	}
}

func TestSummarizeSuccess(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{hasType: true, output: "- they agreed on the plan"}
	src := &fakeSource{messages: messagesAt(time.Now().Add(-time.Hour), "hello", "let's agree on the plan")}
	g := New(src, backend, time.UTC, nil)

	got, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if !strings.Contains(got, "they agreed on the plan") {
		t.Errorf("reply %q does not contain the generated summary", got)
	}
	if !strings.Contains(got, "Team") {
		t.Errorf("reply %q does not name the room", got)
	}
	if !strings.Contains(got, "All times are UTC") {
		t.Errorf("reply %q is missing the timezone provenance note", got)
	}
	if strings.Contains(got, "left out") {
		t.Errorf("reply %q has a truncation note although nothing was truncated", got)
	}
	if !strings.Contains(backend.lastPrompt, "let's agree on the plan") {
		t.Errorf("prompt does not embed the transcript: %q", backend.lastPrompt)
	}
}

func TestSummarizeTruncationNote(t *testing.T) {
	t.Parallel()

	// Enough oversized messages that the window must drop some.
	big := strings.Repeat("x", window.MaxCharacters/4)
	src := &fakeSource{messages: messagesAt(time.Now().Add(-time.Hour), big, big, big, big, big, big)}
	backend := &fakeBackend{hasType: true, output: "summary"}
	g := New(src, backend, time.UTC, nil)

	got, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(got, "left out") {
		t.Errorf("reply %q is missing the truncation note", got)
	}
}

func TestSummarizeBackendMissingCapability(t *testing.T) {
	t.Parallel()

	src := &fakeSource{messages: messagesAt(time.Now(), "hi")}
	g := New(src, &fakeBackend{hasType: false}, time.UTC, nil)

	_, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if !errors.Is(err, textproc.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestSummarizeRetriesCapabilityCheckAfterError(t *testing.T) {
	t.Parallel()

	// The first capability call hits a transient outage; the backend is
	// healthy again by the second summarization.
	backend := &fakeBackend{hasType: true, output: "summary", capOnceErr: errors.New("transient outage")}
	src := &fakeSource{messages: messagesAt(time.Now().Add(-time.Hour), "hi")}
	g := New(src, backend, time.UTC, nil)

	if _, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour); err == nil ||
		!strings.Contains(err.Error(), "transient outage") {
		t.Fatalf("first call: err = %v, want the transient failure", err)
	}

	got, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if err != nil {
		t.Fatalf("second call after recovery: %v", err)
	}
	if !strings.Contains(got, "summary") {
		t.Errorf("reply = %q, want the generated summary", got)
	}
	if backend.capCalls != 2 {
		t.Errorf("capability calls = %d, want a fresh check after the failure", backend.capCalls)
	}
}

func TestSummarizeCachesPositiveCapabilityCheck(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{hasType: true, output: "summary"}
	src := &fakeSource{messages: messagesAt(time.Now().Add(-time.Hour), "hi")}
	g := New(src, backend, time.UTC, nil)

	for i := 0; i < 3; i++ {
		if _, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if backend.capCalls != 1 {
		t.Errorf("capability calls = %d, want the positive result cached", backend.capCalls)
	}
}

func TestSummarizeLLMFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{messages: messagesAt(time.Now(), "hi")}
	backend := &fakeBackend{hasType: true, awaitErr: textproc.ErrTaskFailed}
	g := New(src, backend, time.UTC, nil)

	_, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if !errors.Is(err, textproc.ErrTaskFailed) {
		t.Errorf("err = %v, want ErrTaskFailed", err)
	}
}

func TestSummarizeStoreFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("disk on fire")}
	g := New(src, &fakeBackend{hasType: true}, time.UTC, nil)

	_, err := g.Summarize(context.Background(), "R1", "Team", 24*time.Hour)
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("err = %v, want wrapped store failure", err)
	}
}
