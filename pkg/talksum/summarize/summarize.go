// Package summarize turns a room's recent conversation into an AI-generated
// summary: query the message log, build the bounded context window, submit
// the prompt to the text-processing backend, and compose the reply with
// provenance notes.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/talksum/talksum/pkg/talksum/store"
	"github.com/talksum/talksum/pkg/talksum/textproc"
	"github.com/talksum/talksum/pkg/talksum/window"
)

// DefaultLookback is the time span gathered when no explicit duration is
// given, and the fixed span used by fired scheduled jobs.
const DefaultLookback = 24 * time.Hour

// NoConversationReply is the fixed reply for a window with zero messages.
// Not an error: the backend is never contacted in this case.
const NoConversationReply = "There was no conversation since I joined — nothing to summarize yet."

// promptTemplate instructs the backend. The transcript lines follow the
// format described in the template body.
const promptTemplate = `You are a secretary tasked with writing a concise, fact-preserving summary of a chat log.

The chat log is contained between the markers ***CHAT_LOG_START*** and ***CHAT_LOG_END***. Each line is formatted as:
[2024-01-31 17:33:27] Participant name: message

***CHAT_LOG_START***
%s***CHAT_LOG_END***

Write a concise summary of the conversation as short bullet points. Do not leave out important facts, decisions, or open questions. Use human-readable time references (for example "this morning" or "around 17:30") instead of raw timestamps.`

// MessageSource is the read side of the message log.
type MessageSource interface {
	Since(ctx context.Context, roomID string, since time.Time) ([]store.Message, error)
}

// Backend is the asynchronous text-processing service.
type Backend interface {
	HasSummaryTaskType(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, prompt string) (*textproc.Task, error)
	Await(ctx context.Context, id int64) (string, error)
}

// Generator produces room summaries.
type Generator struct {
	source   MessageSource
	backend  Backend
	location *time.Location
	logger   *slog.Logger

	// A positive capability check is cached for the process lifetime; a
	// failed or negative check is retried on the next call so a transient
	// backend outage does not poison every later summarization.
	capMu sync.Mutex
	capOK bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Generator. location names the timezone used for all time
// references in replies; nil means server-local.
func New(source MessageSource, backend Backend, location *time.Location, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.Local
	}
	return &Generator{
		source:   source,
		backend:  backend,
		location: location,
		logger:   logger.With("component", "summarize"),
		now:      time.Now,
	}
}

// Summarize gathers the room's messages from the lookback window and
// returns the reply text to post. A window with zero messages
// short-circuits to NoConversationReply without touching the backend.
func (g *Generator) Summarize(ctx context.Context, roomID, roomName string, lookback time.Duration) (string, error) {
	since := g.now().Add(-lookback)

	messages, err := g.source.Since(ctx, roomID, since)
	if err != nil {
		return "", fmt.Errorf("query message log: %w", err)
	}
	if len(messages) == 0 {
		g.logger.Info("no conversation in lookback window",
			"room", roomID, "lookback", lookback.String())
		return NoConversationReply, nil
	}

	if err := g.checkCapability(ctx); err != nil {
		return "", err
	}

	win := window.Build(messages)
	prompt := fmt.Sprintf(promptTemplate, win.Transcript)

	g.logger.Info("submitting summary task",
		"room", roomID,
		"messages", win.Messages,
		"transcript_chars", win.Length,
		"truncated", win.Truncated(),
	)

	task, err := g.backend.Schedule(ctx, prompt)
	if err != nil {
		return "", err
	}
	text, err := g.backend.Await(ctx, task.ID)
	if err != nil {
		return "", err
	}

	return g.compose(roomName, text, win), nil
}

// checkCapability verifies the backend offers the summary task type. Only
// a positive answer is cached.
func (g *Generator) checkCapability(ctx context.Context) error {
	g.capMu.Lock()
	defer g.capMu.Unlock()

	if g.capOK {
		return nil
	}
	ok, err := g.backend.HasSummaryTaskType(ctx)
	if err != nil {
		return fmt.Errorf("capability check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: task type %s not offered", textproc.ErrUnavailable, textproc.SummaryTaskType)
	}
	g.capOK = true
	return nil
}

// compose wraps the generated summary with provenance notes: the timezone
// all time references use and, when the window was truncated, the cutoff.
func (g *Generator) compose(roomName, summary string, win *window.Window) string {
	var b strings.Builder
	b.WriteString("**Summary for ")
	b.WriteString(roomName)
	b.WriteString(":**\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n_All times are ")
	b.WriteString(g.location.String())
	b.WriteString("._")
	if win.Truncated() {
		b.WriteString(fmt.Sprintf("\n_Messages older than %s were left out to fit the summary window._",
			win.Cutoff.In(g.location).Format("2006-01-02 15:04:05")))
	}
	return b.String()
}
