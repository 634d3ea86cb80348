// Package window assembles the bounded transcript handed to the
// summarization backend. It keeps the most recent messages of a room that
// fit a fixed character budget and reports where older conversation was
// cut off.
package window

import (
	"strings"
	"time"

	"github.com/talksum/talksum/pkg/talksum/store"
)

// The character budget is derived from the prompt token budget using
// conservative words-per-token and characters-per-word ratios. The token
// budget already leaves headroom for the generated answer.
const (
	promptTokenBudget = 3072
	wordsPerToken     = 0.75
	charsPerWord      = 6

	// MaxCharacters is the hard ceiling on formatted transcript length.
	MaxCharacters = int(promptTokenBudget * wordsPerToken * charsPerWord)
)

// entryTimeFormat matches the transcript line format the prompt template
// describes to the backend.
const entryTimeFormat = "2006-01-02 15:04:05"

// Window is the bounded transcript for one summarization call.
type Window struct {
	// Transcript is the formatted conversation, oldest message first.
	Transcript string

	// Length is the total formatted character count.
	Length int

	// Messages is the number of messages included.
	Messages int

	// Cutoff is the timestamp of the oldest included message when older
	// messages were dropped to fit the budget; nil when everything fit.
	Cutoff *time.Time
}

// Truncated reports whether older messages were dropped.
func (w *Window) Truncated() bool { return w.Cutoff != nil }

// formatEntry renders one message as a tagged transcript line.
func formatEntry(m store.Message) string {
	return "[" + m.Timestamp.Format(entryTimeFormat) + "] " + m.Actor + ": " + m.Message + "\n"
}

// Build selects the most recent messages that fit the character budget.
// Input must be ascending by timestamp (as returned by store.Since). The
// walk runs newest to oldest, prepending entries until the next one would
// exceed the budget; the returned transcript is nevertheless chronological.
//
// If not even the newest message fits, the single earliest message is
// returned unconditionally with no cutoff, so the prompt is never empty.
func Build(messages []store.Message) *Window {
	if len(messages) == 0 {
		return &Window{}
	}

	var (
		entries []string
		total   int
	)
	included := 0
	for i := len(messages) - 1; i >= 0; i-- {
		entry := formatEntry(messages[i])
		if total+len(entry) > MaxCharacters {
			break
		}
		entries = append([]string{entry}, entries...)
		total += len(entry)
		included++
	}

	if included == 0 {
		// Nothing fits: fall back to the single earliest message.
		entry := formatEntry(messages[0])
		return &Window{
			Transcript: entry,
			Length:     len(entry),
			Messages:   1,
		}
	}

	w := &Window{
		Transcript: strings.Join(entries, ""),
		Length:     total,
		Messages:   included,
	}
	if included < len(messages) {
		oldest := messages[len(messages)-included].Timestamp
		w.Cutoff = &oldest
	}
	return w
}
