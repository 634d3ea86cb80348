package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talksum/talksum/pkg/talksum/command"
	"github.com/talksum/talksum/pkg/talksum/metrics"
	"github.com/talksum/talksum/pkg/talksum/scheduler"
	"github.com/talksum/talksum/pkg/talksum/summarize"
	"github.com/talksum/talksum/pkg/talksum/talk"
	"github.com/talksum/talksum/pkg/talksum/textproc"
)

// commandLabel maps parsed command kinds to metric label values.
var commandLabel = map[command.Kind]string{
	command.Summarize: "summarize",
	command.AddJob:    "add",
	command.ListJobs:  "list",
	command.DeleteJob: "delete",
	command.Help:      "help",
	command.Unknown:   "unknown",
	command.Invalid:   "invalid",
}

// dispatch handles one bot-mention command. Every branch replies at least
// once; a command is never left silently unanswered.
func (b *Bot) dispatch(ctx context.Context, ev *talk.Event, text string) {
	cmd := command.Parse(text)
	metrics.CommandsHandled.WithLabelValues(commandLabel[cmd.Kind]).Inc()

	roomID := ev.Target.ID
	roomName := ev.Target.Name

	b.logger.Info("handling command",
		"room", roomID, "kind", commandLabel[cmd.Kind], "from", ev.Actor.Name)

	switch cmd.Kind {
	case command.Summarize:
		lookback := cmd.Lookback
		if lookback == 0 {
			lookback = summarize.DefaultLookback
		}
		b.summarizeNow(ctx, roomID, roomName, lookback)

	case command.AddJob:
		b.addJob(ctx, roomID, roomName, cmd.Hour, cmd.Minute)

	case command.ListJobs:
		b.listJobs(ctx, roomID, roomName)

	case command.DeleteJob:
		b.deleteJob(ctx, roomID, roomName, cmd.JobID)

	case command.Invalid:
		b.reply(ctx, roomID, cmd.Hint)

	case command.Help:
		b.reply(ctx, roomID, b.helpText("I am happy to help, these are the commands you can use:"))

	default:
		b.reply(ctx, roomID, b.helpText("You gave me a command I don't understand, these are the available commands:"))
	}
}

// summarizeNow runs an immediate summary and posts the result or a
// user-visible failure message. This call blocks the worker for the whole
// backend poll loop.
func (b *Bot) summarizeNow(ctx context.Context, roomID, roomName string, lookback time.Duration) {
	text, err := b.gen.Summarize(ctx, roomID, roomName, lookback)
	if err != nil {
		b.logger.Error("summarization failed", "room", roomID, "error", err)
		switch {
		case errors.Is(err, textproc.ErrUnavailable):
			metrics.SummaryFailures.WithLabelValues("backend").Inc()
			b.reply(ctx, roomID, "The summarization backend is not available right now — please try again later.")
		case errors.Is(err, textproc.ErrTaskFailed):
			metrics.SummaryFailures.WithLabelValues("llm").Inc()
			b.reply(ctx, roomID, "I could not get a summary from the backend.")
		default:
			metrics.SummaryFailures.WithLabelValues("store").Inc()
			b.reply(ctx, roomID, "Something went wrong while creating the summary.")
		}
		return
	}
	if text != summarize.NoConversationReply {
		metrics.SummariesGenerated.Inc()
	}
	b.reply(ctx, roomID, text)
}

func (b *Bot) addJob(ctx context.Context, roomID, roomName string, hour, minute int) {
	job, err := b.scheduler.Add(roomID, roomName, hour, minute)
	switch {
	case errors.Is(err, scheduler.ErrInvalidTime):
		b.reply(ctx, roomID, fmt.Sprintf(
			"%02d:%02d is not a valid time — use add <hour>:<minute> with hour 0-23 and minute 0-59.",
			hour, minute))
	case errors.Is(err, scheduler.ErrJobExists):
		b.reply(ctx, roomID, fmt.Sprintf(
			"Skip — a daily summary job already exists at %s for '%s' with the id: %s",
			job.FireAt(), roomName, job.ID))
	case err != nil:
		b.logger.Error("failed to add job", "room", roomID, "error", err)
		b.reply(ctx, roomID, "Something went wrong while scheduling the job.")
	default:
		b.reply(ctx, roomID, fmt.Sprintf(
			"New: Added a daily summary job at %s for '%s' with the id: %s",
			job.FireAt(), roomName, job.ID))
	}
}

func (b *Bot) listJobs(ctx context.Context, roomID, roomName string) {
	jobs := b.scheduler.List(roomID)
	if len(jobs) == 0 {
		b.reply(ctx, roomID, fmt.Sprintf("No summary jobs scheduled for '%s'", roomName))
		return
	}

	var sb strings.Builder
	sb.WriteString("Scheduled jobs:\n")
	for i, job := range jobs {
		fmt.Fprintf(&sb, "%d. Job ID: %s %s %s\n", i+1, job.ID, job.FireAt(), job.Recurrence())
	}
	b.reply(ctx, roomID, sb.String())
}

func (b *Bot) deleteJob(ctx context.Context, roomID, roomName, jobID string) {
	if err := b.scheduler.Delete(roomID, jobID); err != nil {
		b.reply(ctx, roomID, "You are not authorized to do that — the job belongs to another room.")
		return
	}
	b.reply(ctx, roomID, fmt.Sprintf("Deleted job %s from '%s'", jobID, roomName))
}

// helpText renders the fixed command reference.
func (b *Bot) helpText(lead string) string {
	t := b.cfg.Trigger
	return fmt.Sprintf(`%s

Summarize the last 24 hours:
	%s

Summarize a custom window (e.g. 30m, 3h40m, 1d):
	%s <duration>

Add a daily summary job:
	%s add <hour>:<minute>

List scheduled summary jobs:
	%s list

Delete a summary job:
	%s delete <job_id>

Show this help:
	%s help`, lead, t, t, t, t, t, t)
}
