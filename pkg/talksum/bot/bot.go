// Package bot wires the pieces together: it classifies inbound Talk events,
// stores conversational messages, dispatches bot-mention commands, and
// answers them. Events are processed by a small bounded worker pool so a
// slow summarization never blocks the webhook receive path.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/talksum/talksum/pkg/talksum/metrics"
	"github.com/talksum/talksum/pkg/talksum/scheduler"
	"github.com/talksum/talksum/pkg/talksum/store"
	"github.com/talksum/talksum/pkg/talksum/summarize"
	"github.com/talksum/talksum/pkg/talksum/talk"
)

// Messenger sends a message to a room. Implemented by talk.Client.
type Messenger interface {
	SendMessage(ctx context.Context, roomID, text string) error
}

// Summarizer produces the reply text for a room summary request.
// Implemented by summarize.Generator.
type Summarizer interface {
	Summarize(ctx context.Context, roomID, roomName string, lookback time.Duration) (string, error)
}

// MessageStore is the write/read surface of the message log used here.
type MessageStore interface {
	Append(ctx context.Context, msg store.Message) error
}

// Config holds bot behavior settings.
type Config struct {
	// Trigger is the mention that addresses the bot (e.g. "@summary").
	Trigger string `yaml:"trigger"`

	// Workers is the event worker pool size.
	Workers int `yaml:"workers"`

	// QueueSize bounds the inbound event queue.
	QueueSize int `yaml:"queue_size"`
}

// Bot routes inbound events and answers commands.
type Bot struct {
	cfg       Config
	store     MessageStore
	scheduler *scheduler.Scheduler
	gen       Summarizer
	messenger Messenger
	logger    *slog.Logger

	queue chan *talk.Event
	wg    sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Bot.
func New(cfg Config, st MessageStore, sched *scheduler.Scheduler, gen Summarizer, messenger Messenger, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Trigger == "" {
		cfg.Trigger = "@summary"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Bot{
		cfg:       cfg,
		store:     st,
		scheduler: sched,
		gen:       gen,
		messenger: messenger,
		logger:    logger.With("component", "bot"),
		queue:     make(chan *talk.Event, cfg.QueueSize),
		now:       time.Now,
	}
}

// Start launches the worker pool.
func (b *Bot) Start(ctx context.Context) {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
	b.logger.Info("bot started", "trigger", b.cfg.Trigger, "workers", b.cfg.Workers)
}

// Stop drains the workers. Pending queued events are processed first.
func (b *Bot) Stop() {
	close(b.queue)
	b.wg.Wait()
	b.logger.Info("bot stopped")
}

// Enqueue hands an event to the worker pool without blocking. Returns false
// when the queue is full; the event is dropped and counted.
func (b *Bot) Enqueue(ev *talk.Event) bool {
	metrics.EventsReceived.Inc()
	select {
	case b.queue <- ev:
		return true
	default:
		metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		b.logger.Warn("event queue full, dropping event", "room", ev.Target.ID)
		return false
	}
}

func (b *Bot) worker(ctx context.Context) {
	defer b.wg.Done()
	for ev := range b.queue {
		b.Handle(ctx, ev)
	}
}

// Handle processes one inbound event: a bot-mention command is dispatched,
// everything else goes through ingestion. Never both.
func (b *Bot) Handle(ctx context.Context, ev *talk.Event) {
	if ev.Type == talk.EventCreate {
		content, err := ev.Object.DecodeContent()
		if err != nil {
			b.logger.Warn("undecodable event content, dropping",
				"room", ev.Target.ID, "error", err)
			return
		}
		if rest, ok := b.mention(content.Message); ok {
			b.dispatch(ctx, ev, rest)
			return
		}
		b.ingestMessage(ctx, ev, content)
		return
	}
	b.ingestActivity(ctx, ev)
}

// HandleJob is the scheduler fire handler: a fired job summarizes the last
// 24 hours of its room and posts the result there.
func (b *Bot) HandleJob(ctx context.Context, job *scheduler.Job) error {
	metrics.JobsFired.Inc()

	text, err := b.gen.Summarize(ctx, job.RoomID, job.RoomName, summarize.DefaultLookback)
	if err != nil {
		metrics.JobFailures.Inc()
		return err
	}
	if err := b.messenger.SendMessage(ctx, job.RoomID, text); err != nil {
		metrics.JobFailures.Inc()
		return err
	}
	return nil
}

// mention strips the bot trigger from a message. Returns the remaining
// command text and whether the message addressed the bot at all.
func (b *Bot) mention(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == b.cfg.Trigger {
		return "", true
	}
	if strings.HasPrefix(trimmed, b.cfg.Trigger+" ") {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, b.cfg.Trigger+" ")), true
	}
	return "", false
}

// reply sends text to the event's room. Send failures are logged; there is
// nothing else to do with them.
func (b *Bot) reply(ctx context.Context, roomID, text string) {
	if err := b.messenger.SendMessage(ctx, roomID, text); err != nil {
		b.logger.Error("failed to send reply", "room", roomID, "error", err)
	}
}
