package bot

import (
	"context"
	"strings"

	"github.com/talksum/talksum/pkg/talksum/metrics"
	"github.com/talksum/talksum/pkg/talksum/store"
	"github.com/talksum/talksum/pkg/talksum/talk"
)

// activityTemplates maps templated system message names to human-readable
// sentences. Placeholders name rich parameters of the event; a template
// referencing a parameter the event does not carry is dropped with a
// warning. System messages without a template here are dropped silently —
// most carry no conversational content worth summarizing.
var activityTemplates = map[string]string{
	"user_added":           "{actor} added {user} to the room",
	"user_removed":         "{actor} removed {user} from the room",
	"call_joined":          "{actor} joined the call",
	"call_left":            "{actor} left the call",
	"call_started":         "{actor} started a call",
	"call_ended":           "{actor} ended the call",
	"file_shared":          "{actor} shared the file {file}",
	"object_shared":        "{actor} shared {object}",
	"poll_closed":          "{actor} closed the poll {poll}",
	"conversation_renamed": "{actor} renamed the room to {newName}",
}

// storableMediaTypes are the media types of regular conversational
// messages. Everything else (voice messages, attachments without text,
// stickers) is rejected as non-text content.
var storableMediaTypes = map[string]bool{
	"":              true,
	"text/plain":    true,
	"text/markdown": true,
}

// ingestMessage appends a regular chat message to the log. Failures are
// logged and swallowed: ingestion is fire-and-forget and never replies.
func (b *Bot) ingestMessage(ctx context.Context, ev *talk.Event, content talk.Content) {
	if ev.Actor.IsBot() {
		metrics.EventsDropped.WithLabelValues("bot_actor").Inc()
		return
	}
	if !storableMediaTypes[ev.Object.MediaType] {
		metrics.EventsDropped.WithLabelValues("media").Inc()
		b.logger.Debug("dropping non-text message",
			"room", ev.Target.ID, "media_type", ev.Object.MediaType)
		return
	}
	if strings.TrimSpace(content.Message) == "" {
		metrics.EventsDropped.WithLabelValues("empty").Inc()
		return
	}

	b.append(ctx, ev, content.Message)
}

// ingestActivity renders a templated system message and stores the result.
func (b *Bot) ingestActivity(ctx context.Context, ev *talk.Event) {
	if ev.Actor.IsBot() {
		metrics.EventsDropped.WithLabelValues("bot_actor").Inc()
		return
	}

	template, ok := activityTemplates[ev.Object.Name]
	if !ok {
		metrics.EventsDropped.WithLabelValues("unknown_template").Inc()
		return
	}

	content, err := ev.Object.DecodeContent()
	if err != nil {
		b.logger.Warn("undecodable activity content, dropping",
			"room", ev.Target.ID, "template", ev.Object.Name, "error", err)
		metrics.EventsDropped.WithLabelValues("missing_param").Inc()
		return
	}

	text, ok := renderActivity(template, content.Parameters)
	if !ok {
		metrics.EventsDropped.WithLabelValues("missing_param").Inc()
		b.logger.Warn("activity template references missing parameter, dropping",
			"room", ev.Target.ID, "template", ev.Object.Name)
		return
	}

	b.append(ctx, ev, text)
}

func (b *Bot) append(ctx context.Context, ev *talk.Event, text string) {
	msg := store.Message{
		Timestamp: b.now(),
		RoomID:    ev.Target.ID,
		Actor:     ev.Actor.Name,
		Message:   text,
	}
	if err := b.store.Append(ctx, msg); err != nil {
		// Fire-and-forget write: there is no sender-facing request to
		// answer, so a failed append is only logged.
		b.logger.Error("failed to store message", "room", ev.Target.ID, "error", err)
		return
	}
	metrics.MessagesStored.Inc()
}

// renderActivity substitutes {name} placeholders with the display names of
// the event's rich parameters. Returns false when a placeholder has no
// matching parameter.
func renderActivity(template string, params map[string]talk.Parameter) (string, bool) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		name := rest[open+1 : open+closing]
		param, ok := params[name]
		if !ok || param.Name == "" {
			return "", false
		}
		b.WriteString(rest[:open])
		b.WriteString(param.Name)
		rest = rest[open+closing+1:]
	}
}
