package bot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/talksum/talksum/pkg/talksum/talk"
)

func activityEvent(t *testing.T, roomID, template string, params map[string]talk.Parameter) *talk.Event {
	t.Helper()
	content, err := json.Marshal(map[string]any{"message": template, "parameters": params})
	if err != nil {
		t.Fatal(err)
	}
	return &talk.Event{
		Type:   talk.EventActivity,
		Actor:  talk.Actor{Type: "Person", ID: "users/alice", Name: "Alice"},
		Object: talk.Object{Type: "Activity", Name: template, Content: string(content)},
		Target: talk.Target{Type: "Collection", ID: roomID, Name: "Team"},
	}
}

func TestIngestStoresChatMessage(t *testing.T) {
	t.Parallel()

	b, messenger, _, st := newTestBot(t)
	b.Handle(context.Background(), chatEvent(t, "R1", "Team", "users/alice", "Alice", "good morning"))

	if len(st.appended) != 1 {
		t.Fatalf("stored %d messages, want 1", len(st.appended))
	}
	msg := st.appended[0]
	if msg.RoomID != "R1" || msg.Actor != "Alice" || msg.Message != "good morning" {
		t.Errorf("stored message %+v has wrong fields", msg)
	}
	if len(messenger.replies) != 0 {
		t.Error("ingestion replied to the sender")
	}
}

func TestIngestRejectsBotActors(t *testing.T) {
	t.Parallel()

	b, _, _, st := newTestBot(t)
	b.Handle(context.Background(), chatEvent(t, "R1", "Team", "bots/other-bot", "OtherBot", "beep"))

	if len(st.appended) != 0 {
		t.Errorf("stored %d messages from a bot actor, want 0", len(st.appended))
	}
}

func TestIngestRejectsNonTextMedia(t *testing.T) {
	t.Parallel()

	b, _, _, st := newTestBot(t)
	ev := chatEvent(t, "R1", "Team", "users/alice", "Alice", "")
	ev.Object.MediaType = "audio/ogg"

	b.Handle(context.Background(), ev)
	if len(st.appended) != 0 {
		t.Errorf("stored %d non-text messages, want 0", len(st.appended))
	}
}

func TestIngestSwallowsStoreFailure(t *testing.T) {
	t.Parallel()

	b, messenger, _, st := newTestBot(t)
	st.err = errors.New("disk on fire")

	b.Handle(context.Background(), chatEvent(t, "R1", "Team", "users/alice", "Alice", "hello"))
	if len(messenger.replies) != 0 {
		t.Error("a failed store append produced a user-visible reply")
	}
}

func TestIngestRendersActivityTemplate(t *testing.T) {
	t.Parallel()

	b, _, _, st := newTestBot(t)
	ev := activityEvent(t, "R1", "file_shared", map[string]talk.Parameter{
		"actor": {Type: "user", ID: "alice", Name: "Alice"},
		"file":  {Type: "file", ID: "99", Name: "report.pdf"},
	})

	b.Handle(context.Background(), ev)
	if len(st.appended) != 1 {
		t.Fatalf("stored %d activity messages, want 1", len(st.appended))
	}
	if got := st.appended[0].Message; got != "Alice shared the file report.pdf" {
		t.Errorf("rendered activity = %q", got)
	}
}

func TestIngestDropsUnknownTemplate(t *testing.T) {
	t.Parallel()

	b, _, _, st := newTestBot(t)
	ev := activityEvent(t, "R1", "reaction_revoked", map[string]talk.Parameter{
		"actor": {Type: "user", ID: "alice", Name: "Alice"},
	})

	b.Handle(context.Background(), ev)
	if len(st.appended) != 0 {
		t.Errorf("stored %d messages for an unknown template, want 0", len(st.appended))
	}
}

func TestIngestDropsTemplateWithMissingParameter(t *testing.T) {
	t.Parallel()

	b, _, _, st := newTestBot(t)
	// file_shared references {file}, which the event does not carry.
	ev := activityEvent(t, "R1", "file_shared", map[string]talk.Parameter{
		"actor": {Type: "user", ID: "alice", Name: "Alice"},
	})

	b.Handle(context.Background(), ev)
	if len(st.appended) != 0 {
		t.Errorf("stored %d messages despite a missing parameter, want 0", len(st.appended))
	}
}

func TestRenderActivity(t *testing.T) {
	t.Parallel()

	params := map[string]talk.Parameter{
		"actor": {Name: "Alice"},
		"user":  {Name: "Bob"},
	}

	tests := []struct {
		template string
		want     string
		ok       bool
	}{
		{"{actor} added {user} to the room", "Alice added Bob to the room", true},
		{"{actor} waved", "Alice waved", true},
		{"no placeholders", "no placeholders", true},
		{"{actor} shared the file {file}", "", false},
	}

	for _, tt := range tests {
		got, ok := renderActivity(tt.template, params)
		if ok != tt.ok || got != tt.want {
			t.Errorf("renderActivity(%q) = (%q, %v), want (%q, %v)", tt.template, got, ok, tt.want, tt.ok)
		}
	}
}
