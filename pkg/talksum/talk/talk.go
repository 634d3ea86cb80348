// Package talk models inbound Talk bot events and implements the outbound
// "send message to room" call. Both directions are authenticated with an
// HMAC-SHA256 signature over a random nonce plus the payload, using the
// shared bot secret.
package talk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types delivered to the webhook.
const (
	// EventCreate is a regular chat message.
	EventCreate = "Create"
	// EventActivity is a templated system message (join, leave, file
	// upload, poll, object creation, ...).
	EventActivity = "Activity"
)

// Event is one inbound bot webhook payload.
type Event struct {
	Type   string `json:"type"`
	Actor  Actor  `json:"actor"`
	Object Object `json:"object"`
	Target Target `json:"target"`
}

// Actor identifies who produced the event.
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsBot reports whether the actor is another bot. Bot actors carry a
// "bots/" id prefix.
func (a Actor) IsBot() bool {
	return strings.HasPrefix(a.ID, "bots/")
}

// Object carries the event content. For chat messages Content is a JSON
// document holding the message text and the structured parameters of
// system messages.
type Object struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	MediaType string `json:"mediaType"`
}

// Target is the room the event happened in.
type Target struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Parameter is one named rich parameter of a templated system message.
type Parameter struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Content is the decoded Object.Content document.
type Content struct {
	Message    string               `json:"message"`
	Parameters map[string]Parameter `json:"parameters"`
}

// DecodeContent parses Object.Content. Parameters may be absent or encoded
// as an empty JSON array by the server; both decode to a nil map.
func (o Object) DecodeContent() (Content, error) {
	var c Content
	if o.Content == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(o.Content), &c); err != nil {
		// Servers encode "no parameters" as [] which breaks the map
		// field; retry with the message alone.
		var msgOnly struct {
			Message string `json:"message"`
		}
		if err2 := json.Unmarshal([]byte(o.Content), &msgOnly); err2 != nil {
			return c, fmt.Errorf("decode object content: %w", err)
		}
		c.Message = msgOnly.Message
	}
	return c, nil
}

// Sign computes the hex HMAC-SHA256 of random+payload with the shared
// secret.
func Sign(secret, random string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(random))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook signature in constant time.
func VerifySignature(secret, random, signature string, body []byte) bool {
	if random == "" || signature == "" {
		return false
	}
	expected := Sign(secret, random, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Client sends messages to rooms through the bot API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the given server base URL and bot secret.
func NewClient(baseURL, secret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "talk"),
	}
}

// SendMessage posts text to the room. The request is signed with the bot
// secret over a fresh random nonce plus the message body.
func (c *Client) SendMessage(ctx context.Context, roomID, text string) error {
	random := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	payload := map[string]string{
		"message":     text,
		"referenceId": uuid.NewString(),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/ocs/v2.php/apps/spreed/v1/bot/%s/message", c.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("X-Nextcloud-Talk-Bot-Random", random)
	req.Header.Set("X-Nextcloud-Talk-Bot-Signature", Sign(c.secret, random, []byte(text)))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message to room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message to room %s: status %d: %s", roomID, resp.StatusCode, data)
	}

	c.logger.Debug("message sent", "room", roomID, "chars", len(text))
	return nil
}
