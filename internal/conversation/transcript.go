package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	transcriptMaxMessages = 50
	transcriptTTL         = 72 * time.Hour
)

// TranscriptMessage is one line of a conversation transcript.
type TranscriptMessage struct {
	Role      string    `json:"role"` // "patient" or "assistant"
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders the message for operator-facing views.
func (m TranscriptMessage) Line() string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), m.Role, m.Body)
}

// TranscriptStore keeps a TTL-bounded rolling transcript per conversation in
// Redis, for escalation emails and the admin takeover view.
type TranscriptStore struct {
	redis *redis.Client
}

// NewTranscriptStore creates a transcript store.
func NewTranscriptStore(redisClient *redis.Client) *TranscriptStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &TranscriptStore{redis: redisClient}
}

func (t *TranscriptStore) key(clinicID, phone string) string {
	return "transcript:" + clinicID + ":" + phone
}

// Append adds a message and trims the transcript to its rolling window.
func (t *TranscriptStore) Append(ctx context.Context, clinicID, phone string, msg TranscriptMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: encode transcript message: %w", err)
	}
	key := t.key(clinicID, phone)
	pipe := t.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -transcriptMaxMessages, -1)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: append transcript: %w", err)
	}
	return nil
}

// Recent returns up to n most recent messages, oldest first.
func (t *TranscriptStore) Recent(ctx context.Context, clinicID, phone string, n int) ([]TranscriptMessage, error) {
	if n <= 0 {
		n = 10
	}
	raw, err := t.redis.LRange(ctx, t.key(clinicID, phone), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: read transcript: %w", err)
	}
	messages := make([]TranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg TranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// RecentLines renders the recent transcript for operator notifications.
func (t *TranscriptStore) RecentLines(ctx context.Context, clinicID, phone string, n int) []string {
	messages, err := t.Recent(ctx, clinicID, phone, n)
	if err != nil {
		return nil
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, msg.Line())
	}
	return lines
}
