// Package buffer coalesces bursts of inbound messages from one sender into a
// single unit of work. WhatsApp users often send multi-part messages in quick
// succession (name, then surname, then the actual question); debouncing avoids
// running the conversation pipeline once per fragment while bounding added
// latency to the debounce window.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// Message is one buffered inbound message fragment.
type Message struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	ContactName   string    `json:"contact_name,omitempty"`
	ButtonPayload string    `json:"button_payload,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Combined is the drained batch: all fragment texts joined in arrival order,
// with the first fragment's metadata as representative metadata.
type Combined struct {
	Key           string
	Text          string
	MessageID     string
	ContactName   string
	ButtonPayload string
	Count         int
}

// DrainFunc processes one combined batch. It runs while the per-identity lock
// is held, so batches for the same identity never overlap.
type DrainFunc func(ctx context.Context, batch Combined) error

// Buffer is a Redis-backed per-identity debouncer. Both the batch and the
// processing lock live in Redis so multiple instances can share identities.
type Buffer struct {
	redis   *redis.Client
	window  time.Duration
	lockTTL time.Duration
	logger  *logging.Logger
}

// Option customizes buffer behavior.
type Option func(*Buffer)

// WithWindow sets the debounce window (fixed at first arrival, not sliding).
func WithWindow(window time.Duration) Option {
	return func(b *Buffer) {
		if window > 0 {
			b.window = window
		}
	}
}

// WithLockTTL bounds how long a crashed drainer can starve an identity.
func WithLockTTL(ttl time.Duration) Option {
	return func(b *Buffer) {
		if ttl > 0 {
			b.lockTTL = ttl
		}
	}
}

// New creates a buffer around the provided Redis client.
func New(rdb *redis.Client, logger *logging.Logger, opts ...Option) *Buffer {
	if rdb == nil {
		panic("buffer: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	b := &Buffer{
		redis:   rdb,
		window:  6 * time.Second,
		lockTTL: 30 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window returns the configured debounce window.
func (b *Buffer) Window() time.Duration {
	return b.window
}

// Add appends a message to the identity's batch and reports whether it was the
// first of the batch. The caller schedules DrainAfter exactly when first is
// true; later arrivals ride on the already-armed deadline.
func (b *Buffer) Add(ctx context.Context, key string, msg Message) (first bool, err error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("buffer: encode message: %w", err)
	}

	pipe := b.redis.TxPipeline()
	push := pipe.RPush(ctx, batchKey(key), data)
	// Safety net so abandoned batches do not leak; normal drains delete the key.
	pipe.Expire(ctx, batchKey(key), b.window*10)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("buffer: append message: %w", err)
	}
	return push.Val() == 1, nil
}

// DrainAfter sleeps until the debounce deadline, then drains the batch under
// the per-identity lock and forwards it to fn. If another drain already holds
// the lock (duplicate scheduling) it exits without side effects. The lock is
// released on every exit path, including panics.
func (b *Buffer) DrainAfter(ctx context.Context, key string, fn DrainFunc) error {
	timer := time.NewTimer(b.window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return b.Drain(ctx, key, fn)
}

// Drain acquires the identity lock and processes the pending batch immediately.
func (b *Buffer) Drain(ctx context.Context, key string, fn DrainFunc) error {
	token := uuid.NewString()
	acquired, err := b.redis.SetNX(ctx, lockKey(key), token, b.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("buffer: acquire lock: %w", err)
	}
	if !acquired {
		b.logger.Debug("buffer drain skipped: lock held", "key", key)
		return nil
	}
	defer b.release(key, token)

	batch, err := b.take(ctx, key)
	if err != nil {
		return err
	}
	if batch.Count == 0 {
		return nil
	}
	return fn(ctx, batch)
}

// take reads and clears the batch atomically.
func (b *Buffer) take(ctx context.Context, key string) (Combined, error) {
	pipe := b.redis.TxPipeline()
	items := pipe.LRange(ctx, batchKey(key), 0, -1)
	pipe.Del(ctx, batchKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return Combined{}, fmt.Errorf("buffer: read batch: %w", err)
	}

	raw := items.Val()
	if len(raw) == 0 {
		return Combined{Key: key}, nil
	}

	texts := make([]string, 0, len(raw))
	var first Message
	haveFirst := false
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			b.logger.Warn("buffer: dropping undecodable fragment", "key", key, "error", err)
			continue
		}
		// Metadata comes from the earliest fragment that decoded, so a
		// corrupt head does not ship the batch with empty identity.
		if !haveFirst {
			first = msg
			haveFirst = true
		}
		if msg.Text != "" {
			texts = append(texts, msg.Text)
		}
	}

	return Combined{
		Key:           key,
		Text:          strings.Join(texts, "\n"),
		MessageID:     first.ID,
		ContactName:   first.ContactName,
		ButtonPayload: first.ButtonPayload,
		Count:         len(raw),
	}, nil
}

// release deletes the lock only if we still own it. Uses a fresh context so
// the lock is freed even when the caller's context is already cancelled.
func (b *Buffer) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, b.redis, []string{lockKey(key)}, token).Err(); err != nil && err != redis.Nil {
		b.logger.Warn("buffer: failed to release lock", "key", key, "error", err)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func batchKey(key string) string {
	return "buffer:batch:" + key
}

func lockKey(key string) string {
	return "buffer:lock:" + key
}
