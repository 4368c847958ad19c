// Package feed keeps a short per-account activity feed in Redis. The
// activity_log table is the durable record; the feed is a cache for the
// dashboard's recent-activity panel.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"prodplan/api/internal/store"
)

const (
	keyPrefix  = "prodplan:activity:"
	maxEntries = 100
)

// Publisher pushes committed activity entries into Redis lists, one list per
// account, newest first.
type Publisher struct {
	client *redis.Client
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Publisher{client: client}, nil
}

// NewPublisherWithClient creates a publisher from an existing Redis client.
func NewPublisherWithClient(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func key(accountID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, accountID)
}

// Publish prepends the entry to the account's feed and trims it to
// maxEntries. Failures are logged, never surfaced: the store row is the
// source of truth.
func (p *Publisher) Publish(ctx context.Context, entry store.ActivityEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("feed: marshal activity entry: %v", err)
		return
	}
	k := key(entry.AccountID)
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, k, data)
	pipe.LTrim(ctx, k, 0, maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("feed: publish activity for account %d: %v", entry.AccountID, err)
	}
}

// Recent returns up to limit entries for the account, newest first.
func (p *Publisher) Recent(ctx context.Context, accountID int64, limit int) ([]store.ActivityEntry, error) {
	if limit <= 0 || limit > maxEntries {
		limit = maxEntries
	}
	raw, err := p.client.LRange(ctx, key(accountID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity feed: %w", err)
	}
	entries := make([]store.ActivityEntry, 0, len(raw))
	for _, item := range raw {
		var entry store.ActivityEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			log.Printf("feed: skip malformed entry for account %d: %v", accountID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Ping checks if Redis is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
