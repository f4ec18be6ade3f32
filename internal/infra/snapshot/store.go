// Package snapshot persists guild queues in Redis so a session can pick up
// where it left off after it is torn down.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// Config represents snapshot store configuration.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// record is the stored form of one queued track.
type record struct {
	Identifier    string        `json:"identifier"`
	Title         string        `json:"title"`
	Author        string        `json:"author,omitempty"`
	Duration      time.Duration `json:"duration"`
	URI           string        `json:"uri"`
	Source        string        `json:"source,omitempty"`
	RequesterID   snowflake.ID  `json:"requester_id,omitempty"`
	RequesterName string        `json:"requester_name,omitempty"`
	AddedAt       time.Time     `json:"added_at"`
}

// Store saves and restores guild queues.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}
	return NewWithClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewWithClient creates a store on an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration, prefix string) *Store {
	if prefix == "" {
		prefix = "djbox"
	}
	return &Store{client: client, ttl: ttl, prefix: prefix}
}

// Save stores items for the guild, replacing any previous snapshot.
// An empty queue deletes the snapshot.
func (s *Store) Save(ctx context.Context, guildID snowflake.ID, items []track.QueuedTrack) error {
	if len(items) == 0 {
		return s.Delete(ctx, guildID)
	}

	records := make([]record, 0, len(items))
	for _, item := range items {
		info := item.Handle.Info()
		requester := item.Handle.Requester()
		records = append(records, record{
			Identifier:    info.Identifier,
			Title:         info.Title,
			Author:        info.Author,
			Duration:      info.Duration,
			URI:           info.URI,
			Source:        info.Source,
			RequesterID:   requester.ID,
			RequesterName: requester.Name,
			AddedAt:       item.AddedAt,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	if err := s.client.Set(ctx, s.key(guildID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}

	zlog.Info().Msgf("snapshot: saved: guild=%s tracks=%d", guildID, len(records))
	return nil
}

// Load returns and removes the guild's snapshot. A guild without a snapshot
// yields no items and no error.
func (s *Store) Load(ctx context.Context, guildID snowflake.ID) ([]track.QueuedTrack, error) {
	data, err := s.client.GetDel(ctx, s.key(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load snapshot")
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}

	items := make([]track.QueuedTrack, 0, len(records))
	for _, r := range records {
		h := track.NewHandle(track.Info{
			Identifier: r.Identifier,
			Title:      r.Title,
			Author:     r.Author,
			Duration:   r.Duration,
			URI:        r.URI,
			Source:     r.Source,
		}, track.Requester{ID: r.RequesterID, Name: r.RequesterName})
		items = append(items, track.QueuedTrack{Handle: h, AddedAt: r.AddedAt})
	}

	zlog.Info().Msgf("snapshot: restored: guild=%s tracks=%d", guildID, len(items))
	return items, nil
}

// Delete removes the guild's snapshot.
func (s *Store) Delete(ctx context.Context, guildID snowflake.ID) error {
	if err := s.client.Del(ctx, s.key(guildID)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete snapshot")
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(guildID snowflake.ID) string {
	return fmt.Sprintf("%s:queue:%s", s.prefix, guildID)
}
