package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"perp-basis-alerts/internal/dedup"
)

// Redis keeps alert records in a single hash: field = token, value = JSON
// {timestamp, message}.
type Redis struct {
	rdb *redis.Client
	key string
}

type hashEntry struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// NewRedis returns a record backend writing to the hash at key.
func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

func (r *Redis) Name() string { return "redis:" + r.key }

// Load reads the hash, ordered by alert time then token.
func (r *Redis) Load(ctx context.Context) ([]dedup.Record, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", r.key, err)
	}
	return decodeHash(fields)
}

// Save replaces the hash atomically.
func (r *Redis) Save(ctx context.Context, records []dedup.Record) error {
	values, err := encodeHash(records)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace %s: %w", r.key, err)
	}
	return nil
}

func encodeHash(records []dedup.Record) (map[string]any, error) {
	values := make(map[string]any, len(records))
	for _, rec := range records {
		if rec.Token == "" {
			continue
		}
		data, err := json.Marshal(hashEntry{Timestamp: rec.Timestamp, Message: rec.Message})
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.Token, err)
		}
		values[rec.Token] = string(data)
	}
	return values, nil
}

func decodeHash(fields map[string]string) ([]dedup.Record, error) {
	records := make([]dedup.Record, 0, len(fields))
	for token, raw := range fields {
		var entry hashEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", token, err)
		}
		records = append(records, dedup.Record{Token: token, Timestamp: entry.Timestamp, Message: entry.Message})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp < records[j].Timestamp
		}
		return records[i].Token < records[j].Token
	})
	return records, nil
}

var _ dedup.Backend = (*Redis)(nil)
