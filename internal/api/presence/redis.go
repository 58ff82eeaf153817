package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per user:
//
//	courseline:presence:<userID> -> {"status": "...", "lastSeen": ...}
//
// Online entries carry a TTL so a crashed server node cannot leave a
// user online forever.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type presenceRecord struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(presenceRecord{Status: statusOnline, LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.key(userID), b, s.ttl).Err()
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	b, _ := json.Marshal(presenceRecord{Status: statusOffline, LastSeen: lastSeen.Unix()})
	return s.client.Set(ctx, s.key(userID), b, 0).Err()
}

func (s *RedisStore) Online(ctx context.Context, userIDs ...string) (map[string]bool, error) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make(map[string]bool, len(userIDs))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			out[userIDs[i]] = false
			continue
		}
		var rec presenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			out[userIDs[i]] = false
			continue
		}
		out[userIDs[i]] = rec.Status == statusOnline
	}
	return out, nil
}
