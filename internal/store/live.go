package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const liveTTL = 24 * time.Hour

// Live mirrors in-flight match snapshots into redis so a restarted client
// (or the HTTP surface) can find them without touching the SQL store. Every
// method is nil-safe: with no REDIS_URL the mirror simply does nothing.
type Live struct {
	rdb *redis.Client
}

// NewLive connects to redis from a redis:// URL.
func NewLive(redisURL string) (*Live, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for live mirror")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Live{rdb: rdb}, nil
}

func (l *Live) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

// SaveSnapshot stores the JSON-encoded snapshot under the match route.
func (l *Live) SaveSnapshot(ctx context.Context, route string, snap any) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return l.rdb.Set(ctx, matchKey(route), raw, liveTTL).Err()
}

// LoadSnapshot returns the raw snapshot bytes, or nil when absent.
func (l *Live) LoadSnapshot(ctx context.Context, route string) ([]byte, error) {
	if l == nil || l.rdb == nil {
		return nil, nil
	}
	raw, err := l.rdb.Get(ctx, matchKey(route)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return raw, err
}

// IndexUser records that the user participates in the routed match.
func (l *Live) IndexUser(ctx context.Context, userID, route string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	key := userKey(userID)
	if err := l.rdb.SAdd(ctx, key, route).Err(); err != nil {
		return err
	}
	return l.rdb.Expire(ctx, key, liveTTL).Err()
}

// RoutesForUser lists the routes indexed for the user.
func (l *Live) RoutesForUser(ctx context.Context, userID string) ([]string, error) {
	if l == nil || l.rdb == nil {
		return nil, nil
	}
	return l.rdb.SMembers(ctx, userKey(userID)).Result()
}

// Delete drops the snapshot and unindexes the given users.
func (l *Live) Delete(ctx context.Context, route string, userIDs ...string) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	pipe := l.rdb.Pipeline()
	pipe.Del(ctx, matchKey(route))
	for _, id := range userIDs {
		pipe.SRem(ctx, userKey(id), route)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func matchKey(route string) string { return "arena:match:" + strings.TrimSpace(route) }
func userKey(userID string) string { return "arena:index:user:" + strings.TrimSpace(userID) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
