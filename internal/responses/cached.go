package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

// DefaultCacheTTL bounds how long a cached bundle may be served.
const DefaultCacheTTL = 10 * time.Minute

// CachedStore caches bundles of another Store in Redis. Every write drops the
// unit's entry and bumps a per-learner version counter. Reads fill the cache
// only if that counter did not move while the backing store was read, so a
// bundle fetched before a concurrent write is never cached after it.
type CachedStore struct {
	next   Store
	client redis.Cmdable
	ttl    time.Duration
}

// NewCachedStore wraps next. A zero ttl selects DefaultCacheTTL.
func NewCachedStore(next Store, client redis.Cmdable, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{next: next, client: client, ttl: ttl}
}

// Keys of one learner share a cluster hash slot so fillScript may touch them
// together.
func bundleKey(learnerID, unitID string) string {
	return cache.Key("resp", "{"+learnerID+"}", unitID)
}

func versionKey(learnerID string) string {
	return cache.Key("resp-ver", "{"+learnerID+"}")
}

// fillScript sets KEYS[2..] to ARGV[3..] with a PX ttl of ARGV[2] while
// KEYS[1] still holds ARGV[1]. A missing counter reads as "0".
var fillScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
for i = 2, #KEYS do
	redis.call("SET", KEYS[i], ARGV[i + 1], "PX", ARGV[2])
end
return 1
`)

func (s *CachedStore) Get(ctx context.Context, learnerID, unitID string) (progression.Bundle, error) {
	raw, err := s.client.Get(ctx, bundleKey(learnerID, unitID)).Bytes()
	switch {
	case err == nil:
		var b progression.Bundle
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
		slog.Warn("dropping undecodable cached bundle", "learner_id", learnerID, "unit_id", unitID)
	case !errors.Is(err, redis.Nil):
		slog.Warn("response cache read failed", "learner_id", learnerID, "error", err)
	}

	version, fill := s.readVersion(ctx, learnerID)
	b, err := s.next.Get(ctx, learnerID, unitID)
	if err != nil {
		return nil, err
	}
	if fill {
		s.put(ctx, learnerID, version, progression.ResponseMap{unitID: b})
	}
	return b, nil
}

func (s *CachedStore) Snapshot(ctx context.Context, learnerID string, unitIDs []string) (progression.ResponseMap, error) {
	out := progression.ResponseMap{}
	if len(unitIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(unitIDs))
	for i, id := range unitIDs {
		keys[i] = bundleKey(learnerID, id)
	}

	missing := unitIDs
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("response cache read failed", "learner_id", learnerID, "error", err)
	} else {
		missing = nil
		for i, val := range vals {
			raw, ok := val.(string)
			if !ok {
				missing = append(missing, unitIDs[i])
				continue
			}
			var b progression.Bundle
			if err := json.Unmarshal([]byte(raw), &b); err != nil {
				missing = append(missing, unitIDs[i])
				continue
			}
			out[unitIDs[i]] = b
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	version, fill := s.readVersion(ctx, learnerID)
	fetched, err := s.next.Snapshot(ctx, learnerID, missing)
	if err != nil {
		return nil, err
	}
	for id, b := range fetched {
		out[id] = b
	}
	if fill {
		s.put(ctx, learnerID, version, fetched)
	}
	return out, nil
}

func (s *CachedStore) Submit(ctx context.Context, learnerID, unitID string, fields progression.Bundle) error {
	if err := s.next.Submit(ctx, learnerID, unitID, fields); err != nil {
		return err
	}
	s.invalidate(ctx, learnerID, unitID)
	return nil
}

func (s *CachedStore) MarkComplete(ctx context.Context, learnerID, unitID string) error {
	if err := s.next.MarkComplete(ctx, learnerID, unitID); err != nil {
		return err
	}
	s.invalidate(ctx, learnerID, unitID)
	return nil
}

// Version returns the learner's write counter; 0 if nothing was written since
// the counter expired or the cache was flushed.
func (s *CachedStore) Version(ctx context.Context, learnerID string) (int64, error) {
	v, err := s.client.Get(ctx, versionKey(learnerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read response version: %w", err)
	}
	return v, nil
}

// readVersion returns the raw counter to guard a cache fill with. fill is
// false when the cache cannot be read.
func (s *CachedStore) readVersion(ctx context.Context, learnerID string) (version string, fill bool) {
	v, err := s.client.Get(ctx, versionKey(learnerID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		return "", false
	}
	return v, true
}

func (s *CachedStore) put(ctx context.Context, learnerID, version string, bundles progression.ResponseMap) {
	if len(bundles) == 0 {
		return
	}
	keys := []string{versionKey(learnerID)}
	args := []any{version, s.ttl.Milliseconds()}
	for id, b := range bundles {
		data, err := json.Marshal(b)
		if err != nil {
			continue
		}
		keys = append(keys, bundleKey(learnerID, id))
		args = append(args, data)
	}
	if len(keys) == 1 {
		return
	}

	filled, err := fillScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		slog.Warn("response cache write failed", "learner_id", learnerID, "error", err)
		return
	}
	if filled == 0 {
		slog.Debug("skipped response cache fill, responses changed during read", "learner_id", learnerID)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, learnerID, unitID string) {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, bundleKey(learnerID, unitID))
	pipe.Incr(ctx, versionKey(learnerID))
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("response cache invalidation failed",
			"learner_id", learnerID,
			"unit_id", unitID,
			"error", err,
		)
	}
}
