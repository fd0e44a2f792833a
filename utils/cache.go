package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultCacheTTL = 10 * time.Minute

	// ThreadCacheTTL bounds how long a thread document may outlive a write
	// that raced with the read which produced it.
	ThreadCacheTTL = time.Minute

	// thread keys are dropped once more after this delay, catching documents
	// a concurrent reader computed before the write committed
	threadRedeleteDelay = 500 * time.Millisecond

	// ThreadCachePrefix prefixes cached message thread documents.
	ThreadCachePrefix = "cache:message:thread:"
	// ChannelCachePrefix prefixes cached channel listings.
	ChannelCachePrefix = "cache:channels:"
)

// ThreadCacheKey is the key of the cached thread of a message.
func ThreadCacheKey(messageID uint) string {
	return fmt.Sprintf("%s%d", ThreadCachePrefix, messageID)
}

// CacheGetBytes returns cached bytes for a key from Redis.
func CacheGetBytes(ctx context.Context, key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheSetJSON marshals v and stores it with ttl, or the default TTL when ttl is not positive.
func CacheSetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		Sugar.Warnf("cache marshal failed key=%s err=%v", key, err)
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// CacheDelete removes the given keys.
func CacheDelete(ctx context.Context, keys ...string) {
	rc := GetRedis()
	if rc == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Del(ctx, keys...).Err(); err != nil {
		Sugar.Warnf("cache delete failed keys=%v err=%v", keys, err)
	}
}

// InvalidateThreads drops the cached threads of the given messages now and
// again after a short delay.
func InvalidateThreads(ctx context.Context, messageIDs ...uint) {
	if GetRedis() == nil || len(messageIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(messageIDs))
	for _, id := range Unique(messageIDs) {
		keys = append(keys, ThreadCacheKey(id))
	}
	CacheDelete(ctx, keys...)
	time.AfterFunc(threadRedeleteDelay, func() {
		CacheDelete(context.Background(), keys...)
	})
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(ctx context.Context, prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var cursor uint64
	for {
		keys, cur, err := rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			Sugar.Warnf("cache scan failed prefix=%s err=%v", prefix, err)
			return
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				Sugar.Warnf("cache delete failed prefix=%s err=%v", prefix, err)
				return
			}
		}
		if cursor == 0 {
			return
		}
	}
}
