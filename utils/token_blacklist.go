package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.Mutex
)

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "jwt:blacklist:" + hex.EncodeToString(sum[:])
}

// BlacklistToken revokes a token until its natural expiry. Redis is used when
// configured; otherwise the revocation lives in process memory.
func BlacklistToken(ctx context.Context, token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	key := blacklistKey(token)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := rc.Set(ctx, key, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("redis blacklist failed, keeping token in memory: %v", err)
	}

	now := time.Now()
	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	for k, exp := range blacklist {
		if now.After(exp) {
			delete(blacklist, k)
		}
	}
	blacklist[key] = expiresAt
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(ctx context.Context, token string) bool {
	key := blacklistKey(token)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, key).Result(); err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	exp, ok := blacklist[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(blacklist, key)
		return false
	}
	return true
}
