package utils

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const oauthStateTTL = 10 * time.Minute

var (
	stateStore   = map[string]time.Time{}
	stateStoreMu sync.Mutex
)

// NewOAuthState issues a single-use state token for an OAuth round trip.
func NewOAuthState(ctx context.Context) string {
	state := uuid.NewString()
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, "oauth:state:"+state, "1", oauthStateTTL).Err(); err == nil {
			return state
		}
	}
	stateStoreMu.Lock()
	stateStore[state] = time.Now().Add(oauthStateTTL)
	stateStoreMu.Unlock()
	return state
}

// ConsumeOAuthState validates and removes a state token.
func ConsumeOAuthState(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, "oauth:state:"+state).Result(); err == nil && v != "" {
			return true
		}
	}
	stateStoreMu.Lock()
	exp, ok := stateStore[state]
	delete(stateStore, state)
	stateStoreMu.Unlock()
	return ok && time.Now().Before(exp)
}
