package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ClaimSlots coordinates per-agent concurrent claim capacity using Redis
// counters. The counter mirrors how many entries an agent currently holds
// claimed; the TTL guards against leaked slots if a release is lost.
type ClaimSlots struct {
	client       *redis.Client
	defaultLimit int
	ttl          time.Duration
}

// NewClaimSlots constructs a claim slot limiter.
func NewClaimSlots(client *redis.Client, defaultLimit int, ttl time.Duration) *ClaimSlots {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ClaimSlots{client: client, defaultLimit: defaultLimit, ttl: ttl}
}

// Acquire attempts to reserve a claim slot for the agent. Returns false when
// the agent is already at its concurrent-claim limit.
func (s *ClaimSlots) Acquire(ctx context.Context, agentID uuid.UUID, limit int) (bool, error) {
	if agentID == uuid.Nil {
		return true, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit <= 0 {
		return true, nil
	}

	script := redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', key) or '0')
if current < limit then
  current = redis.call('INCR', key)
  if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
  end
  return 1
end
return 0
`)

	key := s.key(agentID)
	res, err := script.Run(ctx, s.client, []string{key}, limit, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("claim slots acquire: %w", err)
	}
	return res == 1, nil
}

// Release frees a previously acquired slot.
func (s *ClaimSlots) Release(ctx context.Context, agentID uuid.UUID) error {
	if agentID == uuid.Nil {
		return nil
	}
	key := s.key(agentID)
	script := redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)
	if _, err := script.Run(ctx, s.client, []string{key}).Int(); err != nil {
		return fmt.Errorf("claim slots release: %w", err)
	}
	return nil
}

func (s *ClaimSlots) key(agentID uuid.UUID) string {
	return fmt.Sprintf("dialer:agent:%s:claims", agentID.String())
}
