package presence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/acme/dial-queue/internal/domain"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

// Directory reads agent presence from Redis. The presence/auth subsystem
// owns the writes: one hash per agent plus one set of available agent ids
// per campaign. The queue core never mutates these keys.
type Directory struct {
	client    *redis.Client
	keyPrefix string
}

// NewDirectory constructs a presence directory.
func NewDirectory(client *redis.Client, keyPrefix string) *Directory {
	if keyPrefix == "" {
		keyPrefix = "dialer"
	}
	return &Directory{client: client, keyPrefix: keyPrefix}
}

// GetAgent returns the presence snapshot for an agent. A missing hash means
// the presence subsystem has not seen the agent, reported as ErrNotFound.
func (d *Directory) GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.AgentSnapshot, error) {
	key := d.agentKey(agentID)
	fields, err := d.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get agent: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: agent %s has no presence record", apperrors.ErrNotFound, agentID)
	}

	snapshot := &domain.AgentSnapshot{
		ID:     agentID,
		Status: domain.AgentStatus(fields["status"]),
	}
	if raw := fields["campaign_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			snapshot.CampaignID = id
		}
	}
	if raw := fields["max_concurrent_calls"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			snapshot.MaxConcurrentCalls = n
		}
	}
	return snapshot, nil
}

// AvailableAgents counts agents currently available for the campaign.
func (d *Directory) AvailableAgents(ctx context.Context, campaignID uuid.UUID) (int, error) {
	key := d.availableKey(campaignID)
	n, err := d.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: available agents: %w", err)
	}
	return int(n), nil
}

func (d *Directory) agentKey(agentID uuid.UUID) string {
	return fmt.Sprintf("%s:agent:%s", d.keyPrefix, agentID.String())
}

func (d *Directory) availableKey(campaignID uuid.UUID) string {
	return fmt.Sprintf("%s:campaign:%s:available", d.keyPrefix, campaignID.String())
}
