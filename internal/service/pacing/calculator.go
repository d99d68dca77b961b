package pacing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/repository"
)

// AgentCounter reports how many agents are currently available for a campaign.
type AgentCounter interface {
	AvailableAgents(ctx context.Context, campaignID uuid.UUID) (int, error)
}

// Calculator produces queue-depth recommendations from agent availability and
// recent handle times. It is advisory only and never mutates queue state.
type Calculator struct {
	queue            repository.QueueRepository
	campaigns        repository.CampaignRepository
	agents           AgentCounter
	defaultDialRatio float64
	handleTimeWindow int
}

// NewCalculator constructs a pacing calculator. handleTimeWindow is the number
// of most recent completed entries the handle-time average is taken over.
func NewCalculator(
	queue repository.QueueRepository,
	campaigns repository.CampaignRepository,
	agents AgentCounter,
	defaultDialRatio float64,
	handleTimeWindow int,
) *Calculator {
	if defaultDialRatio <= 0 {
		defaultDialRatio = 1.0
	}
	if handleTimeWindow <= 0 {
		handleTimeWindow = 50
	}
	return &Calculator{
		queue:            queue,
		campaigns:        campaigns,
		agents:           agents,
		defaultDialRatio: defaultDialRatio,
		handleTimeWindow: handleTimeWindow,
	}
}

// Recommend computes the target queue depth for the campaign. With no
// completed entries yet the average handle time is zero and the depth falls
// back to availableAgents times the ratio.
func (c *Calculator) Recommend(ctx context.Context, campaignID uuid.UUID) (*domain.PacingRecommendation, error) {
	campaign, err := c.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return c.RecommendFor(ctx, campaign)
}

// RecommendFor computes the recommendation for an already loaded campaign.
// The refiller uses this form to avoid a second campaign read per tick.
func (c *Calculator) RecommendFor(ctx context.Context, campaign *domain.Campaign) (*domain.PacingRecommendation, error) {
	available, err := c.agents.AvailableAgents(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("pacing: available agents: %w", err)
	}

	handleTimes, err := c.queue.RecentHandleTimes(ctx, campaign.ID, c.handleTimeWindow)
	if err != nil {
		return nil, fmt.Errorf("pacing: recent handle times: %w", err)
	}

	ratio := c.ratioFor(campaign)
	return &domain.PacingRecommendation{
		RecommendedDepth: domain.RecommendedDepth(available, ratio),
		AvgHandleTime:    averageDuration(handleTimes),
		AvailableAgents:  available,
		DialRatio:        ratio,
	}, nil
}

// ratioFor resolves the effective dial ratio. Preview and progressive
// campaigns always pace one-to-one; only predictive campaigns overdial.
func (c *Calculator) ratioFor(campaign *domain.Campaign) float64 {
	if campaign.DialMethod != domain.DialMethodPredictive {
		return 1.0
	}
	if campaign.DialRatio > 0 {
		return campaign.DialRatio
	}
	return c.defaultDialRatio
}

func averageDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}
