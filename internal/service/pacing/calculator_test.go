package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/repository"
)

type stubQueue struct {
	repository.QueueRepository
	handleTimes []time.Duration
}

func (s *stubQueue) RecentHandleTimes(ctx context.Context, campaignID uuid.UUID, limit int) ([]time.Duration, error) {
	if limit < len(s.handleTimes) {
		return s.handleTimes[:limit], nil
	}
	return s.handleTimes, nil
}

type stubCampaigns struct {
	repository.CampaignRepository
	campaign *domain.Campaign
}

func (s *stubCampaigns) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	if s.campaign == nil || s.campaign.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.campaign, nil
}

type stubAgents struct {
	available int
	err       error
}

func (s *stubAgents) AvailableAgents(ctx context.Context, campaignID uuid.UUID) (int, error) {
	return s.available, s.err
}

func TestRecommendPredictive(t *testing.T) {
	campaign := &domain.Campaign{
		ID:         uuid.New(),
		DialMethod: domain.DialMethodPredictive,
		DialRatio:  1.5,
	}
	calc := NewCalculator(
		&stubQueue{handleTimes: []time.Duration{4 * time.Minute, 2 * time.Minute}},
		&stubCampaigns{campaign: campaign},
		&stubAgents{available: 3},
		1.2, 50,
	)

	rec, err := calc.Recommend(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.RecommendedDepth != 5 {
		t.Errorf("expected depth 5 (ceil of 3*1.5), got %d", rec.RecommendedDepth)
	}
	if rec.AvgHandleTime != 3*time.Minute {
		t.Errorf("expected 3m average, got %v", rec.AvgHandleTime)
	}
	if rec.DialRatio != 1.5 {
		t.Errorf("expected campaign ratio 1.5, got %v", rec.DialRatio)
	}
}

func TestRecommendProgressiveIgnoresRatio(t *testing.T) {
	campaign := &domain.Campaign{
		ID:         uuid.New(),
		DialMethod: domain.DialMethodProgressive,
		DialRatio:  2.5,
	}
	calc := NewCalculator(&stubQueue{}, &stubCampaigns{campaign: campaign}, &stubAgents{available: 4}, 1.2, 50)

	rec, err := calc.Recommend(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.DialRatio != 1.0 {
		t.Errorf("progressive campaigns pace 1:1, got ratio %v", rec.DialRatio)
	}
	if rec.RecommendedDepth != 4 {
		t.Errorf("expected depth 4, got %d", rec.RecommendedDepth)
	}
}

func TestRecommendDefaultRatioFallback(t *testing.T) {
	campaign := &domain.Campaign{
		ID:         uuid.New(),
		DialMethod: domain.DialMethodPredictive,
	}
	calc := NewCalculator(&stubQueue{}, &stubCampaigns{campaign: campaign}, &stubAgents{available: 2}, 1.4, 50)

	rec, err := calc.Recommend(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.DialRatio != 1.4 {
		t.Errorf("expected configured default ratio, got %v", rec.DialRatio)
	}
	if rec.RecommendedDepth != 3 {
		t.Errorf("expected depth 3, got %d", rec.RecommendedDepth)
	}
}

func TestRecommendNoCompletionsYet(t *testing.T) {
	campaign := &domain.Campaign{ID: uuid.New(), DialMethod: domain.DialMethodPredictive, DialRatio: 2}
	calc := NewCalculator(&stubQueue{}, &stubCampaigns{campaign: campaign}, &stubAgents{available: 2}, 1.0, 50)

	rec, err := calc.Recommend(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("recommend with empty history: %v", err)
	}
	if rec.AvgHandleTime != 0 {
		t.Errorf("expected zero average with no history, got %v", rec.AvgHandleTime)
	}
	if rec.RecommendedDepth != 4 {
		t.Errorf("expected depth 4, got %d", rec.RecommendedDepth)
	}
}

func TestRecommendNoAgents(t *testing.T) {
	campaign := &domain.Campaign{ID: uuid.New(), DialMethod: domain.DialMethodPredictive, DialRatio: 2}
	calc := NewCalculator(&stubQueue{}, &stubCampaigns{campaign: campaign}, &stubAgents{available: 0}, 1.0, 50)

	rec, err := calc.Recommend(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.RecommendedDepth != 0 {
		t.Errorf("no agents must yield zero depth, got %d", rec.RecommendedDepth)
	}
}

func TestRecommendUnknownCampaign(t *testing.T) {
	calc := NewCalculator(&stubQueue{}, &stubCampaigns{}, &stubAgents{}, 1.0, 50)
	_, err := calc.Recommend(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
