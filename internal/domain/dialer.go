package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DialMethod determines how aggressively a campaign queue is filled.
type DialMethod string

const (
	// DialMethodPreview fills the queue only on explicit agent request.
	DialMethodPreview DialMethod = "preview"
	// DialMethodProgressive keeps one entry staged per available agent.
	DialMethodProgressive DialMethod = "progressive"
	// DialMethodPredictive stages more work than agents, per the dial ratio.
	DialMethodPredictive DialMethod = "predictive"
)

// ContactStatus enumerates the contact pool lifecycle. Contacts are never
// hard-deleted; terminal states are status changes only.
type ContactStatus string

const (
	ContactStatusNew       ContactStatus = "new"
	ContactStatusAttempted ContactStatus = "attempted"
	ContactStatusCompleted ContactStatus = "completed"
	ContactStatusDoNotCall ContactStatus = "do_not_call"
)

// EntryStatus enumerates the queue entry lifecycle:
// queued -> claimed -> completed, or queued -> claimed -> released -> queued.
type EntryStatus string

const (
	EntryStatusQueued    EntryStatus = "queued"
	EntryStatusClaimed   EntryStatus = "claimed"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusReleased  EntryStatus = "released"
)

// OutcomeKind enumerates recognized disposition codes.
type OutcomeKind string

const (
	OutcomeAnswered    OutcomeKind = "answered"
	OutcomeNoAnswer    OutcomeKind = "no_answer"
	OutcomeBusy        OutcomeKind = "busy"
	OutcomeVoicemail   OutcomeKind = "voicemail"
	OutcomeCallback    OutcomeKind = "callback"
	OutcomeWrongNumber OutcomeKind = "wrong_number"
	OutcomeDoNotCall   OutcomeKind = "do_not_call"
	OutcomeFailed      OutcomeKind = "failed"
	// OutcomeOther preserves dispositions submitted with an unrecognized code.
	OutcomeOther OutcomeKind = "other"
)

// ParseOutcome maps a raw disposition code onto a known kind. The second
// return value reports whether the code was recognized; unrecognized codes
// map to OutcomeOther so the submission is never dropped.
func ParseOutcome(raw string) (OutcomeKind, bool) {
	switch OutcomeKind(raw) {
	case OutcomeAnswered, OutcomeNoAnswer, OutcomeBusy, OutcomeVoicemail,
		OutcomeCallback, OutcomeWrongNumber, OutcomeDoNotCall, OutcomeFailed:
		return OutcomeKind(raw), true
	default:
		return OutcomeOther, false
	}
}

// ContactStatusAfter returns the contact status that follows recording the
// given outcome. Answered and wrong-number contacts leave the dialable pool;
// do-not-call is terminal for compliance; everything else stays re-dialable.
func ContactStatusAfter(kind OutcomeKind) ContactStatus {
	switch kind {
	case OutcomeAnswered, OutcomeWrongNumber:
		return ContactStatusCompleted
	case OutcomeDoNotCall:
		return ContactStatusDoNotCall
	default:
		return ContactStatusAttempted
	}
}

// AgentStatus enumerates presence states reported by the presence subsystem.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusOnCall    AgentStatus = "on_call"
	AgentStatusPaused    AgentStatus = "paused"
	AgentStatusOffline   AgentStatus = "offline"
)

// Campaign is the configuration scope for dialing.
type Campaign struct {
	ID              uuid.UUID
	Name            string
	Description     string
	TimeZone        string
	DialMethod      DialMethod
	DialRatio       float64
	RecordingPolicy string
	Active          bool
	CallingHours    []CallingHourWindow
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CallingHourWindow captures an allowed calling window per day of week.
type CallingHourWindow struct {
	DayOfWeek time.Weekday
	Start     time.Time
	End       time.Time
}

// Contact is a dialable entity in a campaign's contact list.
type Contact struct {
	ID            uuid.UUID
	ListID        uuid.UUID
	FirstName     string
	LastName      string
	PrimaryPhone  string
	MobilePhone   *string
	WorkPhone     *string
	HomePhone     *string
	Status        ContactStatus
	Priority      int
	AttemptCount  int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ContactList groups imported contacts under one campaign.
type ContactList struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	Name       string
	CreatedAt  time.Time
}

// QueueEntry is a unit of dialable work derived from a Contact for a
// Campaign. At most one entry per (contact, campaign) may be queued or
// claimed at a time.
type QueueEntry struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	ContactID    uuid.UUID
	Status       EntryStatus
	AgentID      *uuid.UUID
	Priority     int
	EnqueuedAt   time.Time
	ClaimedAt    *time.Time
	CompletedAt  *time.Time
	ReleaseCount int
	UpdatedAt    time.Time
}

// Disposition is the immutable terminal record attached to a completed entry.
type Disposition struct {
	ID         uuid.UUID
	EntryID    uuid.UUID
	CampaignID uuid.UUID
	ContactID  uuid.UUID
	AgentID    uuid.UUID
	Kind       OutcomeKind
	RawOutcome string
	Notes      string
	CallbackAt *time.Time
	HandleTime time.Duration
	CreatedAt  time.Time
}

// AgentSnapshot is the presence subsystem's view of an agent. Read-only from
// the queue core's perspective.
type AgentSnapshot struct {
	ID                 uuid.UUID
	Status             AgentStatus
	CampaignID         uuid.UUID
	MaxConcurrentCalls int
}

// QueueStats aggregates per-campaign queue counters.
type QueueStats struct {
	QueuedCount    int64
	ClaimedCount   int64
	CompletedCount int64
	ReleasedCount  int64
	AvgDialTime    time.Duration
}

// PacingRecommendation is the pacing calculator's output.
type PacingRecommendation struct {
	RecommendedDepth int
	AvgHandleTime    time.Duration
	AvailableAgents  int
	DialRatio        float64
}

// RecommendedDepth computes how many entries should be staged for the given
// agent availability and dial ratio, rounding up so a fractional ratio never
// starves a lone agent.
func RecommendedDepth(availableAgents int, dialRatio float64) int {
	if availableAgents <= 0 || dialRatio <= 0 {
		return 0
	}
	return int(math.Ceil(float64(availableAgents) * dialRatio))
}
