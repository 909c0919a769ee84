package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-server/internal/campaign"
	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
	"outreach-server/internal/store"

	"github.com/google/uuid"
)

// CampaignStore is the slice of the database store the call processor needs.
type CampaignStore interface {
	GetCampaignCallSettings(ctx context.Context, campaignID string) (store.CampaignCallSettings, error)
	InsertCallLog(ctx context.Context, entry store.CallLog) error
}

// Dispatcher queues sessions for asynchronous call initiation.
type Dispatcher interface {
	Submit(ctx context.Context, sessionID uuid.UUID) error
}

// CallProcessor orchestrates the outbound call lifecycle: admission,
// asynchronous dialing, callback correlation, and dialogue advancement.
type CallProcessor struct {
	registry   *session.Registry
	engine     *dialogue.Engine
	store      CampaignStore
	dispatcher Dispatcher
	logger     *observability.Logger
}

func New(registry *session.Registry, engine *dialogue.Engine, campaignStore CampaignStore,
	dispatcher Dispatcher, logger *observability.Logger) *CallProcessor {
	return &CallProcessor{
		registry:   registry,
		engine:     engine,
		store:      campaignStore,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SessionStatus is the management-API view of a session.
type SessionStatus struct {
	SessionID      uuid.UUID  `json:"session_id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExternalCallID string     `json:"external_call_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	TurnCount      int        `json:"turn_count"`
}

// StartSession normalizes a raw trigger payload, admits a session, and queues
// the outbound call. The session is returned in PENDING; the dispatcher moves
// it forward asynchronously.
func (p *CallProcessor) StartSession(ctx context.Context, payload map[string]interface{}) (session.Session, error) {
	defaults := p.campaignDefaults(ctx, campaign.CampaignID(payload))

	cfg, err := campaign.Normalize(payload, defaults)
	if err != nil {
		return session.Session{}, err
	}

	sess, err := p.registry.Create(ctx, cfg)
	if err != nil {
		return session.Session{}, err
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sess.ID.String()})
	if err := p.dispatcher.Submit(ctx, sess.ID); err != nil {
		p.logger.Error(ctx, "Failed to queue call initiation", err)
		if failErr := p.registry.Fail(ctx, sess.ID, "failed to queue call initiation"); failErr != nil {
			p.logger.Error(ctx, "Failed to fail unqueued session", failErr)
		}
		return session.Session{}, fmt.Errorf("failed to queue call initiation: %w", err)
	}

	p.logger.Info(ctx, "Call session queued for dispatch")
	return sess, nil
}

// campaignDefaults loads campaign-level settings. A missing or unreadable
// campaign degrades to empty defaults; the payload may still be complete on
// its own and normalization decides.
func (p *CallProcessor) campaignDefaults(ctx context.Context, campaignID string) campaign.Defaults {
	if campaignID == "" {
		return campaign.Defaults{}
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID})
	settings, err := p.store.GetCampaignCallSettings(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn(ctx, "No call settings for campaign, using payload values only")
		} else {
			p.logger.Error(ctx, "Failed to load campaign call settings", err)
		}
		return campaign.Defaults{}
	}

	return campaign.Defaults{
		BusinessName:     settings.BusinessName,
		AgentName:        settings.AgentName.String,
		OfferDescription: settings.OfferDescription,
		DiscountPercent:  settings.DiscountPercent,
		Voice:            settings.Voice.String,
		Language:         settings.Language.String,
	}
}

// GetStatus returns the management view of a session.
func (p *CallProcessor) GetStatus(ctx context.Context, id uuid.UUID) (SessionStatus, error) {
	sess, err := p.registry.GetByID(id)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		SessionID:      sess.ID,
		Status:         string(sess.Status),
		CreatedAt:      sess.CreatedAt,
		StartedAt:      sess.StartedAt,
		CompletedAt:    sess.CompletedAt,
		ExternalCallID: sess.ExternalCallID,
		ErrorMessage:   sess.ErrorMessage,
		TurnCount:      len(sess.Turns),
	}, nil
}

// Cancel requests cooperative cancellation. Returns false when the session is
// already terminal.
func (p *CallProcessor) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := p.registry.GetByID(id); err != nil {
		return false, err
	}
	cancelled := p.registry.Cancel(ctx, id)
	if cancelled {
		p.recordCallLog(ctx, id)
	}
	return cancelled, nil
}

// Transcript returns a snapshot of the session's turns, used by the live
// transcript stream.
func (p *CallProcessor) Transcript(ctx context.Context, id uuid.UUID) ([]session.Turn, session.Status, error) {
	sess, err := p.registry.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	return sess.Turns, sess.Status, nil
}
