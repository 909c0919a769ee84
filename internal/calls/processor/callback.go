package processor

import (
	"context"
	"database/sql"
	"errors"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
	"outreach-server/internal/store"

	"github.com/google/uuid"
)

// orphanLine is spoken when a callback cannot be matched to any session. The
// caller is live on the phone, so they must hear something coherent.
const orphanLine = "I'm sorry, I can't find the details for this call right now. We'll reach out again soon. Goodbye."

// Callback is one inbound event from the telephony provider for an answered
// call: the provider call id, the dialed number, and what the caller said
// (empty on the first callback, before the caller has spoken).
type Callback struct {
	ExternalCallID    string
	DestinationNumber string
	CallerUtterance   string
}

// HandleCallback resolves the callback to a session and advances its
// dialogue. It always produces something to speak: unresolvable callbacks get
// the degraded orphan response, never an error.
func (p *CallProcessor) HandleCallback(ctx context.Context, cb Callback) dialogue.Reply {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "external_call_id", Value: cb.ExternalCallID},
		observability.Field{Key: "destination_number", Value: cb.DestinationNumber},
	)

	sess, ok := p.resolve(ctx, cb)
	if !ok {
		p.logger.Warn(ctx, "Orphaned callback, no session resolved")
		return dialogue.Reply{Utterance: orphanLine, Hangup: true}
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sess.ID.String()})

	// First correlated callback for an answered call moves the session into
	// conversation. A repeat is an invalid (backward) transition and ignored.
	if !sess.Status.IsTerminal() && sess.Status != session.StatusInConversation {
		if err := p.registry.UpdateStatus(ctx, sess.ID, session.StatusInConversation); err != nil &&
			!errors.Is(err, session.ErrInvalidTransition) {
			p.logger.Error(ctx, "Failed to mark session in conversation", err)
		}
	}

	reply := p.engine.Advance(ctx, sess.ID, cb.CallerUtterance)
	if reply.Hangup {
		p.recordCallLog(ctx, sess.ID)
	}
	return reply
}

// resolve applies the correlation algorithm: call id lookup first, then the
// phone-number fallback, binding the call id on a successful fallback match.
func (p *CallProcessor) resolve(ctx context.Context, cb Callback) (session.Session, bool) {
	if cb.ExternalCallID != "" {
		sess, err := p.registry.GetByExternalCallID(cb.ExternalCallID)
		if err == nil {
			return sess, true
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			p.logger.Error(ctx, "Call id lookup failed", err)
			return session.Session{}, false
		}
	}

	sess, err := p.registry.GetActiveByPhone(cb.DestinationNumber)
	if err != nil {
		return session.Session{}, false
	}

	if cb.ExternalCallID != "" {
		if err := p.registry.BindExternalCallID(ctx, sess.ID, cb.ExternalCallID); err != nil {
			if errors.Is(err, session.ErrCorrelationConflict) {
				// The session already belongs to a different provider call;
				// this callback is effectively orphaned.
				p.logger.Warn(ctx, "Callback call id conflicts with existing binding")
				return session.Session{}, false
			}
			p.logger.Error(ctx, "Failed to bind call id on fallback match", err)
		}
	}
	return sess, true
}

// StatusCallback is a provider lifecycle event for an outbound call, delivered
// out of band from the voice webhook.
type StatusCallback struct {
	ExternalCallID string
	CallStatus     string
}

// HandleStatusCallback finalizes sessions when the provider reports the call
// ended without the dialogue reaching its own conclusion (callee hung up,
// busy, no answer).
func (p *CallProcessor) HandleStatusCallback(ctx context.Context, cb StatusCallback) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "external_call_id", Value: cb.ExternalCallID},
		observability.Field{Key: "call_status", Value: cb.CallStatus},
	)

	sess, err := p.registry.GetByExternalCallID(cb.ExternalCallID)
	if err != nil {
		p.logger.Warn(ctx, "Status callback for unknown call, ignoring")
		return
	}
	if sess.Status.IsTerminal() {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sess.ID.String()})

	switch cb.CallStatus {
	case "completed":
		if err := p.registry.UpdateStatus(ctx, sess.ID, session.StatusCompleted); err != nil {
			p.logger.Error(ctx, "Failed to complete session from status callback", err)
			return
		}
	case "busy", "no-answer", "failed", "canceled":
		if err := p.registry.Fail(ctx, sess.ID, "call ended: "+cb.CallStatus); err != nil {
			p.logger.Error(ctx, "Failed to fail session from status callback", err)
			return
		}
	default:
		return
	}
	p.recordCallLog(ctx, sess.ID)
}

// recordCallLog writes the terminal audit row. Duplicate writes are absorbed
// by the insert's conflict clause.
func (p *CallProcessor) recordCallLog(ctx context.Context, id uuid.UUID) {
	sess, err := p.registry.GetByID(id)
	if err != nil || !sess.Status.IsTerminal() {
		return
	}

	entry := store.CallLog{
		SessionID:   sess.ID,
		Phone:       sess.Config.Phone,
		Status:      string(sess.Status),
		TurnCount:   len(sess.Turns),
		CreatedAt:   sess.CreatedAt,
		CompletedAt: sess.CompletedAt,
	}
	if sess.Config.CampaignID != "" {
		entry.CampaignID = sql.NullString{String: sess.Config.CampaignID, Valid: true}
	}
	if sess.ExternalCallID != "" {
		entry.ExternalCallID = sql.NullString{String: sess.ExternalCallID, Valid: true}
	}
	if sess.ErrorMessage != "" {
		entry.ErrorMessage = sql.NullString{String: sess.ErrorMessage, Valid: true}
	}

	if err := p.store.InsertCallLog(ctx, entry); err != nil {
		p.logger.Error(ctx, "Failed to record call log", err)
	}
}
