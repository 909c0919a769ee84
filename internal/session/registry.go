package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"outreach-server/internal/observability"

	"github.com/google/uuid"
)

var (
	ErrCapacityExceeded       = errors.New("maximum concurrent call sessions reached")
	ErrDuplicateActiveSession = errors.New("an active call session already exists for this phone number")
	ErrSessionNotFound        = errors.New("call session not found")
	ErrCorrelationConflict    = errors.New("session is already bound to a different external call id")
	ErrInvalidTransition      = errors.New("invalid session status transition")
)

// RegistryConfig holds tunables for the session registry.
type RegistryConfig struct {
	// MaxConcurrentSessions caps how many non-terminal sessions may exist.
	MaxConcurrentSessions int

	// Retention is how long terminal sessions are kept before Sweep removes
	// them, so late provider callbacks still resolve.
	Retention time.Duration
}

// DefaultRegistryConfig returns sensible defaults for a registry.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxConcurrentSessions: 50,
		Retention:             5 * time.Minute,
	}
}

// Registry owns all in-flight call sessions. Every mutation happens under one
// mutex, which linearizes concurrent webhook handlers and makes the
// capacity/duplicate admission check atomic with the insert.
type Registry struct {
	config RegistryConfig
	logger *observability.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byCallID map[string]uuid.UUID
	// byPhone indexes the single non-terminal session per destination number.
	byPhone map[string]uuid.UUID
}

// NewRegistry creates an empty session registry.
func NewRegistry(config RegistryConfig, logger *observability.Logger) *Registry {
	if config.MaxConcurrentSessions <= 0 {
		config.MaxConcurrentSessions = DefaultRegistryConfig().MaxConcurrentSessions
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRegistryConfig().Retention
	}
	return &Registry{
		config:   config,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
		byCallID: make(map[string]uuid.UUID),
		byPhone:  make(map[string]uuid.UUID),
	}
}

// Create admits a new pending session. Admission control and the insert hold
// the lock together: a capacity or duplicate check never races a concurrent
// Create.
func (r *Registry) Create(ctx context.Context, config Config) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, s := range r.sessions {
		if !s.Status.IsTerminal() {
			active++
		}
	}
	if active >= r.config.MaxConcurrentSessions {
		return Session{}, ErrCapacityExceeded
	}
	if _, exists := r.byPhone[config.Phone]; exists {
		return Session{}, ErrDuplicateActiveSession
	}

	sess := &Session{
		ID:        uuid.New(),
		Config:    config,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Dialogue:  DialogueState{Phase: PhaseInit},
	}
	r.sessions[sess.ID] = sess
	r.byPhone[config.Phone] = sess.ID

	r.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: sess.ID.String()},
		observability.Field{Key: "phone", Value: config.Phone},
	), "call session created")

	return sess.snapshot(), nil
}

// GetByID returns a snapshot of the session with the given id.
func (r *Registry) GetByID(id uuid.UUID) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// GetByExternalCallID returns the session bound to the provider call id.
func (r *Registry) GetByExternalCallID(callID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCallID[callID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// GetActiveByPhone returns the single non-terminal session for a destination
// phone number, if any.
func (r *Registry) GetActiveByPhone(phone string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// UpdateStatus moves a session to a new status. Backward transitions are
// rejected, so a late CALLING update can never resurrect a completed session.
func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(ctx, id, newStatus, "")
}

// Fail moves a session to FAILED and records the failure reason.
func (r *Registry) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(ctx, id, StatusFailed, reason)
}

func (r *Registry) transitionLocked(ctx context.Context, id uuid.UUID, newStatus Status, errMsg string) error {
	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if statusRank[newStatus] < statusRank[sess.Status] ||
		(sess.Status.IsTerminal() && newStatus != sess.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, newStatus)
	}

	now := time.Now()
	sess.Status = newStatus
	if errMsg != "" {
		sess.ErrorMessage = errMsg
	}
	switch {
	case newStatus == StatusActive && sess.StartedAt == nil:
		sess.StartedAt = &now
	case newStatus.IsTerminal() && sess.CompletedAt == nil:
		sess.CompletedAt = &now
		// Terminal sessions free the phone slot immediately; the session
		// itself stays resolvable until the sweep.
		if r.byPhone[sess.Config.Phone] == id {
			delete(r.byPhone, sess.Config.Phone)
		}
	}

	r.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: id.String()},
		observability.Field{Key: "status", Value: string(newStatus)},
	), "session status updated")

	return nil
}

// AppendTurn appends one turn to the session transcript. Existing turns are
// never edited or reordered.
func (r *Registry) AppendTurn(ctx context.Context, id uuid.UUID, turn Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	sess.Turns = append(sess.Turns, turn)
	return nil
}

// BindExternalCallID binds the provider call id to a session. Re-binding the
// same value is idempotent; binding a different value is a correlation
// conflict and leaves the original binding intact.
func (r *Registry) BindExternalCallID(ctx context.Context, id uuid.UUID, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.ExternalCallID != "" {
		if sess.ExternalCallID == callID {
			return nil
		}
		return ErrCorrelationConflict
	}
	sess.ExternalCallID = callID
	r.byCallID[callID] = id

	r.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "session_id", Value: id.String()},
		observability.Field{Key: "external_call_id", Value: callID},
	), "external call id bound")

	return nil
}

// SetSystemInstructions stores the built system instructions and returns the
// stored value. A second call is a no-op returning the original build.
func (r *Registry) SetSystemInstructions(id uuid.UUID, instructions string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	if sess.Dialogue.SystemInstructions == "" {
		sess.Dialogue.SystemInstructions = instructions
	}
	return sess.Dialogue.SystemInstructions, nil
}

// SetPhase updates the dialogue phase.
func (r *Registry) SetPhase(id uuid.UUID, phase Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Dialogue.Phase = phase
	if phase == PhaseTerminated {
		sess.Dialogue.ShouldEnd = true
	}
	return nil
}

// MarkShouldEnd flags the dialogue for termination after the closing line.
func (r *Registry) MarkShouldEnd(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Dialogue.ShouldEnd = true
	return nil
}

// Cancel flags a session cancelled. In-flight work is not interrupted; the
// next state-machine boundary observes the status and short-circuits.
func (r *Registry) Cancel(ctx context.Context, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Status.IsTerminal() {
		return false
	}
	if err := r.transitionLocked(ctx, id, StatusCancelled, ""); err != nil {
		return false
	}
	sess.Dialogue.ShouldEnd = true
	return true
}

// Sweep removes sessions that have been terminal longer than the retention
// window and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.config.Retention)
	removed := 0
	for id, sess := range r.sessions {
		if !sess.Status.IsTerminal() || sess.CompletedAt == nil || sess.CompletedAt.After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		if sess.ExternalCallID != "" && r.byCallID[sess.ExternalCallID] == id {
			delete(r.byCallID, sess.ExternalCallID)
		}
		if r.byPhone[sess.Config.Phone] == id {
			delete(r.byPhone, sess.Config.Phone)
		}
		removed++
	}
	return removed
}

// ActiveCount returns the number of non-terminal sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sessions {
		if !s.Status.IsTerminal() {
			count++
		}
	}
	return count
}
