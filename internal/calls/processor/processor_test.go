package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
	"outreach-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaignStore struct {
	mu          sync.Mutex
	settings    store.CampaignCallSettings
	settingsErr error
	logs        []store.CallLog
	logErr      error
}

func (f *fakeCampaignStore) GetCampaignCallSettings(_ context.Context, _ string) (store.CampaignCallSettings, error) {
	if f.settingsErr != nil {
		return store.CampaignCallSettings{}, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakeCampaignStore) InsertCallLog(_ context.Context, entry store.CallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return f.logErr
	}
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeCampaignStore) loggedStatuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := make([]string, 0, len(f.logs))
	for _, entry := range f.logs {
		statuses = append(statuses, entry.Status)
	}
	return statuses
}

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []uuid.UUID
	err       error
}

func (f *fakeDispatcher) Submit(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, sessionID)
	return nil
}

type scriptedProvider struct {
	results []dialogue.TurnResult
	errs    []error
	calls   int
}

func (p *scriptedProvider) NextTurn(_ context.Context, _ string, _ []session.Turn, _ bool) (dialogue.TurnResult, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return dialogue.TurnResult{}, p.errs[idx]
	}
	if idx >= len(p.results) {
		return dialogue.TurnResult{}, errors.New("provider script exhausted")
	}
	return p.results[idx], nil
}

type noopExecutor struct{}

func (noopExecutor) Run(_ context.Context, _ dialogue.ToolKind, _ json.RawMessage, _ session.Config) (string, error) {
	return `{"status":"ok"}`, nil
}

type fixture struct {
	processor  *CallProcessor
	registry   *session.Registry
	store      *fakeCampaignStore
	dispatcher *fakeDispatcher
	provider   *scriptedProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := observability.NewLogger()
	registry := session.NewRegistry(session.RegistryConfig{MaxConcurrentSessions: 10}, logger)
	provider := &scriptedProvider{}
	engine := dialogue.NewEngine(registry, provider, noopExecutor{}, logger)
	campaignStore := &fakeCampaignStore{}
	dispatcher := &fakeDispatcher{}
	return &fixture{
		processor:  New(registry, engine, campaignStore, dispatcher, logger),
		registry:   registry,
		store:      campaignStore,
		dispatcher: dispatcher,
		provider:   provider,
	}
}

func startPayload() map[string]interface{} {
	return map[string]interface{}{
		"phone":             "+15551230001",
		"customer_name":     "Dana",
		"business_name":     "Fresh Bites",
		"offer_description": "20% off your next order",
		"discount_percent":  float64(20),
	}
}

func TestStartSessionQueuesDispatch(t *testing.T) {
	f := newFixture(t)

	sess, err := f.processor.StartSession(context.Background(), startPayload())
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, sess.Status)
	assert.Equal(t, []uuid.UUID{sess.ID}, f.dispatcher.submitted)
}

func TestStartSessionMergesCampaignDefaults(t *testing.T) {
	f := newFixture(t)
	f.store.settings = store.CampaignCallSettings{
		CampaignID:       "camp-42",
		BusinessName:     "Fresh Bites",
		AgentName:        sql.NullString{String: "Alex", Valid: true},
		OfferDescription: "20% off your next order",
		DiscountPercent:  20,
	}

	sess, err := f.processor.StartSession(context.Background(), map[string]interface{}{
		"campaign_id": "camp-42",
		"phone":       "+15551230001",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fresh Bites", sess.Config.BusinessName)
	assert.Equal(t, "Alex", sess.Config.AgentName)
	assert.Equal(t, 20, sess.Config.DiscountPercent)
}

func TestStartSessionUnknownCampaignDegradesToPayload(t *testing.T) {
	f := newFixture(t)
	f.store.settingsErr = store.ErrNotFound

	payload := startPayload()
	payload["campaign_id"] = "camp-missing"
	_, err := f.processor.StartSession(context.Background(), payload)
	assert.NoError(t, err)
}

func TestStartSessionRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.StartSession(context.Background(), map[string]interface{}{
		"phone": "not-a-number",
	})
	assert.Error(t, err)
	assert.Empty(t, f.dispatcher.submitted)
}

func TestStartSessionRejectsDuplicatePhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.StartSession(context.Background(), startPayload())
	require.NoError(t, err)
	_, err = f.processor.StartSession(context.Background(), startPayload())
	assert.ErrorIs(t, err, session.ErrDuplicateActiveSession)
}

func TestStartSessionDispatchFailureFailsSession(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue shutting down")

	_, err := f.processor.StartSession(context.Background(), startPayload())
	assert.Error(t, err)

	// The admitted session must not stay pending forever.
	sess, err := f.registry.GetActiveByPhone("+15551230001")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_ = sess
}

func inConversation(t *testing.T, f *fixture, callID string) session.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.processor.StartSession(ctx, startPayload())
	require.NoError(t, err)
	require.NoError(t, f.registry.UpdateStatus(ctx, sess.ID, session.StatusActive))
	if callID != "" {
		require.NoError(t, f.registry.BindExternalCallID(ctx, sess.ID, callID))
	}
	require.NoError(t, f.registry.UpdateStatus(ctx, sess.ID, session.StatusCalling))
	return sess
}

func TestHandleCallbackResolvesByCallID(t *testing.T) {
	f := newFixture(t)
	sess := inConversation(t, f, "CA001")
	f.provider.results = []dialogue.TurnResult{{Utterance: "Hi Dana!"}}

	reply := f.processor.HandleCallback(context.Background(), Callback{
		ExternalCallID:    "CA001",
		DestinationNumber: "+15551230001",
	})

	assert.Equal(t, "Hi Dana!", reply.Utterance)
	assert.False(t, reply.Hangup)

	got, err := f.registry.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInConversation, got.Status)
}

func TestHandleCallbackFallsBackToPhoneAndBinds(t *testing.T) {
	f := newFixture(t)
	sess := inConversation(t, f, "")
	f.provider.results = []dialogue.TurnResult{{Utterance: "Hi Dana!"}}

	reply := f.processor.HandleCallback(context.Background(), Callback{
		ExternalCallID:    "CA002",
		DestinationNumber: "+15551230001",
	})
	assert.False(t, reply.Hangup)

	// The callback's call id is now bound for O(1) resolution next time.
	got, err := f.registry.GetByExternalCallID("CA002")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestHandleCallbackOrphanGetsDegradedResponse(t *testing.T) {
	f := newFixture(t)

	reply := f.processor.HandleCallback(context.Background(), Callback{
		ExternalCallID:    "CA999",
		DestinationNumber: "+15559990000",
	})

	assert.True(t, reply.Hangup)
	assert.Equal(t, orphanLine, reply.Utterance)
	assert.Zero(t, f.provider.calls)
}

func TestHandleCallbackConflictingCallIDIsOrphaned(t *testing.T) {
	f := newFixture(t)
	inConversation(t, f, "CA001")

	// Same destination number but a different provider call. Binding would
	// conflict, so the callback is treated as orphaned.
	reply := f.processor.HandleCallback(context.Background(), Callback{
		ExternalCallID:    "CA777",
		DestinationNumber: "+15551230001",
	})
	assert.True(t, reply.Hangup)
	assert.Equal(t, orphanLine, reply.Utterance)
}

func TestHandleCallbackWritesCallLogOnHangup(t *testing.T) {
	f := newFixture(t)
	inConversation(t, f, "CA001")
	f.provider.results = []dialogue.TurnResult{
		{ToolName: string(dialogue.ToolEndConversation)},
		{Utterance: "Goodbye!"},
	}

	reply := f.processor.HandleCallback(context.Background(), Callback{
		ExternalCallID:  "CA001",
		CallerUtterance: "no thanks, goodbye",
	})

	assert.True(t, reply.Hangup)
	assert.Equal(t, []string{string(session.StatusCompleted)}, f.store.loggedStatuses())
}

func TestHandleStatusCallbackFinalizesSession(t *testing.T) {
	f := newFixture(t)
	sess := inConversation(t, f, "CA001")

	f.processor.HandleStatusCallback(context.Background(), StatusCallback{
		ExternalCallID: "CA001",
		CallStatus:     "no-answer",
	})

	got, err := f.registry.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no-answer")
	assert.Equal(t, []string{string(session.StatusFailed)}, f.store.loggedStatuses())
}

func TestHandleStatusCallbackIgnoresUnknownCall(t *testing.T) {
	f := newFixture(t)
	f.processor.HandleStatusCallback(context.Background(), StatusCallback{
		ExternalCallID: "CA404",
		CallStatus:     "completed",
	})
	assert.Empty(t, f.store.loggedStatuses())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	sess, err := f.processor.StartSession(context.Background(), startPayload())
	require.NoError(t, err)

	cancelled, err := f.processor.Cancel(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, []string{string(session.StatusCancelled)}, f.store.loggedStatuses())

	cancelled, err = f.processor.Cancel(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = f.processor.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	sess, err := f.processor.StartSession(context.Background(), startPayload())
	require.NoError(t, err)

	status, err := f.processor.GetStatus(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, status.SessionID)
	assert.Equal(t, string(session.StatusPending), status.Status)
	assert.Zero(t, status.TurnCount)

	_, err = f.processor.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
