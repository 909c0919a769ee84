package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"outreach-server/internal/calls/processor"
	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
	"outreach-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCampaignStore struct{}

func (stubCampaignStore) GetCampaignCallSettings(_ context.Context, _ string) (store.CampaignCallSettings, error) {
	return store.CampaignCallSettings{}, store.ErrNotFound
}

func (stubCampaignStore) InsertCallLog(_ context.Context, _ store.CallLog) error {
	return nil
}

type stubDispatcher struct{}

func (stubDispatcher) Submit(_ context.Context, _ uuid.UUID) error {
	return nil
}

type scriptedProvider struct {
	results []dialogue.TurnResult
	calls   int
}

func (p *scriptedProvider) NextTurn(_ context.Context, _ string, _ []session.Turn, _ bool) (dialogue.TurnResult, error) {
	idx := p.calls
	p.calls++
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
	router   *gin.Engine
	registry *session.Registry
	provider *scriptedProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger()
	registry := session.NewRegistry(session.RegistryConfig{MaxConcurrentSessions: 10}, logger)
	provider := &scriptedProvider{}
	engine := dialogue.NewEngine(registry, provider, noopExecutor{}, logger)
	callProc := processor.New(registry, engine, stubCampaignStore{}, stubDispatcher{}, logger)
	h := New(callProc, logger)

	router := gin.New()
	router.POST("/api/calls", h.HandleStartCall)
	router.GET("/api/calls/:id", h.HandleGetCall)
	router.POST("/api/calls/:id/cancel", h.HandleCancelCall)
	router.POST("/api/calls/webhook/voice", h.HandleVoiceWebhook)
	router.POST("/api/calls/webhook/status", h.HandleStatusWebhook)

	return &fixture{router: router, registry: registry, provider: provider}
}

func (f *fixture) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func startBody() map[string]interface{} {
	return map[string]interface{}{
		"phone":             "+15551230001",
		"customer_name":     "Dana",
		"business_name":     "Fresh Bites",
		"offer_description": "20% off your next order",
		"discount_percent":  20,
	}
}

// inConversation drives a freshly started session to the point where voice
// webhooks can reach it.
func (f *fixture) inConversation(t *testing.T, callID string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	rec := f.postJSON(t, "/api/calls", startBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		SessionID uuid.UUID `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.NoError(t, f.registry.UpdateStatus(ctx, created.SessionID, session.StatusActive))
	require.NoError(t, f.registry.BindExternalCallID(ctx, created.SessionID, callID))
	require.NoError(t, f.registry.UpdateStatus(ctx, created.SessionID, session.StatusCalling))
	return created.SessionID
}

func TestHandleStartCallCreatesSession(t *testing.T) {
	f := newFixture(t)

	rec := f.postJSON(t, "/api/calls", startBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		SessionID uuid.UUID `json:"session_id"`
		Status    string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.UUID{}, created.SessionID)
	assert.Equal(t, string(session.StatusPending), created.Status)
}

func TestHandleStartCallRejectsBadPayload(t *testing.T) {
	f := newFixture(t)

	rec := f.postJSON(t, "/api/calls", map[string]interface{}{"phone": "not-a-number"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetCall(t *testing.T) {
	f := newFixture(t)
	sessionID := f.inConversation(t, "CA001")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/"+sessionID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status processor.SessionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, sessionID, status.SessionID)
	assert.Equal(t, "CA001", status.ExternalCallID)
}

func TestHandleGetCallRejectsBadID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/calls/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/calls/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelCall(t *testing.T) {
	f := newFixture(t)
	sessionID := f.inConversation(t, "CA001")

	rec := f.postJSON(t, "/api/calls/"+sessionID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	rec = f.postJSON(t, "/api/calls/"+sessionID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())
}

func TestHandleVoiceWebhookGathersSpeech(t *testing.T) {
	f := newFixture(t)
	f.inConversation(t, "CA001")
	f.provider.results = []dialogue.TurnResult{{Utterance: "Hi Dana, this is Alex from Fresh Bites!"}}

	rec := f.postForm("/api/calls/webhook/voice", url.Values{
		"CallSid": {"CA001"},
		"To":      {"+15551230001"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Hi Dana, this is Alex from Fresh Bites!")
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, `input="speech"`)
	assert.NotContains(t, body, "<Hangup")
}

func TestHandleVoiceWebhookHangsUpOnTermination(t *testing.T) {
	f := newFixture(t)
	f.inConversation(t, "CA001")
	f.provider.results = []dialogue.TurnResult{
		{ToolName: string(dialogue.ToolEndConversation)},
		{Utterance: "Goodbye!"},
	}

	rec := f.postForm("/api/calls/webhook/voice", url.Values{
		"CallSid":      {"CA001"},
		"SpeechResult": {"no thanks, goodbye"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Goodbye!")
	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Gather")
}

func TestHandleVoiceWebhookOrphanStillSpeaks(t *testing.T) {
	f := newFixture(t)

	rec := f.postForm("/api/calls/webhook/voice", url.Values{
		"CallSid": {"CA404"},
		"To":      {"+15559990000"},
	})

	// An unresolvable callback still gets speakable TwiML, never an HTTP error.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Hangup")
	assert.Zero(t, f.provider.calls)
}

func TestHandleStatusWebhookFinalizesSession(t *testing.T) {
	f := newFixture(t)
	sessionID := f.inConversation(t, "CA001")

	rec := f.postForm("/api/calls/webhook/status", url.Values{
		"CallSid":    {"CA001"},
		"CallStatus": {"no-answer"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	sess, err := f.registry.GetByID(sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, sess.Status)
}
