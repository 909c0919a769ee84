package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMinter struct {
	code string
	err  error
}

func (f *fakeMinter) MintPromotionCode(_ context.Context, _ int, _ string) (string, error) {
	return f.code, f.err
}

type fakeMessenger struct {
	bodies []string
	err    error
}

func (f *fakeMessenger) SendSMS(_ context.Context, _, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bodies = append(f.bodies, body)
	return "SM001", nil
}

type fakeMailer struct {
	sent int
	err  error
}

func (f *fakeMailer) SendDiscountRecap(_ context.Context, _, _, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent++
	return "email-1", nil
}

func toolConfig() session.Config {
	return session.Config{
		CampaignID:       "camp-42",
		Phone:            "+15551230001",
		CustomerName:     "Dana",
		CustomerEmail:    "dana@example.com",
		BusinessName:     "Fresh Bites",
		OfferDescription: "20% off your next order",
		DiscountPercent:  20,
	}
}

func TestSendDiscountMintsAndTexts(t *testing.T) {
	sms := &fakeMessenger{}
	mailer := &fakeMailer{}
	executor := NewToolExecutor(&fakeMinter{code: "SAVE20-XYZ"}, sms, mailer, observability.NewLogger())

	result, err := executor.Run(context.Background(), dialogue.ToolSendDiscount, nil, toolConfig())
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, "sent", parsed["status"])
	assert.Equal(t, "SAVE20-XYZ", parsed["promo_code"])
	assert.Equal(t, true, parsed["emailed"])

	require.Len(t, sms.bodies, 1)
	assert.Contains(t, sms.bodies[0], "SAVE20-XYZ")
	assert.Contains(t, sms.bodies[0], "Fresh Bites")
	assert.Equal(t, 1, mailer.sent)
}

func TestSendDiscountMailFailureIsBestEffort(t *testing.T) {
	sms := &fakeMessenger{}
	executor := NewToolExecutor(&fakeMinter{code: "SAVE20-XYZ"}, sms, &fakeMailer{err: errors.New("mail down")}, observability.NewLogger())

	result, err := executor.Run(context.Background(), dialogue.ToolSendDiscount, nil, toolConfig())
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, false, parsed["emailed"])
}

func TestSendDiscountSMSFailurePropagates(t *testing.T) {
	executor := NewToolExecutor(&fakeMinter{code: "SAVE20-XYZ"}, &fakeMessenger{err: errors.New("sms gateway down")}, nil, observability.NewLogger())

	_, err := executor.Run(context.Background(), dialogue.ToolSendDiscount, nil, toolConfig())
	assert.Error(t, err)
}

func TestSendDiscountSkipsEmailWithoutAddress(t *testing.T) {
	mailer := &fakeMailer{}
	executor := NewToolExecutor(&fakeMinter{code: "SAVE20-XYZ"}, &fakeMessenger{}, mailer, observability.NewLogger())

	cfg := toolConfig()
	cfg.CustomerEmail = ""
	_, err := executor.Run(context.Background(), dialogue.ToolSendDiscount, nil, cfg)
	require.NoError(t, err)
	assert.Zero(t, mailer.sent)
}

func TestEndConversationEchoesOutcome(t *testing.T) {
	executor := NewToolExecutor(&fakeMinter{}, &fakeMessenger{}, nil, observability.NewLogger())

	result, err := executor.Run(context.Background(), dialogue.ToolEndConversation, json.RawMessage(`{"outcome":"declined"}`), toolConfig())
	require.NoError(t, err)
	assert.Contains(t, result, "declined")

	result, err = executor.Run(context.Background(), dialogue.ToolEndConversation, nil, toolConfig())
	require.NoError(t, err)
	assert.Contains(t, result, "other")
}

func TestUnsupportedToolKind(t *testing.T) {
	executor := NewToolExecutor(&fakeMinter{}, &fakeMessenger{}, nil, observability.NewLogger())
	_, err := executor.Run(context.Background(), dialogue.ToolKind("weather"), nil, toolConfig())
	assert.Error(t, err)
}
