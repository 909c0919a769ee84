package twilio

import (
	"context"
	"fmt"

	"outreach-server/internal/observability"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client wraps the Twilio REST API for outbound calls and SMS delivery.
type Client struct {
	rest   *twilio.RestClient
	from   string
	logger *observability.Logger
}

// New creates a Twilio client. from is the E.164 caller id used for every
// outbound call and text.
func New(accountSID, authToken, from string, logger *observability.Logger) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("Twilio credentials are required")
	}
	if from == "" {
		return nil, fmt.Errorf("Twilio caller id is required")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &Client{rest: rest, from: from, logger: logger}, nil
}

// InitiateCall places an outbound call. Twilio fetches TwiML from answerURL
// when the callee picks up and reports lifecycle events to statusCallbackURL.
// Returns the provider call sid.
func (c *Client) InitiateCall(ctx context.Context, to, answerURL, statusCallbackURL string) (string, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_to", Value: to})

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetUrl(answerURL)
	params.SetMethod("POST")
	if statusCallbackURL != "" {
		params.SetStatusCallback(statusCallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"answered", "completed"})
	}

	resp, err := c.rest.Api.CreateCall(params)
	if err != nil {
		c.logger.Error(ctx, "failed to create outbound call", err)
		return "", fmt.Errorf("failed to create outbound call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("outbound call created without a sid")
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: *resp.Sid},
	), "outbound call created")
	return *resp.Sid, nil
}

// SendSMS delivers a text message and returns the message sid.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "sms_to", Value: to})

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.rest.Api.CreateMessage(params)
	if err != nil {
		c.logger.Error(ctx, "failed to send sms", err)
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("sms sent without a sid")
	}

	c.logger.Info(ctx, "sms sent successfully")
	return *resp.Sid, nil
}
