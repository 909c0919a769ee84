package mail

import (
	"context"
	"fmt"

	"outreach-server/internal/observability"

	"github.com/resendlabs/resend-go"
)

// ResendClient sends transactional email, used for the discount recap when the
// customer has an email on file.
type ResendClient struct {
	client *resend.Client
	from   string
	logger *observability.Logger
}

func NewResendClient(apiKey, from string, logger *observability.Logger) (*ResendClient, error) {
	client := resend.NewClient(apiKey)
	if client == nil {
		return nil, fmt.Errorf("failed to create Resend client")
	}

	return &ResendClient{
		client: client,
		from:   from,
		logger: logger,
	}, nil
}

func (c *ResendClient) SendEmail(ctx context.Context, to, subject, htmlContent string) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "email_to", Value: to},
		observability.Field{Key: "email_subject", Value: subject},
	)

	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlContent,
	}

	res, err := c.client.Emails.Send(params)
	if err != nil {
		c.logger.Error(ctx, "failed to send email", err)
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Info(ctx, "email sent successfully")
	return res.Id, nil
}

// SendDiscountRecap emails the customer a copy of the promo code they just
// accepted on the call.
func (c *ResendClient) SendDiscountRecap(ctx context.Context, to, businessName, offer, promoCode string) (string, error) {
	subject := fmt.Sprintf("Your %s discount", businessName)
	html := fmt.Sprintf(
		"<p>Thanks for chatting with us today!</p><p>%s</p><p>Your code: <strong>%s</strong></p>",
		offer, promoCode,
	)
	return c.SendEmail(ctx, to, subject, html)
}
