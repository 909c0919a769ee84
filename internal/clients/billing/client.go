package billing

import (
	"context"
	"fmt"

	"outreach-server/internal/observability"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/coupon"
	"github.com/stripe/stripe-go/v79/promotioncode"
)

// Client mints single-use promotion codes for accepted offers.
type Client struct {
	logger *observability.Logger
}

func New(stripeKey string, logger *observability.Logger) (*Client, error) {
	if stripeKey == "" {
		return nil, fmt.Errorf("Stripe API key is required")
	}
	stripe.Key = stripeKey
	return &Client{logger: logger}, nil
}

// MintPromotionCode creates a one-off percentage coupon and a single-use
// promotion code for it, returning the human-facing code.
func (c *Client) MintPromotionCode(ctx context.Context, percentOff int, campaignID string) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID},
		observability.Field{Key: "percent_off", Value: percentOff},
	)

	couponParams := &stripe.CouponParams{
		PercentOff: stripe.Float64(float64(percentOff)),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	couponParams.AddMetadata("campaign_id", campaignID)

	cp, err := coupon.New(couponParams)
	if err != nil {
		c.logger.Error(ctx, "failed to create coupon", err)
		return "", fmt.Errorf("failed to create coupon: %w", err)
	}

	promoParams := &stripe.PromotionCodeParams{
		Coupon:         stripe.String(cp.ID),
		MaxRedemptions: stripe.Int64(1),
	}
	promoParams.AddMetadata("campaign_id", campaignID)

	pc, err := promotioncode.New(promoParams)
	if err != nil {
		c.logger.Error(ctx, "failed to create promotion code", err)
		return "", fmt.Errorf("failed to create promotion code: %w", err)
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "promotion_code_id", Value: pc.ID},
	), "promotion code minted")
	return pc.Code, nil
}
