package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
)

// PromoMinter creates a redeemable promotion code for the accepted offer.
type PromoMinter interface {
	MintPromotionCode(ctx context.Context, percentOff int, campaignID string) (string, error)
}

// Messenger delivers the discount text to the customer's phone.
type Messenger interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// RecapMailer emails a copy of the discount when the customer has an email on
// file. Optional; may be nil.
type RecapMailer interface {
	SendDiscountRecap(ctx context.Context, to, businessName, offer, promoCode string) (string, error)
}

// ToolExecutor runs the dialogue tool catalog against real collaborators. It
// is the only place tool side effects happen.
type ToolExecutor struct {
	minter PromoMinter
	sms    Messenger
	mailer RecapMailer
	logger *observability.Logger
}

func NewToolExecutor(minter PromoMinter, sms Messenger, mailer RecapMailer, logger *observability.Logger) *ToolExecutor {
	return &ToolExecutor{
		minter: minter,
		sms:    sms,
		mailer: mailer,
		logger: logger,
	}
}

type endConversationArgs struct {
	Outcome string `json:"outcome"`
}

// Run implements dialogue.ToolExecutor.
func (x *ToolExecutor) Run(ctx context.Context, kind dialogue.ToolKind, args json.RawMessage, cfg session.Config) (string, error) {
	switch kind {
	case dialogue.ToolSendDiscount:
		return x.sendDiscount(ctx, cfg)
	case dialogue.ToolEndConversation:
		var parsed endConversationArgs
		if len(args) > 0 {
			// Malformed outcome metadata is not worth failing the hangup over.
			_ = json.Unmarshal(args, &parsed)
		}
		if parsed.Outcome == "" {
			parsed.Outcome = "other"
		}
		return fmt.Sprintf(`{"status":"ok","outcome":%q}`, parsed.Outcome), nil
	default:
		return "", fmt.Errorf("unsupported tool kind %q", kind)
	}
}

// sendDiscount mints the promo code and texts it to the customer. The email
// recap is best effort and never fails the tool.
func (x *ToolExecutor) sendDiscount(ctx context.Context, cfg session.Config) (string, error) {
	code, err := x.minter.MintPromotionCode(ctx, cfg.DiscountPercent, cfg.CampaignID)
	if err != nil {
		return "", fmt.Errorf("minting promotion code: %w", err)
	}

	body := fmt.Sprintf("Hi %s! Here's your offer from %s: %s. Use code %s.",
		cfg.CustomerName, cfg.BusinessName, cfg.OfferDescription, code)
	if _, err := x.sms.SendSMS(ctx, cfg.Phone, body); err != nil {
		return "", fmt.Errorf("sending discount sms: %w", err)
	}

	emailed := false
	if x.mailer != nil && cfg.CustomerEmail != "" {
		if _, err := x.mailer.SendDiscountRecap(ctx, cfg.CustomerEmail, cfg.BusinessName, cfg.OfferDescription, code); err != nil {
			x.logger.Error(ctx, "Failed to send discount recap email", err)
		} else {
			emailed = true
		}
	}

	result, err := json.Marshal(map[string]interface{}{
		"status":     "sent",
		"promo_code": code,
		"channel":    "sms",
		"emailed":    emailed,
	})
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(result), nil
}
