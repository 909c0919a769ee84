package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CampaignCallSettings are the campaign-level defaults merged under explicit
// trigger payload values when a session is created.
type CampaignCallSettings struct {
	CampaignID       string         `db:"campaign_id"`
	BusinessName     string         `db:"business_name"`
	AgentName        sql.NullString `db:"agent_name"`
	OfferDescription string         `db:"offer_description"`
	DiscountPercent  int            `db:"discount_percent"`
	Voice            sql.NullString `db:"voice"`
	Language         sql.NullString `db:"language"`
}

const sqlGetCampaignCallSettings = `
SELECT campaign_id, business_name, agent_name, offer_description, discount_percent, voice, language
FROM campaign_call_settings
WHERE campaign_id = $1`

func (s *Store) GetCampaignCallSettings(ctx context.Context, campaignID string) (CampaignCallSettings, error) {
	var settings CampaignCallSettings
	err := s.db.GetContext(ctx, &settings, sqlGetCampaignCallSettings, campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignCallSettings{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign call settings", err)
		return CampaignCallSettings{}, fmt.Errorf("failed to get campaign call settings: %w", err)
	}
	return settings, nil
}
