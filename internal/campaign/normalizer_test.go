package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalPayload(t *testing.T) {
	cfg, err := Normalize(map[string]interface{}{
		"campaign_id":       "camp-42",
		"phone":             "+15551230001",
		"customer_name":     "Dana",
		"customer_email":    "dana@example.com",
		"business_name":     "Fresh Bites",
		"agent_name":        "Alex",
		"offer_description": "20% off your next order",
		"discount_percent":  float64(20),
		"voice":             "Polly.Joanna",
		"language":          "English",
	}, Defaults{})

	require.NoError(t, err)
	assert.Equal(t, "camp-42", cfg.CampaignID)
	assert.Equal(t, "+15551230001", cfg.Phone)
	assert.Equal(t, "Dana", cfg.CustomerName)
	assert.Equal(t, "dana@example.com", cfg.CustomerEmail)
	assert.Equal(t, "Fresh Bites", cfg.BusinessName)
	assert.Equal(t, 20, cfg.DiscountPercent)
}

func TestNormalizeKeyAliases(t *testing.T) {
	cfg, err := Normalize(map[string]interface{}{
		"phone_number": "+15551230001",
		"name":         "Dana",
		"company":      "Fresh Bites",
		"promotion":    "free delivery this week",
		"percent_off":  "15",
	}, Defaults{})

	require.NoError(t, err)
	assert.Equal(t, "+15551230001", cfg.Phone)
	assert.Equal(t, "Dana", cfg.CustomerName)
	assert.Equal(t, "Fresh Bites", cfg.BusinessName)
	assert.Equal(t, "free delivery this week", cfg.OfferDescription)
	assert.Equal(t, 15, cfg.DiscountPercent)
}

func TestNormalizeDefaultsFillGapsButNeverOverride(t *testing.T) {
	defaults := Defaults{
		BusinessName:     "Fresh Bites",
		AgentName:        "Alex",
		OfferDescription: "20% off your next order",
		DiscountPercent:  20,
		Voice:            "Polly.Joanna",
	}

	cfg, err := Normalize(map[string]interface{}{
		"to":    "+15551230001",
		"offer": "30% off today only",
	}, defaults)

	require.NoError(t, err)
	assert.Equal(t, "Fresh Bites", cfg.BusinessName)
	assert.Equal(t, "Alex", cfg.AgentName)
	// Explicit payload value wins over the campaign default.
	assert.Equal(t, "30% off today only", cfg.OfferDescription)
	assert.Equal(t, 20, cfg.DiscountPercent)
	assert.Equal(t, "Polly.Joanna", cfg.Voice)
	assert.Equal(t, "there", cfg.CustomerName)
}

func TestNormalizeRejectsBadPhone(t *testing.T) {
	for _, phone := range []string{"", "5551230001", "+0123", "not-a-number", "+1 555 123 0001"} {
		_, err := Normalize(map[string]interface{}{
			"phone":         phone,
			"business_name": "Fresh Bites",
			"offer":         "20% off",
		}, Defaults{})
		assert.ErrorIs(t, err, ErrValidation, "phone %q", phone)
	}
}

func TestNormalizeRejectsMissingRequiredFields(t *testing.T) {
	_, err := Normalize(map[string]interface{}{
		"phone": "+15551230001",
		"offer": "20% off",
	}, Defaults{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Normalize(map[string]interface{}{
		"phone":         "+15551230001",
		"business_name": "Fresh Bites",
	}, Defaults{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeRejectsBadDiscount(t *testing.T) {
	_, err := Normalize(map[string]interface{}{
		"phone":            "+15551230001",
		"business_name":    "Fresh Bites",
		"offer":            "big savings",
		"discount_percent": float64(150),
	}, Defaults{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Normalize(map[string]interface{}{
		"phone":            "+15551230001",
		"business_name":    "Fresh Bites",
		"offer":            "big savings",
		"discount_percent": "lots",
	}, Defaults{})
	assert.ErrorIs(t, err, ErrValidation)
}
