package campaign

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"outreach-server/internal/session"
)

// ErrValidation marks a campaign payload that cannot produce a usable session
// config. It is returned before any session exists, so callers surface it
// directly instead of absorbing it into a call.
var ErrValidation = errors.New("invalid campaign payload")

// e164Pattern matches phone numbers in E.164 form, which is the only form the
// telephony provider accepts for outbound dialing.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Defaults are campaign-level settings loaded from the store. Explicit payload
// values always win over defaults.
type Defaults struct {
	BusinessName     string
	AgentName        string
	OfferDescription string
	DiscountPercent  int
	Voice            string
	Language         string
}

// Payload key aliases, first match wins. Campaign triggers come from several
// upstream systems that never agreed on field names.
var (
	phoneKeys    = []string{"phone", "phone_number", "to", "destination_number"}
	nameKeys     = []string{"customer_name", "name", "first_name", "contact_name"}
	emailKeys    = []string{"customer_email", "email"}
	businessKeys = []string{"business_name", "business", "company", "company_name"}
	agentKeys    = []string{"agent_name", "agent"}
	offerKeys    = []string{"offer_description", "offer", "promotion", "promo_description"}
	discountKeys = []string{"discount_percent", "discount", "percent_off"}
	voiceKeys    = []string{"voice", "voice_id"}
	languageKeys = []string{"language", "lang", "locale"}
	campaignKeys = []string{"campaign_id", "campaign"}
)

// Normalize turns a raw trigger payload into the canonical session config.
// All payload-shape tolerance lives here; everything downstream only ever
// sees the canonical form.
func Normalize(payload map[string]interface{}, defaults Defaults) (session.Config, error) {
	phone := strings.TrimSpace(stringValue(payload, phoneKeys))
	if phone == "" {
		return session.Config{}, fmt.Errorf("%w: missing destination phone number", ErrValidation)
	}
	if !e164Pattern.MatchString(phone) {
		return session.Config{}, fmt.Errorf("%w: phone number %q is not in E.164 format", ErrValidation, phone)
	}

	cfg := session.Config{
		CampaignID:       stringValue(payload, campaignKeys),
		Phone:            phone,
		CustomerName:     stringValue(payload, nameKeys),
		CustomerEmail:    stringValue(payload, emailKeys),
		BusinessName:     firstNonEmpty(stringValue(payload, businessKeys), defaults.BusinessName),
		AgentName:        firstNonEmpty(stringValue(payload, agentKeys), defaults.AgentName),
		OfferDescription: firstNonEmpty(stringValue(payload, offerKeys), defaults.OfferDescription),
		Voice:            firstNonEmpty(stringValue(payload, voiceKeys), defaults.Voice),
		Language:         firstNonEmpty(stringValue(payload, languageKeys), defaults.Language),
	}

	if cfg.CustomerName == "" {
		cfg.CustomerName = "there"
	}
	if cfg.BusinessName == "" {
		return session.Config{}, fmt.Errorf("%w: missing business name", ErrValidation)
	}
	if cfg.OfferDescription == "" {
		return session.Config{}, fmt.Errorf("%w: missing offer description", ErrValidation)
	}

	discount, ok, err := intValue(payload, discountKeys)
	if err != nil {
		return session.Config{}, err
	}
	if !ok {
		discount = defaults.DiscountPercent
	}
	if discount < 0 || discount > 100 {
		return session.Config{}, fmt.Errorf("%w: discount percent %d out of range", ErrValidation, discount)
	}
	cfg.DiscountPercent = discount

	return cfg, nil
}

// CampaignID extracts the campaign identifier so callers can load campaign
// defaults before normalizing the rest of the payload.
func CampaignID(payload map[string]interface{}) string {
	return stringValue(payload, campaignKeys)
}

func stringValue(payload map[string]interface{}, keys []string) string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// intValue reads the first present alias as an int. JSON numbers arrive as
// float64; some upstreams send the percentage as a string.
func intValue(payload map[string]interface{}, keys []string) (int, bool, error) {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return int(v), true, nil
		case int:
			return v, true, nil
		case string:
			trimmed := strings.TrimSuffix(strings.TrimSpace(v), "%")
			if trimmed == "" {
				continue
			}
			n, err := strconv.Atoi(trimmed)
			if err != nil {
				return 0, false, fmt.Errorf("%w: field %q is not a number", ErrValidation, key)
			}
			return n, true, nil
		default:
			return 0, false, fmt.Errorf("%w: field %q has unsupported type", ErrValidation, key)
		}
	}
	return 0, false, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
