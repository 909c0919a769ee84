package dialogue

import (
	"fmt"
	"strings"

	"outreach-server/internal/session"
)

// Fixed lines spoken when the engine cannot or should not consult the model.
const (
	apologyLine  = "I'm sorry, we're having a technical issue on our end. We'll reach out another time. Goodbye."
	goodbyeLine  = "Thanks so much for your time today. Have a great day, goodbye!"
	repromptLine = "Sorry, I didn't catch that. Could you say that again?"
)

// BuildSystemInstructions renders the per-session system prompt from the
// immutable session config. It is called once per session; the registry caches
// the result so every later turn reuses the same instructions.
func BuildSystemInstructions(cfg session.Config) string {
	var b strings.Builder

	agent := cfg.AgentName
	if agent == "" {
		agent = "Alex"
	}

	fmt.Fprintf(&b, "You are %s, a friendly voice agent calling on behalf of %s.\n", agent, cfg.BusinessName)
	fmt.Fprintf(&b, "You are on an outbound phone call with %s.\n\n", cfg.CustomerName)

	b.WriteString("Goal: let the customer know about a current promotion and, if they are interested, send it to them.\n")
	fmt.Fprintf(&b, "Offer: %s", cfg.OfferDescription)
	if cfg.DiscountPercent > 0 {
		fmt.Fprintf(&b, " (%d%% off)", cfg.DiscountPercent)
	}
	b.WriteString("\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Keep every reply short and conversational, one or two sentences. This is a phone call, not a chat.\n")
	b.WriteString("- Never read out codes, JSON, URLs, or internal tool output. Describe results in plain words.\n")
	fmt.Fprintf(&b, "- When the customer agrees to receive the offer, call the %s tool. Do not promise delivery before the tool succeeds.\n", ToolSendDiscount)
	fmt.Fprintf(&b, "- If a tool reports a failure, apologize briefly and offer to follow up later. Do not retry %s.\n", ToolSendDiscount)
	fmt.Fprintf(&b, "- When the customer declines, asks to stop, or the conversation is done, call the %s tool, then say a short goodbye.\n", ToolEndConversation)
	b.WriteString("- If the customer asks to be removed from future calls, acknowledge it and end the conversation.\n")

	if cfg.Language != "" {
		fmt.Fprintf(&b, "- Speak in %s.\n", cfg.Language)
	}

	return b.String()
}
