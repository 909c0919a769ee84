package dialogue

import (
	"context"
	"encoding/json"

	"outreach-server/internal/session"
)

// ToolKind is the closed set of tools the agent may invoke. Tool names coming
// back from a model are parsed into this enum; anything else is an unknown
// tool and is treated as if no tool was requested.
type ToolKind string

const (
	// ToolSendDiscount delivers the promotional discount to the customer
	// (promo code mint + SMS, optionally a recap email).
	ToolSendDiscount ToolKind = "send_discount"

	// ToolEndConversation signals that the conversation is finished and the
	// call should be wrapped up.
	ToolEndConversation ToolKind = "end_conversation"
)

// ParseToolKind maps a model-provided tool name onto the catalog.
func ParseToolKind(name string) (ToolKind, bool) {
	switch ToolKind(name) {
	case ToolSendDiscount:
		return ToolSendDiscount, true
	case ToolEndConversation:
		return ToolEndConversation, true
	default:
		return "", false
	}
}

// ToolSpec describes one catalog entry in the shape LLM providers need to
// advertise it as a callable function.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Catalog returns the fixed tool catalog advertised on every agent turn.
func Catalog() []ToolSpec {
	return []ToolSpec{
		{
			Name: string(ToolSendDiscount),
			Description: "Send the promotional discount to the customer right now. " +
				"Use only after the customer clearly agrees to receive it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Short note on why the customer accepted the offer.",
					},
				},
			},
		},
		{
			Name: string(ToolEndConversation),
			Description: "End the phone call. Use when the customer wants to stop, " +
				"declines the offer, or everything is wrapped up.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"outcome": map[string]interface{}{
						"type":        "string",
						"description": "One of: accepted, declined, callback_requested, other.",
					},
				},
			},
		},
	}
}

// TurnResult is what an LLM provider produced for one agent turn: either an
// utterance, a tool call, or both (in which case the tool call wins).
type TurnResult struct {
	Utterance string
	ToolName  string
	ToolArgs  json.RawMessage
}

// TurnProvider produces the next agent turn from the conversation so far.
// When allowTools is false the provider must not advertise the tool catalog,
// forcing a plain utterance.
type TurnProvider interface {
	NextTurn(ctx context.Context, systemInstructions string, turns []session.Turn, allowTools bool) (TurnResult, error)
}

// ToolExecutor runs exactly one requested catalog tool. The returned string
// is the structured result fed back to the model as a tool-result turn; it is
// never spoken to the caller.
type ToolExecutor interface {
	Run(ctx context.Context, kind ToolKind, args json.RawMessage, config session.Config) (string, error)
}
