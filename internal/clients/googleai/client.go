package googleai

import (
	"context"
	"encoding/json"
	"fmt"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

// kickoffPrompt is what the model sees when the transcript is still empty:
// the call just connected and the agent speaks first.
const kickoffPrompt = "(The call has just connected. Greet the customer and open the conversation.)"

// Client produces agent turns via the Gemini API. It is the config-selected
// alternative to the OpenAI provider.
type Client struct {
	apiKey string
	model  string
	logger *observability.Logger
}

// New creates a Gemini turn provider.
func New(apiKey, model string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{apiKey: apiKey, model: model, logger: logger}, nil
}

// NextTurn implements dialogue.TurnProvider.
func (c *Client) NextTurn(ctx context.Context, systemInstructions string, turns []session.Turn, allowTools bool) (dialogue.TurnResult, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return dialogue.TurnResult{}, fmt.Errorf("creating Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstructions)},
	}
	if allowTools {
		model.Tools = buildTools()
	}

	history, prompt := buildChat(turns)
	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, prompt)
	if err != nil {
		c.logger.Error(ctx, "Gemini chat request failed", err)
		return dialogue.TurnResult{}, fmt.Errorf("gemini chat request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return dialogue.TurnResult{}, fmt.Errorf("gemini returned no candidates")
	}

	var result dialogue.TurnResult
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			result.Utterance += string(p)
		case genai.FunctionCall:
			if result.ToolName != "" {
				continue
			}
			args, err := json.Marshal(p.Args)
			if err != nil {
				return dialogue.TurnResult{}, fmt.Errorf("encoding tool arguments: %w", err)
			}
			result.ToolName = p.Name
			result.ToolArgs = args
		}
	}
	return result, nil
}

// buildChat maps the transcript into Gemini history plus the prompt part for
// the final message. Gemini requires the turn being answered to travel as the
// sent message, not as history.
func buildChat(turns []session.Turn) ([]*genai.Content, genai.Part) {
	if len(turns) == 0 {
		return nil, genai.Text(kickoffPrompt)
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, turn := range turns[:len(turns)-1] {
		history = append(history, toContent(turn))
	}
	last := turns[len(turns)-1]
	return history, genai.Text(turnText(last))
}

func toContent(turn session.Turn) *genai.Content {
	role := "user"
	if turn.Role == session.RoleAgent {
		// Gemini SDK expects "model"
		role = "model"
	}
	return &genai.Content{
		Role:  role,
		Parts: []genai.Part{genai.Text(turnText(turn))},
	}
}

func turnText(turn session.Turn) string {
	if turn.Role == session.RoleToolResult {
		return "Tool result (never read aloud): " + turn.Text
	}
	return turn.Text
}

func buildTools() []*genai.Tool {
	catalog := dialogue.Catalog()
	declarations := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, spec := range catalog {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  toSchema(spec.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toSchema converts the catalog's JSON-schema parameters to the Gemini schema
// type. The catalog only uses flat objects with string properties.
func toSchema(parameters map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
	}
	props, _ := parameters["properties"].(map[string]interface{})
	for name, raw := range props {
		prop := &genai.Schema{Type: genai.TypeString}
		if fields, ok := raw.(map[string]interface{}); ok {
			if desc, ok := fields["description"].(string); ok {
				prop.Description = desc
			}
		}
		schema.Properties[name] = prop
	}
	return schema
}
