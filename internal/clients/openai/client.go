package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

const defaultModel = openai.ChatModelGPT4oMini

// Client produces agent turns via OpenAI chat completions with function tools.
type Client struct {
	client openai.Client
	model  string
	logger *observability.Logger
}

// New creates an OpenAI turn provider.
func New(apiKey, model string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client: openai.NewClient(openaiOption.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}, nil
}

// NextTurn implements dialogue.TurnProvider.
func (c *Client) NextTurn(ctx context.Context, systemInstructions string, turns []session.Turn, allowTools bool) (dialogue.TurnResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(systemInstructions, turns),
	}
	if allowTools {
		params.Tools = buildTools()
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error(ctx, "OpenAI chat completion failed", err)
		return dialogue.TurnResult{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return dialogue.TurnResult{}, fmt.Errorf("openai chat completion returned no choices")
	}

	message := resp.Choices[0].Message
	result := dialogue.TurnResult{Utterance: message.Content}
	if len(message.ToolCalls) > 0 {
		call := message.ToolCalls[0]
		result.ToolName = call.Function.Name
		result.ToolArgs = json.RawMessage(call.Function.Arguments)
	}
	return result, nil
}

// buildMessages maps the transcript into chat messages. Tool results are
// replayed as system context because the transcript stores them as plain text,
// not as paired assistant tool-call messages.
func buildMessages(systemInstructions string, turns []session.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(systemInstructions))
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleAgent:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case session.RoleToolResult:
			messages = append(messages, openai.SystemMessage("Tool result (never read aloud): "+turn.Text))
		}
	}
	return messages
}

func buildTools() []openai.ChatCompletionToolParam {
	catalog := dialogue.Catalog()
	tools := make([]openai.ChatCompletionToolParam, 0, len(catalog))
	for _, spec := range catalog {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.Parameters),
			},
		})
	}
	return tools
}
