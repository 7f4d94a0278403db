package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pawdesk/app/config"

	"github.com/sashabaranov/go-openai"
)

const defaultTemperature = 0.4

var _ Backend = (*Client)(nil)

// Client is an OpenAI-compatible Backend. Any endpoint speaking the chat
// completion protocol (OpenAI, OpenRouter, local gateways) works.
type Client struct {
	client *openai.Client
	model  string
	name   string
}

func NewClient(name string, cfg config.ModelConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		name:   name,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Invoke(ctx context.Context, systemPrompt string, history []Message, tools []ToolSchema) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, toOpenAIMessage(m))
	}

	request := openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		Temperature:         defaultTemperature,
		MaxCompletionTokens: 2000,
	}
	for _, t := range tools {
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	aiResponse, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	choice := aiResponse.Choices[0].Message

	result := &Response{
		Content: choice.Content,
	}

	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return result, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}

	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}

	return out
}
