package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message roles accepted by Complete.
const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config contains completion client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client wraps the OpenAI chat completion API behind the single call the
// mode actions need.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a completion client. The API key is required; model
// defaults to gpt-4o-mini.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientConfig),
		model: config.Model,
	}, nil
}

// Complete runs one chat completion over the system prompt and turns and
// returns the assistant text.
func (c *Client) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chat = append(chat, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chat,
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
