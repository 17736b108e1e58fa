package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// Completer sends one system+user exchange to a chat model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client wraps the OpenAI SDK.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// New returns a Client. Without an apiKey every call fails with ErrClientNotInitialised.
func New(apiKey, model string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  openai.ChatModel(model),
	}
}

// Complete implements Completer with a low-temperature chat completion.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(system),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(user),
					},
				},
			},
		},
		Temperature:         openai.Float(0.1),
		MaxCompletionTokens: openai.Int(300),
	}

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
