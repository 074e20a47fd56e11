// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API. It translates normalized requests into
// anthropic.Message calls using github.com/anthropics/anthropic-sdk-go
// and parses the completion text into the JSON object agents expect.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/ensemble/model"
)

// defaultMaxTokens caps completions when neither the request nor the
// options set a limit. Agent replies are small structured objects.
const defaultMaxTokens = 1024

type (
	// MessagesClient captures the subset of the Anthropic SDK client
	// used by the adapter. It is satisfied by *sdk.MessageService so
	// callers can pass either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic adapter.
	Options struct {
		// DefaultModel is the Claude model identifier used when a
		// request does not name one. Required.
		DefaultModel string
		// MaxTokens sets the default completion cap when a request does
		// not specify MaxTokens.
		MaxTokens int
		// Temperature is used when a request does not specify one.
		Temperature float64
	}

	// Client implements model.Client on top of Anthropic Claude
	// Messages.
	Client struct {
		msg          MessagesClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// GenerateJSON issues a Messages.New request and parses the completion
// into a JSON object.
func (c *Client) GenerateJSON(ctx context.Context, req model.Request) (*model.Result, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if t := c.temperature(req); t > 0 {
		params.Temperature = sdk.Float(t)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	if msg == nil {
		return nil, model.ErrNoContent
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := text.String()
	obj, err := model.ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return &model.Result{
		Object: obj,
		Raw:    raw,
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}, nil
}

func (c *Client) temperature(req model.Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return c.temp
}
