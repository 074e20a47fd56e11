// Package openai provides a model.Client implementation backed by the
// OpenAI Chat Completions API. It translates normalized requests into
// ChatCompletion calls using github.com/sashabaranov/go-openai with JSON
// mode enabled and parses the completion into the object agents expect.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"goa.design/ensemble/model"
)

type (
	// ChatClient captures the subset of the go-openai client used by
	// the adapter.
	ChatClient interface {
		CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
			openai.ChatCompletionResponse, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// Client performs the API calls. Required.
		Client ChatClient
		// DefaultModel is used when a request does not name a model.
		// Required.
		DefaultModel string
		// MaxTokens sets the default completion cap when a request does
		// not specify MaxTokens.
		MaxTokens int
	}

	// Client implements model.Client via the OpenAI Chat Completions
	// API.
	Client struct {
		chat   ChatClient
		model  string
		maxTok int
	}
)

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel, maxTok: opts.MaxTokens}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// GenerateJSON renders a chat completion in JSON mode and parses the
// reply.
func (c *Client) GenerateJSON(ctx context.Context, req model.Request) (*model.Result, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, model.ErrNoContent
	}

	raw := response.Choices[0].Message.Content
	obj, err := model.ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return &model.Result{
		Object: obj,
		Raw:    raw,
		Usage: model.TokenUsage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
			TotalTokens:  response.Usage.TotalTokens,
		},
		StopReason: string(response.Choices[0].FinishReason),
	}, nil
}
