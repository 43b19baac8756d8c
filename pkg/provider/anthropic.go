package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient is the subset of the Anthropic SDK the adapter calls. It is
// satisfied by *sdk.MessageService so tests can substitute a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic is the chat-style messages provider with thinking budgets.
type Anthropic struct {
	msg          MessagesClient
	defaultModel string
}

// NewAnthropic wraps an existing messages client.
func NewAnthropic(msg MessagesClient, defaultModel string) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("anthropic default model is required")
	}
	return &Anthropic{msg: msg, defaultModel: defaultModel}, nil
}

// NewAnthropicFromAPIKey builds the provider on the default SDK HTTP client.
func NewAnthropicFromAPIKey(apiKey, defaultModel string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&client.Messages, defaultModel)
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete issues one non-streaming messages request. When reasoning is set
// the thinking budget is enabled and max_tokens grows by the budget so the
// visible completion keeps its full allowance.
func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.Reasoning != "" {
		budget := reasoningBudget(req.Reasoning)
		params.MaxTokens = maxTokens + budget
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("messages.new: %w", err)
	}
	if msg == nil {
		return Response{}, errors.New("messages.new: nil response")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, errors.New("messages.new: no text content")
	}

	return Response{
		Text: text.String(),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
		},
	}, nil
}
