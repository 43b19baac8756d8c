package provider

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatClient is the subset of the OpenAI SDK the adapter calls. It is
// satisfied by the SDK's chat completion service.
type ChatClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
}

// OpenAI is the chat/completions provider. Reasoning levels have no
// provider-side budget here; they only travel as model choice upstream.
type OpenAI struct {
	chat         ChatClient
	defaultModel string
}

// NewOpenAI wraps an existing chat completion client.
func NewOpenAI(chat ChatClient, defaultModel string) (*OpenAI, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("openai default model is required")
	}
	return &OpenAI{chat: chat, defaultModel: defaultModel}, nil
}

// NewOpenAIFromAPIKey builds the provider on the default SDK HTTP client.
func NewOpenAIFromAPIKey(apiKey, defaultModel string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAI(&client.Chat.Completions, defaultModel)
}

func (o *OpenAI) Name() string { return "openai" }

// Complete issues one chat completion request and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := o.chat.New(ctx, oai.ChatCompletionNewParams{
		Model:     oai.ChatModel(model),
		MaxTokens: oai.Int(maxTokens),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat.completions.new: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, errors.New("chat.completions.new: no choices")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return Response{}, errors.New("chat.completions.new: empty content")
	}

	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:     resp.Usage.PromptTokens,
			OutputTokens:    resp.Usage.CompletionTokens,
			CacheReadTokens: resp.Usage.PromptTokensDetails.CachedTokens,
		},
	}, nil
}
