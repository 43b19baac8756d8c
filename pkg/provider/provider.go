// Package provider implements the in-process model providers that back
// internal adapters: chat-style messages with thinking budgets, and
// chat/completions. Providers are tried in configured order with
// fallthrough, mirroring the CLI adapter list.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// defaultMaxTokens caps completions when the caller does not say otherwise.
const defaultMaxTokens int64 = 8192

// ErrNoProviderSucceeded is returned once every configured provider has
// failed for a request.
var ErrNoProviderSucceeded = errors.New("no provider succeeded")

// Request is one in-process completion request. Reasoning selects a
// thinking budget on providers that support it; empty disables thinking.
type Request struct {
	Model     string
	Reasoning string
	Prompt    string
	MaxTokens int64
}

// Usage reports token accounting as the provider returned it.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Response is one successful completion.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is a single model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// reasoningBudget maps a reasoning level to a thinking token budget.
// Unknown levels get the default budget.
func reasoningBudget(reasoning string) int64 {
	switch strings.ToLower(reasoning) {
	case "low":
		return 1024
	case "medium":
		return 4096
	case "high":
		return 16384
	case "xhigh":
		return 32768
	default:
		return 1024
	}
}

// Chain tries providers in configured order. An id from the configured
// order that matches no registered provider is skipped with a warning at
// construction time.
type Chain struct {
	ordered []Provider
	byName  map[string]Provider
	logger  *slog.Logger
}

// NewChain resolves order against the given providers; an empty order
// keeps registration order.
func NewChain(order []string, providers []Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "provider_chain")

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[strings.ToLower(p.Name())] = p
	}

	var ordered []Provider
	if len(order) == 0 {
		ordered = append(ordered, providers...)
	} else {
		for _, id := range order {
			p, ok := byName[strings.ToLower(id)]
			if !ok {
				logger.Warn("Configured provider unknown, skipping", "provider", id)
				continue
			}
			ordered = append(ordered, p)
		}
	}
	return &Chain{ordered: ordered, byName: byName, logger: logger}
}

// Complete serves an internal adapter invocation. A providerID naming a
// registered provider pins the request to it; otherwise the configured
// order is tried with fallthrough.
func (c *Chain) Complete(ctx context.Context, providerID, model, reasoning, prompt string) (string, error) {
	req := Request{Model: model, Reasoning: reasoning, Prompt: prompt}

	if p, ok := c.byName[strings.ToLower(providerID)]; ok {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		return resp.Text, nil
	}

	var failures []string
	for _, p := range c.ordered {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			c.logger.Warn("Provider failed, falling through", "provider", p.Name(), "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		return resp.Text, nil
	}
	if len(failures) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrNoProviderSucceeded)
	}
	return "", fmt.Errorf("%w: %s", ErrNoProviderSucceeded, strings.Join(failures, " | "))
}
