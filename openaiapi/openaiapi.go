// Package openaiapi implements the translator.Provider contract on top of
// an OpenAI-compatible chat completions endpoint.
//
// The engine owns credential and model rotation, so the API key and model
// arrive with every request; the client itself is created once per job with
// the endpoint base URL.
//
// Error classification:
//   - HTTP 401/403, or a "leaked" key message  → translator.ErrCredential
//   - finish_reason "content_filter", or a 400 naming the content policy
//     → translator.ErrSafetyRefusal
//   - everything else (429, 5xx, timeouts, empty choices) → transient
package openaiapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"bilibook/translator"
)

// Client calls one OpenAI-compatible endpoint.
type Client struct {
	api openai.Client
}

// New creates a client for the given base URL. An empty baseURL uses the
// official OpenAI endpoint.
func New(baseURL string) *Client {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{api: openai.NewClient(opts...)}
}

// Complete performs one chat completion call.
func (c *Client) Complete(ctx context.Context, req translator.Request) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(req.System),
				openai.UserMessage(req.User),
			},
			Model: req.Model,
		},
		option.WithAPIKey(req.Key),
	)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("completion stopped by content filter: %w", translator.ErrSafetyRefusal)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("completion returned no content")
	}
	return choice.Message.Content, nil
}

// classify maps API errors onto the engine's taxonomy.
func classify(err error) error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return err // network-level: transient
	}

	msg := strings.ToLower(apierr.Error())
	switch apierr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", apierr.Error(), translator.ErrCredential)
	case http.StatusBadRequest:
		if strings.Contains(msg, "content_policy") || strings.Contains(msg, "content management policy") {
			return fmt.Errorf("%s: %w", apierr.Error(), translator.ErrSafetyRefusal)
		}
	}
	if strings.Contains(msg, "leaked") {
		return fmt.Errorf("%s: %w", apierr.Error(), translator.ErrCredential)
	}
	return err
}

var _ translator.Provider = (*Client)(nil)
