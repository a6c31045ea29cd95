package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	TopP         float32
	MaxTokens    int
	SystemPrompt string
	Proxy        *url.URL
}

type Client struct {
	client *openai.Client
	opts   Options
}

// NewClient talks to any OpenAI-compatible chat endpoint.
func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	transport := &http.Transport{}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}
	// No client timeout: long generations stream for minutes. Callers bound
	// them with ctx.
	cfg.HTTPClient = &http.Client{Transport: transport}

	return &Client{client: openai.NewClientWithConfig(cfg), opts: opts}
}

// Generate streams one completion for prompt and returns the full text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if c.opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.opts.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeTextGenFailed, "start completion stream", err)
	}
	defer stream.Close()

	var sb strings.Builder
	finish := ""
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", apperrors.Wrap(apperrors.CodeTextGenFailed, "read completion stream", err)
		}
		for _, choice := range resp.Choices {
			sb.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finish = string(choice.FinishReason)
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	log.GetLogger().Debug("[TextGen] completion finished",
		zap.String("model", c.opts.Model), zap.Int("chars", len(text)), zap.String("finish_reason", finish))
	if text == "" {
		return "", apperrors.WrapWithDetail(apperrors.CodeTextGenEmpty, "model returned no text", finish, nil)
	}
	return text, nil
}
