// Package llmservice talks to the OpenAI-compatible inference model that
// writes answers from retrieved policy excerpts.
package llmservice

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"policy-rag/internal/config"
)

const systemPrompt = "You are an insurance policy expert. Answer strictly from the provided policy excerpts."

// GenerateContent calls the configured chat model once. Tools, streaming and
// sampling settings are passed as call options.
func GenerateContent(ctx context.Context, llmConfig *config.LLMConfig, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	log.Debug().Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Generating content")
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, err
	}
	return llm.GenerateContent(ctx, messages, opts...)
}

// Client answers prompts with one configured model.
type Client struct {
	cfg config.LLMConfig
}

func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.Model == "" || cfg.BaseURL == "" {
		return nil, errors.New("inference_llm needs base_url and model")
	}
	return &Client{cfg: cfg}, nil
}

// Answer sends prompt as a single user turn. When onChunk is set the reply
// is streamed to it as it arrives; the full reply is returned either way.
func (c *Client) Answer(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(0)}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onChunk(string(chunk))
			return nil
		}))
	}

	resp, err := GenerateContent(ctx, &c.cfg, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
