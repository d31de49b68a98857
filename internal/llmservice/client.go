package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
)

// Client is a provider that can both generate content and embed text.
type Client interface {
	llms.Model
	embeddings.EmbedderClient
}

// NewClient builds the provider named in llmConfig.
func NewClient(ctx context.Context, llmConfig *config.LLMConfig, embedding bool) (Client, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("model", llmConfig.Model).
		Bool("embedding", embedding).
		Msg("Creating LLM client")

	switch llmConfig.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		if embedding {
			opts = append(opts, openai.WithEmbeddingModel(llmConfig.Model))
		} else {
			opts = append(opts, openai.WithModel(llmConfig.Model))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "googleai":
		opts := []googleai.Option{googleai.WithAPIKey(llmConfig.Key)}
		if embedding {
			opts = append(opts, googleai.WithDefaultEmbeddingModel(llmConfig.Model))
		} else {
			opts = append(opts, googleai.WithDefaultModel(llmConfig.Model))
		}
		llm, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, llmConfig *config.LLMConfig, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	return llm.GenerateContent(ctx, messages, callOptions(llmConfig)...)
}

// StreamContent generates content and hands every non-empty increment to
// onToken in the order the provider produced it. An error from onToken
// aborts generation.
func StreamContent(ctx context.Context, llm llms.Model, llmConfig *config.LLMConfig, messages []llms.MessageContent, onToken func(string) error) error {
	opts := append(callOptions(llmConfig), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onToken(string(chunk))
	}))
	_, err := llm.GenerateContent(ctx, messages, opts...)
	return err
}

func callOptions(llmConfig *config.LLMConfig) []llms.CallOption {
	// zero is a valid temperature for deterministic answers
	opts := []llms.CallOption{llms.WithTemperature(llmConfig.Temperature)}
	if llmConfig.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(llmConfig.MaxTokens))
	}
	return opts
}
