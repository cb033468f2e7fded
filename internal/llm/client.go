// Package llm provides the generation service backing pipeline stages,
// built on CloudWeGo Eino chat models.
package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hivemindhq/hivemind/internal/agent"
)

// Config holds provider credentials and model selection.
type Config struct {
	OpenAIAPIKey    string `mapstructure:"openaiApiKey"`
	OpenAIModel     string `mapstructure:"openaiModel"`
	AnthropicAPIKey string `mapstructure:"anthropicApiKey"`
	AnthropicModel  string `mapstructure:"anthropicModel"`
	OllamaBaseURL   string `mapstructure:"ollamaBaseUrl"`
	OllamaModel     string `mapstructure:"ollamaModel"`
	GeminiAPIKey    string `mapstructure:"geminiApiKey"`
	GeminiModel     string `mapstructure:"geminiModel"`

	// DefaultProvider, when set, routes every role to a single provider.
	// When empty, engineering roles (architect, coder, qa) use OpenAI and
	// everything else uses Anthropic.
	DefaultProvider Provider `mapstructure:"defaultProvider" validate:"omitempty,oneof=openai anthropic ollama gemini"`
}

// Client implements agent.Generator. Chat models are built lazily and
// cached per provider.
type Client struct {
	cfg Config

	mu     sync.Mutex
	models map[Provider]model.BaseChatModel
}

// NewClient creates a generation client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		models: make(map[Provider]model.BaseChatModel),
	}
}

// Generate sends a single-prompt request to the provider serving the given
// role and returns the response text. Provider errors, including timeouts,
// are returned as-is for the calling stage to handle.
func (c *Client) Generate(ctx context.Context, role agent.Role, prompt string) (string, error) {
	chatModel, err := c.chatModel(ctx, c.ProviderFor(role))
	if err != nil {
		return "", err
	}
	resp, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return resp.Content, nil
}

// ProviderFor resolves the provider serving a generation role.
func (c *Client) ProviderFor(role agent.Role) Provider {
	if c.cfg.DefaultProvider != "" {
		return c.cfg.DefaultProvider
	}
	switch role {
	case agent.RoleArchitect, agent.RoleCoder, agent.RoleQA:
		return ProviderOpenAI
	}
	return ProviderAnthropic
}

// chatModel returns the cached chat model for a provider, building it on
// first use.
func (c *Client) chatModel(ctx context.Context, p Provider) (model.BaseChatModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[p]; ok {
		return m, nil
	}
	m, err := c.newChatModel(ctx, p)
	if err != nil {
		return nil, err
	}
	c.models[p] = m
	return m, nil
}

func (c *Client) newChatModel(ctx context.Context, p Provider) (model.BaseChatModel, error) {
	switch p {
	case ProviderOpenAI:
		if c.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  orDefault(c.cfg.OpenAIModel, DefaultOpenAIModel),
			APIKey: c.cfg.OpenAIAPIKey,
		})

	case ProviderAnthropic:
		if c.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: c.cfg.AnthropicAPIKey,
			Model:  orDefault(c.cfg.AnthropicModel, DefaultAnthropicModel),
		})

	case ProviderOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: orDefault(c.cfg.OllamaBaseURL, DefaultOllamaURL),
			Model:   orDefault(c.cfg.OllamaModel, DefaultOllamaModel),
		})

	case ProviderGemini:
		if c.cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini extension reads its key from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", c.cfg.GeminiAPIKey)
		_ = os.Setenv("GEMINI_API_KEY", c.cfg.GeminiAPIKey)
		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: orDefault(c.cfg.GeminiModel, DefaultGeminiModel),
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, ollama, gemini)", p)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
