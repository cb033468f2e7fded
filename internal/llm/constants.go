package llm

// Provider identifies the generation backend to use.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderGemini    Provider = "gemini"
)

// Default chat models per provider.
const (
	DefaultOpenAIModel    = "gpt-4"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOllamaModel    = "llama3.1"
	DefaultGeminiModel    = "gemini-2.0-flash"

	DefaultOllamaURL = "http://localhost:11434"
)
