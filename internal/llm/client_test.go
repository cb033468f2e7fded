package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemindhq/hivemind/internal/agent"
)

func TestProviderRouting(t *testing.T) {
	c := NewClient(Config{})

	// Engineering roles go to OpenAI, everything else to Anthropic.
	assert.Equal(t, ProviderOpenAI, c.ProviderFor(agent.RoleArchitect))
	assert.Equal(t, ProviderOpenAI, c.ProviderFor(agent.RoleCoder))
	assert.Equal(t, ProviderOpenAI, c.ProviderFor(agent.RoleQA))

	assert.Equal(t, ProviderAnthropic, c.ProviderFor(agent.RoleEcho))
	assert.Equal(t, ProviderAnthropic, c.ProviderFor(agent.RoleReviewer))
	assert.Equal(t, ProviderAnthropic, c.ProviderFor(agent.RoleResearcher))
	assert.Equal(t, ProviderAnthropic, c.ProviderFor(agent.RoleWriter))
	assert.Equal(t, ProviderAnthropic, c.ProviderFor(agent.RoleNetworker))
}

func TestProviderRoutingOverride(t *testing.T) {
	c := NewClient(Config{DefaultProvider: ProviderOllama})

	for _, cfg := range []agent.Role{
		agent.RoleArchitect, agent.RoleCoder, agent.RoleQA,
		agent.RoleEcho, agent.RoleResearcher,
	} {
		assert.Equal(t, ProviderOllama, c.ProviderFor(cfg))
	}
}

func TestChatModelRequiresAPIKey(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(Config{}).chatModel(ctx, ProviderOpenAI)
	require.Error(t, err)

	_, err = NewClient(Config{}).chatModel(ctx, ProviderAnthropic)
	require.Error(t, err)

	_, err = NewClient(Config{}).chatModel(ctx, Provider("unknown"))
	require.Error(t, err)
}

func TestChatModelCaching(t *testing.T) {
	ctx := context.Background()
	c := NewClient(Config{OllamaBaseURL: "http://127.0.0.1:1", OllamaModel: "llama3.1"})

	m1, err := c.chatModel(ctx, ProviderOllama)
	require.NoError(t, err)
	m2, err := c.chatModel(ctx, ProviderOllama)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}
