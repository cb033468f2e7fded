package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/hivemindhq/hivemind/internal/agent"
	"github.com/hivemindhq/hivemind/internal/audit"
	"github.com/hivemindhq/hivemind/internal/llm"
	"github.com/hivemindhq/hivemind/internal/ratelimit"
	"github.com/hivemindhq/hivemind/internal/registry"
	"github.com/hivemindhq/hivemind/internal/safety"
)

// core bundles the wired components behind one CLI invocation.
type core struct {
	store    *audit.Store
	gate     *safety.Gatekeeper
	limiter  *ratelimit.Limiter
	registry *registry.Registry

	cancel context.CancelFunc
}

// buildCore wires the audit store, gatekeeper, limiter, generation client
// and registry from the global configuration.
func buildCore() (*core, error) {
	cfg := GetConfig()

	store, err := audit.NewStore(cfg.Audit.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	rules, err := safety.LoadRulesOrDefault(afero.NewOsFs(), cfg.Safety.RulesFile)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load safety rules: %w", err)
	}
	gate, err := safety.NewGatekeeper(rules, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	limiter := ratelimit.NewLimiter(cfg.Limits, store)

	llmCfg := cfg.LLM
	if llmCfg.OpenAIAPIKey == "" {
		llmCfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if llmCfg.AnthropicAPIKey == "" {
		llmCfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if llmCfg.GeminiAPIKey == "" {
		llmCfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	exec := agent.NewExecutor(llm.NewClient(llmCfg), limiter, store)

	c := &core{
		store:    store,
		gate:     gate,
		limiter:  limiter,
		registry: registry.New(gate, limiter, exec, store),
	}

	if cfg.Safety.WatchRules && cfg.Safety.RulesFile != "" {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go func() {
			if err := safety.WatchRules(ctx, cfg.Safety.RulesFile, gate); err != nil && ctx.Err() == nil {
				slog.Warn("rule watcher stopped", "error", err)
			}
		}()
	}

	return c, nil
}

// close drains in-flight runs and releases resources.
func (c *core) close() {
	c.registry.Wait()
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.store.Close()
}
