package llm

import (
	"context"
	"fmt"

	"github.com/ghl-peak/peak-go/internal/config"
)

// New builds the Streamer selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Streamer, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
