package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/ghl-peak/peak-go/internal/config"
)

// Gemini streams completions from the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini-backed Streamer.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// StreamCompletion rebuilds the chat from the request history and streams the
// reply to the new message, fragment by fragment.
func (g *Gemini) StreamCompletion(ctx context.Context, req CompletionRequest, onFragment func(text string)) error {
	history := make([]*genai.Content, 0, len(req.History))
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == "model" {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(t.Text, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
	}

	session, err := g.client.Chats.Create(ctx, req.Model, cfg, history)
	if err != nil {
		return fmt.Errorf("creating chat: %w", err)
	}

	for resp, err := range session.SendMessageStream(ctx, genai.Part{Text: req.Message}) {
		if err != nil {
			return fmt.Errorf("streaming completion: %w", err)
		}
		if text := resp.Text(); text != "" {
			onFragment(text)
		}
	}
	return nil
}
