package llm

import "context"

// Turn is one prior conversation turn in the provider wire shape. Role is
// either "user" or "model"; the exchange layer has already folded any other
// role into "user".
type Turn struct {
	Role string
	Text string
}

// CompletionRequest carries everything one streamed completion needs. The
// full prior context is rebuilt on every turn; no server-side session handle
// is held between calls.
type CompletionRequest struct {
	Model             string
	SystemInstruction string
	History           []Turn
	Message           string
}

// Streamer is the minimal subset of a completion backend the exchange layer
// uses; it is easy to stub in tests. Implementations invoke onFragment once
// per text fragment, in arrival order, and return only after the stream
// terminates.
type Streamer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest, onFragment func(text string)) error
}
