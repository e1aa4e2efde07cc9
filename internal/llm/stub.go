package llm

import (
	"context"
	"sync"
)

// Stub is a scriptable Streamer for tests. It records every request it sees,
// emits its configured fragments, and can be told to fail partway through or
// to block until released.
type Stub struct {
	mu       sync.Mutex
	requests []CompletionRequest

	// Fragments are emitted in order via onFragment.
	Fragments []string
	// Err, when set, is returned after FailAfter fragments have been emitted.
	Err error
	// FailAfter caps how many fragments are emitted before Err is returned.
	// Ignored when Err is nil.
	FailAfter int
	// Block, when non-nil, is waited on before any fragment is emitted.
	Block <-chan struct{}
}

func (s *Stub) StreamCompletion(ctx context.Context, req CompletionRequest, onFragment func(text string)) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i, f := range s.Fragments {
		if s.Err != nil && i >= s.FailAfter {
			return s.Err
		}
		onFragment(f)
	}
	return s.Err
}

// Requests returns a copy of every request streamed so far.
func (s *Stub) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.requests...)
}
