package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock is an offline Streamer for local development: it echoes the user
// message back word by word so the streaming path stays exercised without a
// network dependency.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) StreamCompletion(_ context.Context, req CompletionRequest, onFragment func(text string)) error {
	reply := fmt.Sprintf("You said %q. This is a canned reply from the mock backend.", req.Message)
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		onFragment(w)
	}
	return nil
}
