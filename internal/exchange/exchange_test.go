package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/llm"
	"github.com/ghl-peak/peak-go/internal/registry"
	"github.com/ghl-peak/peak-go/internal/store"
)

func newTestProtocol(stub *llm.Stub) (*Protocol, *registry.Registry) {
	reg := registry.New(store.NewMemory())
	settings := NewSettings(chat.DefaultModel, 0.7)
	return New(reg, stub, settings, ""), reg
}

func TestSend_SuccessEndToEnd(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"Hi", " there"}}
	p, reg := newTestProtocol(stub)

	var streamed strings.Builder
	err := p.Send(context.Background(), "", "Hello", func(text string) {
		streamed.WriteString(text)
	})
	require.NoError(t, err)

	// A session was synthesized and selected.
	s, ok := reg.CurrentSession()
	require.True(t, ok)
	require.Equal(t, "Hello", s.Title)

	require.Len(t, s.Messages, 2)
	require.Equal(t, chat.RoleUser, s.Messages[0].Role)
	require.Equal(t, "Hello", s.Messages[0].Content)
	require.Equal(t, chat.RoleModel, s.Messages[1].Role)
	require.Equal(t, "Hi there", s.Messages[1].Content)

	require.Equal(t, "Hi there", streamed.String())
	require.Empty(t, p.StreamingContent())
	require.False(t, p.Busy())

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, chat.DefaultModel, reqs[0].Model)
	require.Equal(t, chat.SystemInstruction, reqs[0].SystemInstruction)
	require.Empty(t, reqs[0].History, "the new user message is not part of the history")
	require.Equal(t, "Hello", reqs[0].Message)
}

func TestSend_EmptyInputRejected(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"never"}}
	p, reg := newTestProtocol(stub)

	require.ErrorIs(t, p.Send(context.Background(), "", "   \n\t", nil), ErrEmptyMessage)
	require.Empty(t, reg.Snapshot().Sessions, "no session is synthesized for a rejected send")
	require.Empty(t, stub.Requests())
}

func TestSend_FailureCommitsSystemNotice(t *testing.T) {
	stub := &llm.Stub{
		Fragments: []string{"par", "tial", " out", "put"},
		Err:       errors.New("upstream exploded"),
		FailAfter: 3,
	}
	p, reg := newTestProtocol(stub)

	err := p.Send(context.Background(), "", "Hello", nil)
	require.NoError(t, err, "completion failures are absorbed, not returned")

	s, ok := reg.CurrentSession()
	require.True(t, ok)
	require.Len(t, s.Messages, 2, "optimistic user message plus exactly one terminal message")
	require.Equal(t, chat.RoleUser, s.Messages[0].Role)
	require.Equal(t, chat.RoleSystem, s.Messages[1].Role)
	require.Equal(t, chat.ErrorReply, s.Messages[1].Content)
	require.NotContains(t, s.Messages[1].Content, "exploded", "raw error detail never reaches the user")

	require.Empty(t, p.StreamingContent(), "transient buffer is cleared on the failure path")
	require.False(t, p.Busy())
}

func TestSend_FailureDoesNotTouchUpdatedAt(t *testing.T) {
	stub := &llm.Stub{Err: errors.New("down")}
	p, reg := newTestProtocol(stub)

	id := reg.CreateSession()
	before, _ := reg.Session(id)

	require.NoError(t, p.Send(context.Background(), "", "Hello", nil))

	after, _ := reg.Session(id)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestSend_TitleSetOnce(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"ok"}}
	p, reg := newTestProtocol(stub)

	long := strings.Repeat("x", 45)
	require.NoError(t, p.Send(context.Background(), "", long, nil))

	s, _ := reg.CurrentSession()
	require.Equal(t, strings.Repeat("x", 30)+"...", s.Title)

	require.NoError(t, p.Send(context.Background(), "", "a different question", nil))
	s, _ = reg.CurrentSession()
	require.Equal(t, strings.Repeat("x", 30)+"...", s.Title, "the title is never overwritten after the first message")
}

func TestSend_HistoryMapping(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"ok"}}
	p, reg := newTestProtocol(stub)

	id := reg.CreateSession()
	reg.AppendMessage(id, chat.NewMessage(chat.RoleSystem, "err"))
	reg.AppendMessage(id, chat.NewMessage(chat.RoleModel, "ok"))

	require.NoError(t, p.Send(context.Background(), "", "next", nil))

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, []llm.Turn{
		{Role: "user", Text: "err"},
		{Role: "model", Text: "ok"},
	}, reqs[0].History, "system notices are resent as user turns; model stays model")
	require.Equal(t, "next", reqs[0].Message)
}

func TestSend_InFlightExclusive(t *testing.T) {
	release := make(chan struct{})
	stub := &llm.Stub{Fragments: []string{"slow reply"}, Block: release}
	p, _ := newTestProtocol(stub)

	done := make(chan error, 1)
	go func() {
		done <- p.Send(context.Background(), "", "first", nil)
	}()

	require.Eventually(t, p.Busy, time.Second, time.Millisecond)

	require.ErrorIs(t, p.Send(context.Background(), "", "second", nil), ErrInFlight)

	close(release)
	require.NoError(t, <-done)
	require.False(t, p.Busy())

	// Only the first exchange ever reached the backend.
	require.Len(t, stub.Requests(), 1)

	// With the flag released a new send goes through again.
	stub.Block = nil
	require.NoError(t, p.Send(context.Background(), "", "third", nil))
	require.Len(t, stub.Requests(), 2)
}

func TestSend_SelectedButDeletedSessionSynthesizesNew(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"ok"}}
	p, reg := newTestProtocol(stub)

	id := reg.CreateSession()
	reg.DeleteSession(id)

	require.NoError(t, p.Send(context.Background(), "", "Hello", nil))

	s, ok := reg.CurrentSession()
	require.True(t, ok)
	require.NotEqual(t, id, s.ID)
	require.Len(t, s.Messages, 2)
}

func TestSend_StreamingContentVisibleDuringExchange(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"a", "b", "c"}}
	p, _ := newTestProtocol(stub)

	var seen []string
	require.NoError(t, p.Send(context.Background(), "", "Hello", func(string) {
		seen = append(seen, p.StreamingContent())
	}))

	require.Equal(t, []string{"a", "ab", "abc"}, seen, "the buffer accumulates fragments in arrival order")
}

func TestSend_ExplicitSessionIDSelectsTarget(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"ok"}}
	p, reg := newTestProtocol(stub)

	target := reg.CreateSession()
	other := reg.CreateSession() // current

	require.NoError(t, p.Send(context.Background(), target, "Hello", nil))

	s, ok := reg.CurrentSession()
	require.True(t, ok)
	require.Equal(t, target, s.ID)
	require.Len(t, s.Messages, 2)

	untouched, _ := reg.Session(other)
	require.Empty(t, untouched.Messages)
}

func TestSend_RejectedSendLeavesSelectionUntouched(t *testing.T) {
	release := make(chan struct{})
	stub := &llm.Stub{Fragments: []string{"slow"}, Block: release}
	p, reg := newTestProtocol(stub)

	other := reg.CreateSession()
	current := reg.CreateSession()

	// Empty input is rejected before any registry mutation.
	require.ErrorIs(t, p.Send(context.Background(), other, "   ", nil), ErrEmptyMessage)
	require.Equal(t, current, reg.Snapshot().CurrentID)

	// So is a send refused by the in-flight gate.
	done := make(chan error, 1)
	go func() {
		done <- p.Send(context.Background(), "", "first", nil)
	}()
	require.Eventually(t, p.Busy, time.Second, time.Millisecond)
	require.ErrorIs(t, p.Send(context.Background(), other, "second", nil), ErrInFlight)
	require.Equal(t, current, reg.Snapshot().CurrentID)

	close(release)
	require.NoError(t, <-done)
}

func TestSend_CustomSystemPromptAndModel(t *testing.T) {
	stub := &llm.Stub{Fragments: []string{"ok"}}
	reg := registry.New(store.NewMemory())
	settings := NewSettings("gemini-2.5-pro", 0.2)
	p := New(reg, stub, settings, "Answer briefly.")

	require.NoError(t, p.Send(context.Background(), "", "Hello", nil))

	reqs := stub.Requests()
	require.Equal(t, "gemini-2.5-pro", reqs[0].Model)
	require.Equal(t, "Answer briefly.", reqs[0].SystemInstruction)
}
