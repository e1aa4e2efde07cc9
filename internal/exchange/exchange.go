// Package exchange turns one user input into a completed exchange: it
// optimistically appends the user message, streams the completion into a
// transient buffer, and commits exactly one terminal message back to the
// registry, a model reply on success or a system notice on failure.
package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/llm"
	"github.com/ghl-peak/peak-go/internal/logger"
	"github.com/ghl-peak/peak-go/internal/registry"
)

// FSM states of one exchange.
type FSMState stateless.State

var (
	StateIdle             FSMState = "Idle"
	StateDispatched       FSMState = "Dispatched"
	StateStreaming        FSMState = "Streaming"
	StateCommittedSuccess FSMState = "CommittedSuccess" // Terminal: model reply committed
	StateCommittedFailure FSMState = "CommittedFailure" // Terminal: system notice committed
)

// FSM triggers.
type FSMTrigger stateless.Trigger

var (
	TriggerDispatch        FSMTrigger = "Dispatch"
	TriggerStreamOpened    FSMTrigger = "StreamOpened"
	TriggerStreamCompleted FSMTrigger = "StreamCompleted"
	TriggerStreamFailed    FSMTrigger = "StreamFailed"
)

// Send precondition violations. The presentation boundary is expected to
// swallow these rather than surface them to the user.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInFlight     = errors.New("an exchange is already in flight")
)

// Protocol orchestrates exchanges against a registry and a completion
// backend. At most one exchange is in flight at a time, process-wide.
type Protocol struct {
	registry     *registry.Registry
	streamer     llm.Streamer
	settings     *Settings
	systemPrompt string

	mu       sync.Mutex
	inFlight bool
	buffer   strings.Builder // transient streamed content of the in-flight exchange
}

// New builds a protocol. systemPrompt is sent with every completion; empty
// falls back to the built-in instruction.
func New(reg *registry.Registry, streamer llm.Streamer, settings *Settings, systemPrompt string) *Protocol {
	if systemPrompt == "" {
		systemPrompt = chat.SystemInstruction
	}
	return &Protocol{
		registry:     reg,
		streamer:     streamer,
		settings:     settings,
		systemPrompt: systemPrompt,
	}
}

// Busy reports whether an exchange is currently in flight.
func (p *Protocol) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// StreamingContent returns the transient partial output of the in-flight
// exchange, empty otherwise.
func (p *Protocol) StreamingContent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.String()
}

// begin claims the in-flight flag, clearing the stream buffer. It reports
// false when another exchange already holds it.
func (p *Protocol) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return false
	}
	p.inFlight = true
	p.buffer.Reset()
	return true
}

// finish releases the in-flight flag and clears the stream buffer. It runs on
// every exit path of Send, success or failure.
func (p *Protocol) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.buffer.Reset()
}

func (p *Protocol) appendStream(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.WriteString(text)
}

// outboundHistory maps prior messages to the provider wire shape: model stays
// model, every other role (user, system) is sent as user. Prior system
// notices therefore re-enter the context as user turns.
func outboundHistory(msgs []chat.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == chat.RoleModel {
			role = "model"
		}
		turns = append(turns, llm.Turn{Role: role, Text: m.Content})
	}
	return turns
}

// Send runs one exchange against the session with the given id, or the
// currently selected one when the id is empty. The user message is committed
// to the target session before any network interaction; onFragment (optional)
// observes each streamed fragment in arrival order. Send returns an error
// only for precondition violations; a failed completion is absorbed and
// committed as a system notice instead. A rejected send leaves the registry
// untouched, selection included.
func (p *Protocol) Send(ctx context.Context, sessionID, userText string, onFragment func(text string)) error {
	if strings.TrimSpace(userText) == "" {
		return ErrEmptyMessage
	}
	if !p.begin() {
		return ErrInFlight
	}
	defer p.finish()

	if sessionID != "" {
		p.registry.SelectSession(sessionID)
	}

	// Resolve the target session, synthesizing one if nothing is selected
	// (or the selection points at a deleted session).
	target, ok := p.registry.CurrentSession()
	if !ok {
		id := p.registry.CreateSession()
		target, _ = p.registry.Session(id)
	}
	prior := target.Messages

	// Optimistic commit: title rule first (it only applies while the session
	// is empty), then the user message, both visible before the call starts.
	userMsg := chat.NewMessage(chat.RoleUser, userText)
	p.registry.SetTitleIfUnset(target.ID, chat.TitleFromMessage(userText))
	p.registry.AppendMessage(target.ID, userMsg)

	// The terminal commit appends to this captured list, not to whatever the
	// registry holds by then, so interleaved mutations cannot splice in.
	base := make([]chat.Message, 0, len(prior)+2)
	base = append(base, prior...)
	base = append(base, userMsg)

	x := &exchangeContext{
		sessionID: target.ID,
		base:      base,
		request: llm.CompletionRequest{
			Model:             p.settings.ModelName(),
			SystemInstruction: p.systemPrompt,
			History:           outboundHistory(prior),
			Message:           userText,
		},
		onFragment: onFragment,
	}

	fsm := p.newMachine(x)
	if err := fsm.FireCtx(ctx, TriggerDispatch); err != nil {
		// Machine plumbing failure, not a completion failure. Make sure the
		// session still receives its terminal message.
		logger.L.Error("exchange state machine error", "session_id", x.sessionID, "error", err)
		if !x.committed {
			p.commitFailure(x)
		}
		return nil
	}
	return nil
}

// exchangeContext is the per-send working set threaded through the machine.
type exchangeContext struct {
	sessionID  string
	base       []chat.Message
	request    llm.CompletionRequest
	onFragment func(text string)

	full      strings.Builder
	streamErr error
	committed bool
}

// newMachine wires the exchange lifecycle. Entry actions fire the next
// trigger themselves, so one Dispatch drives the machine to a terminal state.
func (p *Protocol) newMachine(x *exchangeContext) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerDispatch, StateDispatched)

	fsm.Configure(StateDispatched).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Debug("exchange dispatched",
				"session_id", x.sessionID,
				"model", x.request.Model,
				"history_len", len(x.request.History))
			return fsm.FireCtx(ctx, TriggerStreamOpened)
		}).
		Permit(TriggerStreamOpened, StateStreaming)

	fsm.Configure(StateStreaming).
		OnEntry(func(ctx context.Context, _ ...any) error {
			err := p.streamer.StreamCompletion(ctx, x.request, func(text string) {
				p.appendStream(text)
				x.full.WriteString(text)
				if x.onFragment != nil {
					x.onFragment(text)
				}
			})
			if err != nil {
				x.streamErr = err
				return fsm.FireCtx(ctx, TriggerStreamFailed)
			}
			return fsm.FireCtx(ctx, TriggerStreamCompleted)
		}).
		Permit(TriggerStreamCompleted, StateCommittedSuccess).
		Permit(TriggerStreamFailed, StateCommittedFailure)

	fsm.Configure(StateCommittedSuccess).
		OnEntry(func(context.Context, ...any) error {
			reply := chat.NewMessage(chat.RoleModel, x.full.String())
			p.registry.ReplaceMessages(x.sessionID, append(x.base, reply))
			p.registry.MarkUpdated(x.sessionID)
			x.committed = true
			logger.L.Info("exchange committed", "session_id", x.sessionID, "reply_len", len(reply.Content))
			return nil
		})

	fsm.Configure(StateCommittedFailure).
		OnEntry(func(context.Context, ...any) error {
			logger.L.Error("exchange failed", "session_id", x.sessionID, "error", x.streamErr)
			p.commitFailure(x)
			return nil
		})

	return fsm
}

// commitFailure appends the fixed user-facing error notice after the
// optimistic user message. No raw error detail reaches the session.
func (p *Protocol) commitFailure(x *exchangeContext) {
	notice := chat.NewMessage(chat.RoleSystem, chat.ErrorReply)
	p.registry.ReplaceMessages(x.sessionID, append(x.base, notice))
	x.committed = true
}
