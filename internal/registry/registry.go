// Package registry holds the in-memory session list and the current-session
// pointer. Every mutation rewrites the backing store with the full list and
// publishes a fresh snapshot to subscribers, so observers always see a
// consistent whole-value view.
package registry

import (
	"sync"
	"time"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/logger"
	"github.com/ghl-peak/peak-go/internal/store"
)

// Snapshot is an immutable view of the registry published after a mutation.
type Snapshot struct {
	Sessions  []chat.Session `json:"sessions"`
	CurrentID string         `json:"currentId"`
}

// Listener receives snapshots after each registry mutation.
type Listener func(Snapshot)

// Registry is the single mutable shared resource of the application.
type Registry struct {
	mu        sync.Mutex
	sessions  []chat.Session
	currentID string
	store     store.Store
	listeners []Listener
	now       func() time.Time
}

// New builds a registry hydrated from the given store. Malformed stored data
// has already been discarded by the store, so hydration never fails.
func New(st store.Store) *Registry {
	r := &Registry{store: st, now: time.Now}
	if loaded := st.Load(); loaded != nil {
		r.sessions = loaded
		logger.L.Info("sessions restored", "count", len(loaded))
	}
	return r
}

// Subscribe registers a listener invoked with a snapshot after every
// mutation. Listeners run outside the registry lock.
func (r *Registry) Subscribe(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Snapshot returns a deep copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	out := Snapshot{
		Sessions:  make([]chat.Session, len(r.sessions)),
		CurrentID: r.currentID,
	}
	for i, s := range r.sessions {
		out.Sessions[i] = s.Clone()
	}
	return out
}

// commitAndUnlock snapshots the state, releases the lock, then persists the
// snapshot and notifies subscribers. Every mutator ends through here.
func (r *Registry) commitAndUnlock() {
	snap := r.snapshotLocked()
	listeners := r.listeners
	r.mu.Unlock()
	r.store.Save(snap.Sessions)
	for _, fn := range listeners {
		fn(snap)
	}
}

// CreateSession prepends a new empty session and makes it current.
func (r *Registry) CreateSession() string {
	r.mu.Lock()
	session := chat.NewSession()
	r.sessions = append([]chat.Session{session}, r.sessions...)
	r.currentID = session.ID
	r.commitAndUnlock()
	return session.ID
}

// SelectSession points the registry at the session with the given id. The id
// is not validated; selecting an unknown id simply yields no active session.
func (r *Registry) SelectSession(id string) {
	r.mu.Lock()
	r.currentID = id
	r.commitAndUnlock()
}

// DeleteSession removes the session with the given id. Deleting the current
// session clears the selection; deleting an unknown id is a no-op.
func (r *Registry) DeleteSession(id string) {
	r.mu.Lock()
	kept := make([]chat.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	r.sessions = kept
	if r.currentID == id {
		r.currentID = ""
	}
	r.commitAndUnlock()
}

// Session returns a deep copy of the named session.
func (r *Registry) Session(id string) (chat.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.findLocked(id); s != nil {
		return s.Clone(), true
	}
	return chat.Session{}, false
}

// CurrentSession returns a deep copy of the selected session, if any.
func (r *Registry) CurrentSession() (chat.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentID == "" {
		return chat.Session{}, false
	}
	if s := r.findLocked(r.currentID); s != nil {
		return s.Clone(), true
	}
	return chat.Session{}, false
}

func (r *Registry) findLocked(id string) *chat.Session {
	for i := range r.sessions {
		if r.sessions[i].ID == id {
			return &r.sessions[i]
		}
	}
	return nil
}

// AppendMessage appends one message to the named session. Appending to an
// unknown session is logged and dropped.
func (r *Registry) AppendMessage(id string, msg chat.Message) {
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		logger.L.Warn("append to unknown session dropped", "session_id", id)
		return
	}
	s.Messages = append(s.Messages, msg)
	r.commitAndUnlock()
}

// ReplaceMessages swaps the named session's message list wholesale, so
// observers see either the prior list or the fully updated one, never a
// partial splice.
func (r *Registry) ReplaceMessages(id string, msgs []chat.Message) {
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		logger.L.Warn("replace on unknown session dropped", "session_id", id)
		return
	}
	s.Messages = make([]chat.Message, len(msgs))
	copy(s.Messages, msgs)
	r.commitAndUnlock()
}

// SetTitleIfUnset derives the session title from its first message: it only
// applies while the session has no messages, and never overwrites afterwards.
func (r *Registry) SetTitleIfUnset(id string, candidate string) {
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil || len(s.Messages) > 0 {
		r.mu.Unlock()
		return
	}
	s.Title = candidate
	r.commitAndUnlock()
}

// MarkUpdated stamps the session's UpdatedAt. Called when an exchange commits
// a model reply, not on optimistic inserts or error commits.
func (r *Registry) MarkUpdated(id string) {
	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		return
	}
	s.UpdatedAt = r.now()
	r.commitAndUnlock()
}
