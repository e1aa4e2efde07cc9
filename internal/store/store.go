// Package store persists the full session list as one serialized value under
// a fixed key. Loads tolerate missing or malformed data by returning nothing;
// saves overwrite unconditionally. Neither path is ever fatal to the caller.
package store

import "github.com/ghl-peak/peak-go/internal/chat"

// Store is the durable slot holding the session list.
type Store interface {
	// Load returns the stored sessions, or nil when nothing usable is stored.
	Load() []chat.Session
	// Save replaces the stored value with the given sessions.
	Save(sessions []chat.Session)
}
