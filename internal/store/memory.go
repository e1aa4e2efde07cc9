package store

import (
	"encoding/json"
	"sync"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/logger"
)

// Memory is an in-process Store. It keeps the same serialize-on-save,
// deserialize-on-load behavior as the SQLite store so tests exercise the real
// round trip.
type Memory struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// SeedRaw replaces the stored bytes directly, bypassing serialization.
func (m *Memory) SeedRaw(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append([]byte(nil), raw...)
}

func (m *Memory) Load() []chat.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil
	}
	var sessions []chat.Session
	if err := json.Unmarshal(m.raw, &sessions); err != nil {
		logger.L.Warn("stored sessions are malformed; starting empty", "error", err)
		return nil
	}
	return sessions
}

func (m *Memory) Save(sessions []chat.Session) {
	raw, err := json.Marshal(sessions)
	if err != nil {
		logger.L.Error("failed to serialize sessions", "error", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = raw
}
