package exchange

import "sync"

// Settings is the mutable application configuration shared between the
// settings surface and the protocol: which model variant to request and the
// sampling temperature. Temperature is carried for the settings form but is
// not forwarded on the outbound completion call.
type Settings struct {
	mu          sync.RWMutex
	modelName   string
	temperature float32
}

func NewSettings(modelName string, temperature float32) *Settings {
	return &Settings{modelName: modelName, temperature: temperature}
}

func (s *Settings) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelName
}

func (s *Settings) Temperature() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temperature
}

func (s *Settings) Update(modelName string, temperature float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelName = modelName
	s.temperature = temperature
}
