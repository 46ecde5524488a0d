package chatclient

import "sync"

// MemoryCredentials is a CredentialStore holding the token in memory.
// Suitable for CLIs and tests; browser or mobile shells plug in their
// own storage-backed implementation instead.
type MemoryCredentials struct {
	mu    sync.Mutex
	token string
}

func NewMemoryCredentials(token string) *MemoryCredentials {
	return &MemoryCredentials{token: token}
}

func (m *MemoryCredentials) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryCredentials) Clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
