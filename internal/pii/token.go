package pii

import "sync"

// TokenStore issues opaque tokens for matched substrings under the
// tokenize strategy and resolves them back. Implementations decide
// durability; the engine only requires that Issue is stable for the
// same plaintext within a process run.
type TokenStore interface {
	Issue(plaintext string) string
	Lookup(token string) (string, bool)
}

// MemoryTokens is the in-process reversible tokenization stub. Tokens
// are short digest prefixes, so the same plaintext always yields the
// same token.
type MemoryTokens struct {
	mu   sync.RWMutex
	byID map[string]string
}

// NewMemoryTokens creates an empty in-memory token store.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{byID: make(map[string]string)}
}

// Issue returns the token for plaintext, recording the reverse mapping.
func (m *MemoryTokens) Issue(plaintext string) string {
	token := digest(plaintext, 12)

	m.mu.Lock()
	m.byID[token] = plaintext
	m.mu.Unlock()

	return token
}

// Lookup resolves a previously issued token.
func (m *MemoryTokens) Lookup(token string) (string, bool) {
	m.mu.RLock()
	plaintext, ok := m.byID[token]
	m.mu.RUnlock()
	return plaintext, ok
}
