package ocr

import "sync"

// Keyring rotates credentials for rate-limited cloud engines. It is owned
// by the adapter instance it is injected into, never process-global, so
// adapters stay testable in isolation.
type Keyring struct {
	mu   sync.Mutex
	keys []string
	next int
}

func NewKeyring(keys []string) *Keyring {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &Keyring{keys: cleaned}
}

// Next returns the next key round-robin, or "" when no key is configured.
func (k *Keyring) Next() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	key := k.keys[k.next]
	k.next = (k.next + 1) % len(k.keys)
	return key
}

func (k *Keyring) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
