package credential

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryStore keeps the credential in process memory. It applies the same
// validation and self-repair rules as SQLiteStore.
type MemoryStore struct {
	mu      sync.Mutex
	token   string
	profile string
	present bool
	logger  *slog.Logger

	clears int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logger: slog.Default()}
}

// PutRaw stores persisted values without validation, the way a previous
// process (or a corrupted disk) may have left them.
func (s *MemoryStore) PutRaw(token, rawProfile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.profile, s.present = token, rawProfile, true
}

// Get returns the stored credential or nil. Corrupt data is cleared.
func (s *MemoryStore) Get(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return nil, nil
	}
	c, err := decode(s.token, s.profile)
	if err != nil {
		s.logger.Warn("discarding corrupt stored session", "err", err)
		s.clearLocked()
		return nil, nil
	}
	return c, nil
}

// Set replaces the stored credential.
func (s *MemoryStore) Set(ctx context.Context, c Credential) error {
	profile, err := encodeProfile(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.profile, s.present = c.Token, profile, true
	return nil
}

// Clear removes the stored credential.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

func (s *MemoryStore) clearLocked() {
	s.token, s.profile, s.present = "", "", false
	s.clears++
}

// Clears returns how many times the store was cleared, including implicit
// clears performed by Get.
func (s *MemoryStore) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
