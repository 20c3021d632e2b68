// Package artifact keeps large binary-derived payloads out of the
// conversation history. A producing tool stores the payload and hands the
// model a compact reference key; the submission protocol dereferences the key
// just before transmission.
package artifact

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RefPrefix marks an answer value as a reference into the store.
const RefPrefix = "BASE64_KEY:"

type Store struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewStore() *Store {
	return &Store{entries: map[string]string{}}
}

// Put stores payload and returns its reference key. Entries are immutable
// once written and live until the next Reset.
func (s *Store) Put(payload string) string {
	key := uuid.NewString()
	s.mu.Lock()
	s.entries[key] = payload
	s.mu.Unlock()
	return RefPrefix + key
}

// IsRef reports whether v looks like a reference key.
func IsRef(v string) bool {
	return strings.HasPrefix(v, RefPrefix)
}

// Resolve returns the payload for a reference key produced by Put.
func (s *Store) Resolve(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.entries[key]
	return payload, ok
}

// Reset drops all entries; called when a new chain starts.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = map[string]string{}
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
