// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package storage

import (
	"sync"
)

// Kind partitions cache records by credential type. Every record the
// Manager persists lives in exactly one kind's namespace.
type Kind string

const (
	KindAccessToken  Kind = "AccessToken"
	KindRefreshToken Kind = "RefreshToken"
	KindIDToken      Kind = "IdToken"
	KindAccount      Kind = "Account"
	KindAppMetaData  Kind = "AppMetadata"
)

// kinds lists every namespace in the order the serialization contract
// writes them.
var kinds = []Kind{KindAccessToken, KindRefreshToken, KindIDToken, KindAccount, KindAppMetaData}

// Store is the key-value capability backing Manager. Implementations must be
// safe for concurrent use. The Manager only ever hands a Store serialized
// records, so implementations need no knowledge of record shapes.
type Store interface {
	// Read returns the record stored under key, reporting whether it exists.
	Read(kind Kind, key string) ([]byte, bool)
	// Write stores data under key, overwriting any previous record.
	Write(kind Kind, key string, data []byte)
	// Delete removes the record stored under key. Deleting an absent key is
	// a no-op.
	Delete(kind Kind, key string)
	// Keys enumerates every key in the kind's namespace.
	Keys(kind Kind) []string
}

// InMemory is the default Store, holding records in process memory. The zero
// value is not usable; construct with NewInMemory.
type InMemory struct {
	mu      sync.RWMutex
	records map[Kind]map[string][]byte
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	records := make(map[Kind]map[string][]byte, len(kinds))
	for _, k := range kinds {
		records[k] = map[string][]byte{}
	}
	return &InMemory{records: records}
}

func (s *InMemory) Read(kind Kind, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[kind][key]
	return data, ok
}

func (s *InMemory) Write(kind Kind, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[kind] == nil {
		s.records[kind] = map[string][]byte{}
	}
	s.records[kind][key] = data
}

func (s *InMemory) Delete(kind Kind, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[kind], key)
}

func (s *InMemory) Keys(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records[kind]))
	for k := range s.records[kind] {
		keys = append(keys, k)
	}
	return keys
}
