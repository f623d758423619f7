package store

import (
	"sync"

	"github.com/mosaicnetworks/hearsay/src/gossip"
)

// InmemStore keeps item bodies in memory. It is the default store, and serves
// as the write-through cache in front of BadgerStore.
type InmemStore struct {
	sync.RWMutex
	items map[gossip.ItemID][]byte
}

// NewInmemStore instantiates an InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		items: make(map[gossip.ItemID][]byte),
	}
}

// Has implements the Store interface.
func (s *InmemStore) Has(id gossip.ItemID) bool {
	s.RLock()
	defer s.RUnlock()

	_, ok := s.items[id]

	return ok
}

// Get implements the Store interface.
func (s *InmemStore) Get(id gossip.ItemID) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	payload, ok := s.items[id]
	if !ok {
		return nil, gossip.NewErr("Get", gossip.NotFound, id.Short())
	}

	return payload, nil
}

// Put implements the Store interface. It rejects payloads that do not hash to
// the item ID.
func (s *InmemStore) Put(id gossip.ItemID, payload []byte) error {
	if gossip.NewItemID(payload) != id {
		return gossip.NewErr("Put", gossip.StoreFailure, id.Short())
	}

	s.Lock()
	defer s.Unlock()

	s.items[id] = payload

	return nil
}

// Len implements the Store interface.
func (s *InmemStore) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.items)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
