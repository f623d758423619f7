package store

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/hearsay/src/gossip"
)

const itemPrefix = "item"

// BadgerStore is a persistent item store backed by a Badger database, with an
// InmemStore acting as a write-through cache.
type BadgerStore struct {
	inmem *InmemStore
	db    *badger.DB
	path  string
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		inmem: NewInmemStore(),
		db:    handle,
		path:  path,
	}, nil
}

func itemKey(id gossip.ItemID) []byte {
	return []byte(fmt.Sprintf("%s_%s", itemPrefix, id.String()))
}

// Has implements the Store interface.
func (s *BadgerStore) Has(id gossip.ItemID) bool {
	if s.inmem.Has(id) {
		return true
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(itemKey(id))
		return err
	})

	return err == nil
}

// Get implements the Store interface.
func (s *BadgerStore) Get(id gossip.ItemID) ([]byte, error) {
	if payload, err := s.inmem.Get(id); err == nil {
		return payload, nil
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(itemKey(id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, gossip.NewErr("Get", gossip.NotFound, id.Short())
	}

	return payload, nil
}

// Put implements the Store interface. The payload is verified and cached by
// the inner InmemStore before being written to disk.
func (s *BadgerStore) Put(id gossip.ItemID, payload []byte) error {
	if err := s.inmem.Put(id, payload); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(id), payload)
	})

	if err != nil {
		return gossip.NewErr("Put", gossip.StoreFailure, id.Short())
	}

	return nil
}

// Len implements the Store interface. It only counts cached items; items from
// previous runs are reachable through Has and Get but not enumerated.
func (s *BadgerStore) Len() int {
	return s.inmem.Len()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
