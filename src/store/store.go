// Package store persists the bodies of gossiped items. Payloads are
// content-addressed: Put verifies that the payload hashes to the item ID
// before accepting it.
package store

import "github.com/mosaicnetworks/hearsay/src/gossip"

// Store is the interface of an item store. InmemStore and BadgerStore
// implement it.
type Store interface {
	gossip.Store

	// Len returns the number of stored items.
	Len() int

	// Close releases the store's resources.
	Close() error
}
