package gossip

import "github.com/mosaicnetworks/hearsay/src/peers"

// PeerCatalog supplies the current set of connected peers and a uniform-random
// sampling operation. It is read-only from the engine's perspective.
type PeerCatalog interface {
	// Sample returns up to count peers drawn uniformly at random, excluding
	// the peers whose IDs appear in the exclude map.
	Sample(count int, exclude map[uint32]bool) []*peers.Peer

	// PeerByID returns the connected peer with the given ID, or nil.
	PeerByID(id uint32) *peers.Peer

	// Len returns the number of connected peers.
	Len() int
}

// Store is the storage collaborator that persists item bodies. The engine
// never retains payload bytes itself; they flow through the store. Put is
// expected to verify that the payload hashes to the item ID.
type Store interface {
	Has(id ItemID) bool
	Get(id ItemID) ([]byte, error)
	Put(id ItemID, payload []byte) error
}

// Sender dispatches outbound messages. Sends are fire-and-forget: responses
// and failures come back to the engine asynchronously as discrete events
// (HandleGossipAck, OnRemainderReceived, HandleTimeout).
type Sender interface {
	// Announce tells peer that we hold item.
	Announce(peer *peers.Peer, item ItemID)

	// RequestRemainder asks peer for the full body of item.
	RequestRemainder(peer *peers.Peer, item ItemID)
}
