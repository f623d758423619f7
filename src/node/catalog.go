package node

import (
	"sync"

	"github.com/mosaicnetworks/hearsay/src/peers"
)

// PeerCatalog tracks the peers this node can gossip with. It implements the
// catalog interface consumed by the gossip engine, and supports membership
// changes behind a lock.
type PeerCatalog struct {
	sync.RWMutex
	peerSet *peers.PeerSet
}

// NewPeerCatalog creates a PeerCatalog from an initial PeerSet.
func NewPeerCatalog(peerSet *peers.PeerSet) *PeerCatalog {
	return &PeerCatalog{
		peerSet: peerSet,
	}
}

// Sample returns up to count peers drawn uniformly at random, excluding the
// peers whose IDs appear in the exclude map.
func (c *PeerCatalog) Sample(count int, exclude map[uint32]bool) []*peers.Peer {
	c.RLock()
	defer c.RUnlock()

	return c.peerSet.Sample(count, exclude)
}

// PeerByID returns the peer with the given ID, or nil.
func (c *PeerCatalog) PeerByID(id uint32) *peers.Peer {
	c.RLock()
	defer c.RUnlock()

	return c.peerSet.ByID[id]
}

// Len returns the number of peers in the catalog.
func (c *PeerCatalog) Len() int {
	c.RLock()
	defer c.RUnlock()

	return c.peerSet.Len()
}

// Peers returns the underlying peer slice.
func (c *PeerCatalog) Peers() []*peers.Peer {
	c.RLock()
	defer c.RUnlock()

	return c.peerSet.Peers
}

// AddPeer inserts a peer in the catalog.
func (c *PeerCatalog) AddPeer(peer *peers.Peer) {
	c.Lock()
	defer c.Unlock()

	c.peerSet = c.peerSet.WithNewPeer(peer)
}

// RemovePeer removes a peer from the catalog. Unresponsive peers are removed
// so that fan-out rounds stop selecting them.
func (c *PeerCatalog) RemovePeer(peer *peers.Peer) {
	c.Lock()
	defer c.Unlock()

	c.peerSet = c.peerSet.WithRemovedPeer(peer)
}
