package gossip

import (
	"github.com/mosaicnetworks/hearsay/src/peers"
)

// FanoutScheduler decides which peers to contact next for a given item. It
// draws uniform-random samples from the PeerCatalog, excluding the item's
// known holders, its in-flight peers, and the local node.
type FanoutScheduler struct {
	table   *GossipTable
	catalog PeerCatalog
	localID uint32
}

// NewFanoutScheduler instantiates a FanoutScheduler.
func NewFanoutScheduler(table *GossipTable, catalog PeerCatalog, localID uint32) *FanoutScheduler {
	return &FanoutScheduler{
		table:   table,
		catalog: catalog,
		localID: localID,
	}
}

// SelectTargets returns up to desiredCount peers to announce item to. If
// fewer peers are available than requested, all available peers are returned;
// this is a degraded but valid result, not an error.
func (s *FanoutScheduler) SelectTargets(item ItemID, desiredCount int) []*peers.Peer {
	exclude := s.table.Exclusions(item)
	exclude[s.localID] = true

	return s.catalog.Sample(desiredCount, exclude)
}
