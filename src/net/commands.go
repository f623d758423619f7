package net

import (
	"github.com/mosaicnetworks/hearsay/src/gossip"
)

// GossipAnnounce notifies a peer that the sender holds an item. It carries
// only the item's ID; peers that want the body fetch the remainder.
type GossipAnnounce struct {
	FromID uint32
	ItemID gossip.ItemID
}

// GossipAck acknowledges a GossipAnnounce. New reports whether the item was
// previously unknown to the responder, which feeds the sender's saturation
// evaluation.
type GossipAck struct {
	FromID uint32
	New    bool
}

// RemainderRequest asks a peer for the full body of an item it announced.
type RemainderRequest struct {
	FromID uint32
	ItemID gossip.ItemID
}

// RemainderResponse returns an item's body, or Found=false when the responder
// does not hold it after all.
type RemainderResponse struct {
	FromID  uint32
	ItemID  gossip.ItemID
	Found   bool
	Payload []byte
}
