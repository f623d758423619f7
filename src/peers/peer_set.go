package peers

import (
	"bytes"
	"encoding/json"
	"math/rand"
)

// PeerSet is the set of peers currently connected to the node. It is the
// catalog from which gossip fan-out targets are sampled.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`
}

/* Constructors */

// NewPeerSet creates a new PeerSet from a list of Peers.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		peerSet.ByID[peer.ID()] = peer
	}

	peerSet.Peers = peers

	return peerSet
}

// NewPeerSetFromPeerSliceBytes creates a new PeerSet from a JSON-encoded slice
// of peers.
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	b := bytes.NewBuffer(peerSliceBytes)
	dec := json.NewDecoder(b)

	err := dec.Decode(&peers)
	if err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

// WithNewPeer returns a new PeerSet that includes the provided peer.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := peerSet.Peers

	if _, ok := peerSet.ByID[peer.ID()]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet that excludes the provided peer.
func (peerSet *PeerSet) WithRemovedPeer(peer *Peer) *PeerSet {
	peers := []*Peer{}
	for _, p := range peerSet.Peers {
		if p.PubKeyString() != peer.PubKeyString() {
			peers = append(peers, p)
		}
	}
	return NewPeerSet(peers)
}

/* Utilities */

// Len returns the number of Peers in the PeerSet.
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByPubKey)
}

// IDs returns the PeerSet's slice of IDs.
func (peerSet *PeerSet) IDs() []uint32 {
	res := []uint32{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID())
	}

	return res
}

// Sample returns up to count peers drawn uniformly at random from the PeerSet,
// excluding the peers whose IDs appear in the exclude map. If fewer peers are
// available than requested, all available peers are returned.
func (peerSet *PeerSet) Sample(count int, exclude map[uint32]bool) []*Peer {
	selectable := []*Peer{}
	for _, p := range peerSet.Peers {
		if !exclude[p.ID()] {
			selectable = append(selectable, p)
		}
	}

	if len(selectable) <= count {
		return selectable
	}

	rand.Shuffle(len(selectable), func(i, j int) {
		selectable[i], selectable[j] = selectable[j], selectable[i]
	})

	return selectable[:count]
}

// Marshal returns the JSON encoding of the PeerSet's peers.
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
