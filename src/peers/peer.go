package peers

import (
	"encoding/hex"
	"strings"

	"github.com/mosaicnetworks/hearsay/src/common"
)

// Peer is a participant in the gossip network.
type Peer struct {
	NetAddr   string `json:"NetAddr"`
	PubKeyHex string `json:"PubKeyHex"`
	Moniker   string `json:"Moniker"`

	id uint32
}

// NewPeer instantiates a Peer.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}

	return peer
}

// ID returns the identifier of the Peer: a 32-bit hash of its public key.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.computeID()
	}

	return p.id
}

// PubKeyString returns the upper-case version of PubKeyHex. It is used for
// indexing in maps with string keys.
func (p *Peer) PubKeyString() string {
	return strings.ToUpper(p.PubKeyHex)
}

// PubKeyBytes returns the hex-decoded public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(p.PubKeyString(), "0X"))
}

func (p *Peer) computeID() error {
	pubKey, err := p.PubKeyBytes()
	if err != nil {
		return err
	}

	p.id = common.Hash32(pubKey)

	return nil
}

// ExcludePeer returns the slice of peers that excludes the peer with the given
// ID, along with the index at which the excluded peer was found, or -1.
func ExcludePeer(peers []*Peer, peerID uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != peerID {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
