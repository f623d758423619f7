package gossip

import (
	"encoding/hex"
	"fmt"

	"github.com/mosaicnetworks/hearsay/src/crypto"
)

// ItemIDLength is the size in bytes of an ItemID.
const ItemIDLength = 32

// ItemID is the content-addressed identifier of a gossiped item: the SHA256
// hash of its body. It is the key for all gossip tables.
type ItemID [ItemIDLength]byte

// NewItemID computes the ItemID of a payload.
func NewItemID(payload []byte) ItemID {
	var id ItemID
	copy(id[:], crypto.SHA256(payload))
	return id
}

// ItemIDFromBytes converts a raw hash to an ItemID.
func ItemIDFromBytes(raw []byte) (ItemID, error) {
	var id ItemID
	if len(raw) != ItemIDLength {
		return id, fmt.Errorf("invalid item id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ParseItemID converts a hex string to an ItemID.
func ParseItemID(s string) (ItemID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ItemID{}, err
	}
	return ItemIDFromBytes(raw)
}

// Bytes returns the ItemID as a byte slice.
func (id ItemID) Bytes() []byte {
	return id[:]
}

// String returns the hex representation of the ItemID.
func (id ItemID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns an abbreviated hex representation for logging.
func (id ItemID) Short() string {
	return hex.EncodeToString(id[:4])
}
