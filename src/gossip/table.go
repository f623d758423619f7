package gossip

import (
	"sync"
	"time"
)

// RecordState captures the lifecycle state of a GossipRecord: Active or
// Finished. The Unknown state is implicit; it corresponds to the absence of a
// record.
type RecordState uint32

const (
	// Active means the item is currently being gossiped.
	Active RecordState = iota
	// Finished means the item's gossip lifecycle has ended. The record is
	// retained for a while so that late responses can be recognised.
	Finished
)

// String ...
func (s RecordState) String() string {
	switch s {
	case Active:
		return "Active"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// GossipRecord tracks the dissemination of a single item: which peers are
// known or believed to hold it, how many new holders were discovered since the
// last saturation evaluation, and which announces are currently outstanding.
type GossipRecord struct {
	sync.Mutex

	ItemID ItemID

	// Holders is the set of peers known or believed to possess the item.
	Holders map[uint32]bool

	// InFlight is the set of peers with an outstanding announce for the item.
	InFlight map[uint32]bool

	infectedSinceCheck int
	state              RecordState
	finishedAt         time.Time
}

func newGossipRecord(item ItemID) *GossipRecord {
	return &GossipRecord{
		ItemID:   item,
		Holders:  make(map[uint32]bool),
		InFlight: make(map[uint32]bool),
	}
}

// GossipTable is the authoritative registry of per-item gossip state. It
// exclusively owns its GossipRecords, keyed by ItemID.
//
// The table's mutex only guards the record map. Operations on a record are
// serialized through the record's own lock, which the table methods take
// internally, so that unrelated items never block each other.
type GossipTable struct {
	mu      sync.RWMutex
	records map[ItemID]*GossipRecord
}

// NewGossipTable instantiates a GossipTable.
func NewGossipTable() *GossipTable {
	return &GossipTable{
		records: make(map[ItemID]*GossipRecord),
	}
}

// RecordFor returns the record for item, creating it if absent.
func (t *GossipTable) RecordFor(item ItemID) *GossipRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[item]
	if !ok {
		r = newGossipRecord(item)
		t.records[item] = r
	}

	return r
}

// Get returns the record for item, or nil if the item is unknown.
func (t *GossipTable) Get(item ItemID) *GossipRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.records[item]
}

// AddHolder adds peer to the item's holder set and reports whether it was a
// new holder. New holders count towards the infection tally evaluated by
// ShouldFinish.
func (t *GossipTable) AddHolder(item ItemID, peer uint32) bool {
	r := t.RecordFor(item)

	r.Lock()
	defer r.Unlock()

	if r.Holders[peer] {
		return false
	}

	r.Holders[peer] = true
	r.infectedSinceCheck++

	return true
}

// NoteHolder adds peer to the item's holder set without counting an
// infection. It is used when a peer acknowledges an announce for an item it
// already held; the peer is a holder, but it was not newly infected.
func (t *GossipTable) NoteHolder(item ItemID, peer uint32) bool {
	r := t.RecordFor(item)

	r.Lock()
	defer r.Unlock()

	if r.Holders[peer] {
		return false
	}

	r.Holders[peer] = true

	return true
}

// MarkInFlight records an outstanding announce to peer for item.
func (t *GossipTable) MarkInFlight(item ItemID, peer uint32) {
	r := t.RecordFor(item)

	r.Lock()
	defer r.Unlock()

	r.InFlight[peer] = true
}

// ClearInFlight removes the outstanding-announce marker for (item, peer).
func (t *GossipTable) ClearInFlight(item ItemID, peer uint32) {
	r := t.Get(item)
	if r == nil {
		return
	}

	r.Lock()
	defer r.Unlock()

	delete(r.InFlight, peer)
}

// RoundComplete reports whether the item has no outstanding announces.
func (t *GossipTable) RoundComplete(item ItemID) bool {
	r := t.Get(item)
	if r == nil {
		return false
	}

	r.Lock()
	defer r.Unlock()

	return len(r.InFlight) == 0
}

// ShouldFinish evaluates the saturation condition for item: gossip stops once
// a full fan-out round has produced zero new holders while at least one holder
// is known, or once the holder count exceeds the level at which the saturation
// limit deems the infection target unreachable.
func (t *GossipTable) ShouldFinish(item ItemID, saturatedHolderCount int) bool {
	r := t.Get(item)
	if r == nil {
		return false
	}

	r.Lock()
	defer r.Unlock()

	if r.state != Active || len(r.InFlight) > 0 || len(r.Holders) == 0 {
		return false
	}

	return r.infectedSinceCheck == 0 || len(r.Holders) >= saturatedHolderCount
}

// ResetInfectionCount clears the tally of new holders. It is called when a new
// fan-out round is launched, so that the next saturation evaluation only sees
// infections produced by that round.
func (t *GossipTable) ResetInfectionCount(item ItemID) {
	r := t.Get(item)
	if r == nil {
		return
	}

	r.Lock()
	defer r.Unlock()

	r.infectedSinceCheck = 0
}

// MarkFinished transitions the item's record to Finished. Outstanding
// announces for the item are logically cancelled; their late responses will
// simply no longer match anything.
func (t *GossipTable) MarkFinished(item ItemID, now time.Time) {
	r := t.Get(item)
	if r == nil {
		return
	}

	r.Lock()
	defer r.Unlock()

	if r.state == Finished {
		return
	}

	r.state = Finished
	r.finishedAt = now
}

// State returns the lifecycle state of the item's record. Unknown items report
// Active=false, Finished=false through a nil record; callers should use Get
// when they need to distinguish.
func (t *GossipTable) State(item ItemID) RecordState {
	r := t.Get(item)
	if r == nil {
		return Active
	}

	r.Lock()
	defer r.Unlock()

	return r.state
}

// IsFinished reports whether the item's record is Finished.
func (t *GossipTable) IsFinished(item ItemID) bool {
	r := t.Get(item)
	if r == nil {
		return false
	}

	r.Lock()
	defer r.Unlock()

	return r.state == Finished
}

// Exclusions returns the union of the item's holders and in-flight peers, the
// set that fan-out target selection must avoid.
func (t *GossipTable) Exclusions(item ItemID) map[uint32]bool {
	exclude := make(map[uint32]bool)

	r := t.Get(item)
	if r == nil {
		return exclude
	}

	r.Lock()
	defer r.Unlock()

	for p := range r.Holders {
		exclude[p] = true
	}
	for p := range r.InFlight {
		exclude[p] = true
	}

	return exclude
}

// Holders returns a snapshot of the item's holder set.
func (t *GossipTable) Holders(item ItemID) []uint32 {
	r := t.Get(item)
	if r == nil {
		return nil
	}

	r.Lock()
	defer r.Unlock()

	holders := make([]uint32, 0, len(r.Holders))
	for p := range r.Holders {
		holders = append(holders, p)
	}

	return holders
}

// EvictIfExpired removes the item's record if it has been Finished for longer
// than retention. It reports whether the record was evicted.
func (t *GossipTable) EvictIfExpired(item ItemID, now time.Time, retention time.Duration) bool {
	r := t.Get(item)
	if r == nil {
		return false
	}

	r.Lock()
	expired := r.state == Finished && now.Sub(r.finishedAt) > retention
	r.Unlock()

	if !expired {
		return false
	}

	t.mu.Lock()
	delete(t.records, item)
	t.mu.Unlock()

	return true
}

// Items returns the IDs of all records currently in the table.
func (t *GossipTable) Items() []ItemID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	items := make([]ItemID, 0, len(t.records))
	for id := range t.records {
		items = append(items, id)
	}

	return items
}

// Len returns the number of records in the table.
func (t *GossipTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.records)
}
