package gossip

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/hearsay/src/peers"
)

/*******************************************************************************
Test fakes
*******************************************************************************/

type fakeCatalog struct {
	peerSet *peers.PeerSet
}

func (c *fakeCatalog) Sample(count int, exclude map[uint32]bool) []*peers.Peer {
	return c.peerSet.Sample(count, exclude)
}

func (c *fakeCatalog) PeerByID(id uint32) *peers.Peer {
	return c.peerSet.ByID[id]
}

func (c *fakeCatalog) Len() int {
	return c.peerSet.Len()
}

type fakeStore struct {
	sync.Mutex
	items   map[ItemID][]byte
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items: make(map[ItemID][]byte),
	}
}

func (s *fakeStore) Has(id ItemID) bool {
	s.Lock()
	defer s.Unlock()

	_, ok := s.items[id]
	return ok
}

func (s *fakeStore) Get(id ItemID) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	payload, ok := s.items[id]
	if !ok {
		return nil, NewErr("Get", NotFound, id.Short())
	}
	return payload, nil
}

func (s *fakeStore) Put(id ItemID, payload []byte) error {
	s.Lock()
	defer s.Unlock()

	if s.failPut {
		return NewErr("Put", StoreFailure, id.Short())
	}

	s.items[id] = payload
	return nil
}

type sentMessage struct {
	peer uint32
	item ItemID
}

type fakeSender struct {
	sync.Mutex
	announces  []sentMessage
	remainders []sentMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{}
}

func (s *fakeSender) Announce(peer *peers.Peer, item ItemID) {
	s.Lock()
	defer s.Unlock()

	s.announces = append(s.announces, sentMessage{peer.ID(), item})
}

func (s *fakeSender) RequestRemainder(peer *peers.Peer, item ItemID) {
	s.Lock()
	defer s.Unlock()

	s.remainders = append(s.remainders, sentMessage{peer.ID(), item})
}

func (s *fakeSender) announceCount() int {
	s.Lock()
	defer s.Unlock()

	return len(s.announces)
}

func (s *fakeSender) remainderCount() int {
	s.Lock()
	defer s.Unlock()

	return len(s.remainders)
}

func testPeerSet(n int) *peers.PeerSet {
	ps := []*peers.Peer{}
	for i := 0; i < n; i++ {
		ps = append(ps, peers.NewPeer(
			fmt.Sprintf("0x%040X", i+1),
			fmt.Sprintf("127.0.0.1:%d", 1337+i),
			fmt.Sprintf("peer%d", i)))
	}
	return peers.NewPeerSet(ps)
}

func newTestEngine(t *testing.T, numPeers int) (*Engine, *fakeStore, *fakeSender, *peers.PeerSet) {
	conf := NewTestConfig(t)

	peerSet := testPeerSet(numPeers)
	store := newFakeStore()
	sender := newFakeSender()

	local := peers.NewPeer("0x0000DEAD", "127.0.0.1:9999", "local")

	engine := NewEngine(conf, local.ID(), &fakeCatalog{peerSet}, store, sender)

	return engine, store, sender, peerSet
}

/*******************************************************************************
Tests
*******************************************************************************/

// A locally submitted item triggers a fan-out round: InfectionTarget distinct
// peers get an announce, each with a pending request deadlined at
// now + GossipRequestTimeout.
func TestStartGossip(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	if got := sender.announceCount(); got != 3 {
		t.Fatalf("3 announces should be sent, not %d", got)
	}

	seen := map[uint32]bool{}
	for _, msg := range sender.announces {
		if seen[msg.peer] {
			t.Fatalf("peer %d was announced to twice in one round", msg.peer)
		}
		seen[msg.peer] = true
	}

	if got := engine.Tracker().Len(); got != 3 {
		t.Fatalf("3 requests should be pending, not %d", got)
	}

	deadline := now.Add(engine.conf.GossipRequestTimeout)
	for _, req := range engine.tracker.pending {
		if !req.Deadline.Equal(deadline) {
			t.Fatalf("deadline should be %v, not %v", deadline, req.Deadline)
		}
	}

	if engine.Table().IsFinished(item) {
		t.Fatal("record should be Active")
	}
}

// An inbound announce records the sender as a holder, fetches the remainder,
// and joins the spreading.
func TestHandleGossipMessage(t *testing.T) {
	engine, _, sender, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	from := peerSet.Peers[0].ID()

	wasNew := engine.HandleGossipMessage(item, from, now)
	if !wasNew {
		t.Fatal("first announce should report a new item")
	}

	if got := sender.remainderCount(); got != 1 {
		t.Fatalf("1 remainder request should be sent, not %d", got)
	}
	if sender.remainders[0].peer != from {
		t.Fatal("remainder should be requested from the announcing peer")
	}

	// The sender is a holder and must not be a fan-out target
	for _, msg := range sender.announces {
		if msg.peer == from {
			t.Fatal("announcing peer should be excluded from fan-out")
		}
	}

	if got := sender.announceCount(); got != 3 {
		t.Fatalf("the node should join the spreading with 3 announces, not %d", got)
	}

	if engine.HandleGossipMessage(item, from, now) {
		t.Fatal("second announce should not report a new item")
	}
}

// An announce for an item whose body is already stored skips the remainder
// fetch but still joins the spreading.
func TestHandleGossipMessageStoredItem(t *testing.T) {
	engine, store, sender, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	store.Put(item, []byte{1})

	engine.HandleGossipMessage(item, peerSet.Peers[0].ID(), now)

	if got := sender.remainderCount(); got != 0 {
		t.Fatalf("no remainder request should be sent, not %d", got)
	}
	if got := sender.announceCount(); got != 3 {
		t.Fatalf("the node should join the spreading with 3 announces, not %d", got)
	}
}

// A round in which every contacted peer was already infected terminates the
// gossip.
func TestFinishOnZeroInfections(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	for _, msg := range append([]sentMessage{}, sender.announces...) {
		engine.HandleGossipAck(item, msg.peer, false, now)
	}

	if !engine.Table().IsFinished(item) {
		t.Fatal("gossip should finish after a round with zero new infections")
	}
}

// Rounds keep launching while acks report new infections, and the gossip
// finishes once the peer set is exhausted and a round comes back empty.
func TestFinishAfterFullDissemination(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	// Round 1: 3 announces, all newly infected
	for _, msg := range append([]sentMessage{}, sender.announces...) {
		engine.HandleGossipAck(item, msg.peer, true, now)
	}

	// Round 2: the 2 remaining peers
	if got := sender.announceCount(); got != 5 {
		t.Fatalf("5 announces should have been sent in total, not %d", got)
	}

	for _, msg := range sender.announces[3:] {
		engine.HandleGossipAck(item, msg.peer, true, now)
	}

	if engine.Table().IsFinished(item) {
		t.Fatal("gossip should still be active until an empty round is evaluated")
	}

	// Round 3 found no targets; the next maintenance pass observes a complete
	// round with zero infections and terminates.
	engine.Tick(now)

	if !engine.Table().IsFinished(item) {
		t.Fatal("gossip should finish after the empty round")
	}

	if got := len(engine.Table().Holders(item)); got != 5 {
		t.Fatalf("all 5 peers should be holders, not %d", got)
	}
}

// The holder count trips the saturation limit even while acks keep reporting
// new infections.
func TestFinishOnSaturation(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 20)
	item := testItem(1)
	now := time.Now()

	// InfectionTarget 3, SaturationLimit 50 => finish at 6 holders
	engine.conf.SaturationLimit = 50

	engine.StartGossip(item, now)

	for i := 0; !engine.Table().IsFinished(item) && i < 100; i++ {
		msgs := append([]sentMessage{}, sender.announces...)
		sender.announces = nil
		for _, msg := range msgs {
			engine.HandleGossipAck(item, msg.peer, true, now)
		}
	}

	if !engine.Table().IsFinished(item) {
		t.Fatal("gossip should finish on saturation")
	}

	if got := len(engine.Table().Holders(item)); got < 6 {
		t.Fatalf("at least 6 peers should be holders, not %d", got)
	}
}

// A late ack, received after its pending request expired, is ignored.
func TestStaleAck(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 3)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	peer := sender.announces[0].peer

	later := now.Add(engine.conf.GossipRequestTimeout + time.Second)
	engine.HandleTimeout(later)

	// The timeout retried the peers; resolve the retries so the acks below
	// are genuinely stale.
	for _, msg := range sender.announces[3:] {
		engine.HandleGossipAck(item, msg.peer, true, later)
	}

	holders := len(engine.Table().Holders(item))

	engine.HandleGossipAck(item, peer, true, later)

	if got := len(engine.Table().Holders(item)); got != holders {
		t.Fatal("a stale ack should not change the holder set")
	}
}

// An expired announce is retried against the same peer with an incremented
// attempt count.
func TestGossipTimeoutRetry(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 1)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	if got := sender.announceCount(); got != 1 {
		t.Fatalf("1 announce should be sent, not %d", got)
	}

	peer := sender.announces[0].peer

	later := now.Add(engine.conf.GossipRequestTimeout + time.Second)
	engine.HandleTimeout(later)

	if got := sender.announceCount(); got != 2 {
		t.Fatalf("the announce should be retried, got %d sends", got)
	}
	if sender.announces[1].peer != peer {
		t.Fatal("the retry should target the same peer")
	}

	req, err := engine.tracker.Resolve(Gossip, item, peer)
	if err != nil {
		t.Fatal(err)
	}
	if req.Attempt != 1 {
		t.Fatalf("the retry should carry attempt 1, not %d", req.Attempt)
	}
}

// With enough peers connected, retries stop at MaxGossipAttempts.
func TestRetryBound(t *testing.T) {
	engine, _, _, peerSet := newTestEngine(t, 6)
	conf := engine.conf

	catalog := &fakeCatalog{peerSet}

	if !retryAllowed(conf, catalog, conf.MaxGossipAttempts-1) {
		t.Fatal("attempts below the bound should be allowed")
	}

	if retryAllowed(conf, catalog, conf.MaxGossipAttempts) {
		t.Fatal("attempts at the bound should be rejected")
	}
}

// With fewer than SufficientPeers connected, the retry bound is waived.
func TestRetryBoundWaived(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, 2)
	conf := engine.conf

	catalog := &fakeCatalog{testPeerSet(2)}

	if !retryAllowed(conf, catalog, conf.MaxGossipAttempts+100) {
		t.Fatal("the retry bound should be waived while below SufficientPeers")
	}
}

// An expired remainder fetch moves on to a different holder.
func TestRemainderTimeoutRetry(t *testing.T) {
	engine, _, sender, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	first := peerSet.Peers[0].ID()
	second := peerSet.Peers[1].ID()

	engine.Table().AddHolder(item, first)
	engine.Table().AddHolder(item, second)

	engine.fetcher.RequestRemainder(item, first, now)

	if got := sender.remainderCount(); got != 1 {
		t.Fatalf("1 remainder request should be sent, not %d", got)
	}

	later := now.Add(engine.conf.GetRemainderTimeout + time.Second)
	engine.HandleTimeout(later)

	if got := sender.remainderCount(); got != 2 {
		t.Fatalf("the fetch should be retried, got %d sends", got)
	}

	if sender.remainders[1].peer != second {
		t.Fatal("the retry should target the other holder")
	}
}

// Tick cancels remainder fetches for items the store obtained through another
// path.
func TestTickCancelsSatisfiedFetches(t *testing.T) {
	engine, store, _, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	from := peerSet.Peers[0].ID()

	engine.Table().AddHolder(item, from)
	engine.fetcher.RequestRemainder(item, from, now)

	if got := len(engine.tracker.PendingRemainders()); got != 1 {
		t.Fatalf("1 remainder should be pending, not %d", got)
	}

	store.Put(item, []byte{1})

	engine.Tick(now)

	if got := len(engine.tracker.PendingRemainders()); got != 0 {
		t.Fatalf("the pending remainder should be cancelled, got %d", got)
	}
}

// Finished records are evicted once the retention window has elapsed.
func TestTickEvictsExpiredRecords(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	engine.StartGossip(item, now)

	for _, msg := range append([]sentMessage{}, sender.announces...) {
		engine.HandleGossipAck(item, msg.peer, false, now)
	}

	if !engine.Table().IsFinished(item) {
		t.Fatal("gossip should be finished")
	}

	engine.Tick(now.Add(engine.conf.FinishedEntryDuration))

	if engine.Table().Get(item) == nil {
		t.Fatal("record should survive until retention has elapsed")
	}

	engine.Tick(now.Add(engine.conf.FinishedEntryDuration + time.Second))

	if engine.Table().Get(item) != nil {
		t.Fatal("record should be evicted after retention has elapsed")
	}
}

func TestFetchDirect(t *testing.T) {
	engine, store, sender, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	peer := peerSet.Peers[0].ID()

	if err := engine.FetchDirect(item, peer, now); err != nil {
		t.Fatal(err)
	}

	if got := sender.remainderCount(); got != 1 {
		t.Fatalf("1 remainder request should be sent, not %d", got)
	}

	reqs := engine.tracker.PendingRemainders()
	if len(reqs) != 1 {
		t.Fatalf("1 remainder should be pending, not %d", len(reqs))
	}
	if want := now.Add(engine.conf.GetFromPeerTimeout); !reqs[0].Deadline.Equal(want) {
		t.Fatalf("deadline should be %v, not %v", want, reqs[0].Deadline)
	}

	// Unknown peer
	if err := engine.FetchDirect(testItem(2), 12345, now); !Is(err, NoPeers) {
		t.Fatalf("expected NoPeers, got %v", err)
	}

	// Item already held
	store.Put(testItem(3), []byte{3})
	if err := engine.FetchDirect(testItem(3), peer, now); err != nil {
		t.Fatal(err)
	}
	if got := sender.remainderCount(); got != 1 {
		t.Fatal("no fetch should be issued for an item the store already has")
	}
}

// A timed-out direct fetch is retried against another holder with the
// one-shot fetch deadline, not the gossip remainder deadline.
func TestFetchDirectTimeoutKeepsDeadline(t *testing.T) {
	engine, _, _, peerSet := newTestEngine(t, 5)
	item := testItem(1)
	now := time.Now()

	source := peerSet.Peers[0].ID()
	other := peerSet.Peers[1].ID()

	engine.Table().AddHolder(item, other)

	if err := engine.FetchDirect(item, source, now); err != nil {
		t.Fatal(err)
	}

	later := now.Add(engine.conf.GetFromPeerTimeout + time.Second)
	engine.HandleTimeout(later)

	reqs := engine.tracker.PendingRemainders()
	if len(reqs) != 1 {
		t.Fatalf("1 remainder retry should be pending, not %d", len(reqs))
	}
	if reqs[0].PeerID != other {
		t.Fatalf("the retry should target the other holder, not %d", reqs[0].PeerID)
	}
	if want := later.Add(engine.conf.GetFromPeerTimeout); !reqs[0].Deadline.Equal(want) {
		t.Fatalf("deadline should be %v, not %v", want, reqs[0].Deadline)
	}
}
