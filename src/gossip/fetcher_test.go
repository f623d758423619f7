package gossip

import (
	"bytes"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, numPeers int) (*FetchCoordinator, *fakeStore, *fakeSender, *fakeCatalog) {
	conf := NewTestConfig(t)

	catalog := &fakeCatalog{testPeerSet(numPeers)}
	store := newFakeStore()
	sender := newFakeSender()

	table := NewGossipTable()
	tracker := NewRequestTracker()

	fetcher := NewFetchCoordinator(table, tracker, catalog, store, sender, conf,
		conf.Logger.WithField("component", "fetch"))

	return fetcher, store, sender, catalog
}

func TestRequestRemainder(t *testing.T) {
	fetcher, store, sender, catalog := newTestFetcher(t, 3)
	item := testItem(1)
	now := time.Now()

	source := catalog.peerSet.Peers[0].ID()

	fetcher.RequestRemainder(item, source, now)

	if got := sender.remainderCount(); got != 1 {
		t.Fatalf("1 remainder request should be sent, not %d", got)
	}

	// A second call while the first is outstanding is a no-op
	fetcher.RequestRemainder(item, source, now)

	if got := sender.remainderCount(); got != 1 {
		t.Fatal("a duplicate fetch should not be issued")
	}

	// No fetch for an item the store already has
	other := testItem(2)
	store.Put(other, []byte{2})

	fetcher.RequestRemainder(other, source, now)

	if got := sender.remainderCount(); got != 1 {
		t.Fatal("no fetch should be issued for a stored item")
	}
}

func TestOnRemainderReceived(t *testing.T) {
	fetcher, store, _, catalog := newTestFetcher(t, 3)
	payload := []byte("the full item body")
	item := NewItemID(payload)
	now := time.Now()

	source := catalog.peerSet.Peers[0].ID()

	fetcher.RequestRemainder(item, source, now)
	fetcher.OnRemainderReceived(item, source, payload, now)

	stored, err := store.Get(item)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, payload) {
		t.Fatal("stored payload should match the received one")
	}
}

func TestUnsolicitedRemainder(t *testing.T) {
	fetcher, store, _, catalog := newTestFetcher(t, 3)
	payload := []byte("unsolicited")
	item := NewItemID(payload)
	now := time.Now()

	source := catalog.peerSet.Peers[0].ID()

	fetcher.OnRemainderReceived(item, source, payload, now)

	if store.Has(item) {
		t.Fatal("an unsolicited remainder should be ignored")
	}
}

func TestStoreFailureRetriesElsewhere(t *testing.T) {
	fetcher, store, sender, catalog := newTestFetcher(t, 3)
	payload := []byte("rejected")
	item := NewItemID(payload)
	now := time.Now()

	first := catalog.peerSet.Peers[0].ID()
	second := catalog.peerSet.Peers[1].ID()

	fetcher.table.AddHolder(item, first)
	fetcher.table.AddHolder(item, second)

	store.failPut = true

	fetcher.RequestRemainder(item, first, now)
	fetcher.OnRemainderReceived(item, first, payload, now)

	if got := sender.remainderCount(); got != 2 {
		t.Fatalf("the fetch should be retried after a store failure, got %d sends", got)
	}
	if sender.remainders[1].peer != second {
		t.Fatal("the retry should target the other holder")
	}
}

func TestOnNotFound(t *testing.T) {
	fetcher, _, sender, catalog := newTestFetcher(t, 3)
	item := testItem(1)
	now := time.Now()

	first := catalog.peerSet.Peers[0].ID()
	second := catalog.peerSet.Peers[1].ID()

	fetcher.table.AddHolder(item, first)
	fetcher.table.AddHolder(item, second)

	fetcher.RequestRemainder(item, first, now)
	fetcher.OnNotFound(item, first, now)

	if got := sender.remainderCount(); got != 2 {
		t.Fatalf("the fetch should move to another holder, got %d sends", got)
	}
	if sender.remainders[1].peer != second {
		t.Fatal("the retry should target the other holder")
	}
}

func TestNoOtherHolder(t *testing.T) {
	fetcher, _, sender, catalog := newTestFetcher(t, 3)
	item := testItem(1)
	now := time.Now()

	first := catalog.peerSet.Peers[0].ID()

	fetcher.table.AddHolder(item, first)

	fetcher.RequestRemainder(item, first, now)
	fetcher.OnNotFound(item, first, now)

	// The fetch stays parked until gossip surfaces a new holder
	if got := sender.remainderCount(); got != 1 {
		t.Fatalf("no retry should be issued without another holder, got %d sends", got)
	}
}
