package gossip

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// FetchCoordinator retrieves the full body of an item from a peer that
// announced possession of it. Retrieved bytes are handed to the storage
// collaborator; the coordinator does not verify or retain them.
type FetchCoordinator struct {
	table   *GossipTable
	tracker *RequestTracker
	catalog PeerCatalog
	store   Store
	sender  Sender
	conf    *Config
	logger  *logrus.Entry
}

// NewFetchCoordinator instantiates a FetchCoordinator.
func NewFetchCoordinator(
	table *GossipTable,
	tracker *RequestTracker,
	catalog PeerCatalog,
	store Store,
	sender Sender,
	conf *Config,
	logger *logrus.Entry,
) *FetchCoordinator {
	return &FetchCoordinator{
		table:   table,
		tracker: tracker,
		catalog: catalog,
		store:   store,
		sender:  sender,
		conf:    conf,
		logger:  logger,
	}
}

// RequestRemainder issues a remainder fetch to source, unless the store
// already has the full item or a fetch to source is already outstanding.
func (f *FetchCoordinator) RequestRemainder(item ItemID, source uint32, now time.Time) {
	if f.store.Has(item) {
		return
	}

	f.request(item, source, 0, f.conf.GetRemainderTimeout, now)
}

// OnRemainderReceived handles an inbound remainder payload. Responses with no
// matching pending request are late or duplicate and are silently ignored. A
// store failure triggers a retry from a different holder.
func (f *FetchCoordinator) OnRemainderReceived(item ItemID, from uint32, payload []byte, now time.Time) {
	req, err := f.tracker.Resolve(Remainder, item, from)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"item": item.Short(),
			"from": from,
		}).Debug("Unsolicited remainder")
		return
	}

	if err := f.store.Put(item, payload); err != nil {
		f.logger.WithFields(logrus.Fields{
			"item":  item.Short(),
			"from":  from,
			"error": err,
		}).Error("Storing remainder")

		f.RetryFromAnotherHolder(item, from, req.Attempt+1, req.Timeout, now)

		return
	}

	f.logger.WithFields(logrus.Fields{
		"item": item.Short(),
		"from": from,
	}).Debug("Remainder stored")
}

// OnNotFound handles a peer's response that it does not hold the item after
// all. The fetch moves on to a different holder.
func (f *FetchCoordinator) OnNotFound(item ItemID, from uint32, now time.Time) {
	req, err := f.tracker.Resolve(Remainder, item, from)
	if err != nil {
		return
	}

	f.RetryFromAnotherHolder(item, from, req.Attempt+1, req.Timeout, now)
}

// RetryFromAnotherHolder selects a holder other than failed and issues a new
// remainder fetch with the given attempt count and the originating request's
// timeout. If no other holder is known, the item remains pending until gossip
// surfaces a new one; that is not an error.
func (f *FetchCoordinator) RetryFromAnotherHolder(item ItemID, failed uint32, attempt int, timeout time.Duration, now time.Time) {
	if f.store.Has(item) {
		return
	}

	if !retryAllowed(f.conf, f.catalog, attempt) {
		f.logger.WithFields(logrus.Fields{
			"item":    item.Short(),
			"attempt": attempt,
		}).Debug("Abandoning remainder fetch")
		return
	}

	holder, ok := f.pickHolder(item, failed)
	if !ok {
		f.logger.WithField("item", item.Short()).Debug("No other holder for remainder")
		return
	}

	f.request(item, holder, attempt, timeout, now)
}

// request registers a Remainder entry and dispatches the fetch. A
// DuplicateRequest from the tracker means a fetch to this peer is already in
// flight; the caller's intent is already covered.
func (f *FetchCoordinator) request(item ItemID, peer uint32, attempt int, timeout time.Duration, now time.Time) {
	target := f.catalog.PeerByID(peer)
	if target == nil {
		f.logger.WithFields(logrus.Fields{
			"item": item.Short(),
			"peer": peer,
		}).Debug("Remainder source not connected")
		return
	}

	if _, err := f.tracker.Register(Remainder, item, peer, now, timeout, attempt); err != nil {
		return
	}

	f.logger.WithFields(logrus.Fields{
		"item":    item.Short(),
		"peer":    peer,
		"attempt": attempt,
	}).Debug("Requesting remainder")

	f.sender.RequestRemainder(target, item)
}

// pickHolder returns a random known holder of item, excluding the failed peer
// and holders that are no longer connected.
func (f *FetchCoordinator) pickHolder(item ItemID, failed uint32) (uint32, bool) {
	holders := f.table.Holders(item)

	candidates := []uint32{}
	for _, h := range holders {
		if h != failed && f.catalog.PeerByID(h) != nil {
			candidates = append(candidates, h)
		}
	}

	if len(candidates) == 0 {
		return 0, false
	}

	return candidates[rand.Intn(len(candidates))], true
}

// retryAllowed applies the retry bound. The bound is waived while the node
// has fewer than SufficientPeers connections, so that an isolated or
// bootstrapping node keeps trying indefinitely.
func retryAllowed(conf *Config, catalog PeerCatalog, attempt int) bool {
	if catalog.Len() < conf.SufficientPeers {
		return true
	}

	return attempt < conf.MaxGossipAttempts
}
