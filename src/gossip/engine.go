package gossip

import (
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine orchestrates the gossip table, fan-out scheduler, request tracker,
// and fetch coordinator. It exposes the entry points consumed by the
// networking and consensus collaborators.
//
// The engine never blocks: sends are fire-and-forget through the Sender, and
// responses and timeouts are delivered back as discrete events. Time is
// injected through the now parameter of every entry point; the engine holds no
// timers of its own.
type Engine struct {
	conf    *Config
	localID uint32

	table    *GossipTable
	tracker  *RequestTracker
	selector *FanoutScheduler
	fetcher  *FetchCoordinator

	catalog PeerCatalog
	store   Store
	sender  Sender

	logger *logrus.Entry
}

// NewEngine instantiates an Engine wired to its collaborators.
func NewEngine(
	conf *Config,
	localID uint32,
	catalog PeerCatalog,
	store Store,
	sender Sender,
) *Engine {
	logger := conf.Logger.WithField("component", "gossip")

	table := NewGossipTable()
	tracker := NewRequestTracker()

	return &Engine{
		conf:     conf,
		localID:  localID,
		table:    table,
		tracker:  tracker,
		selector: NewFanoutScheduler(table, catalog, localID),
		fetcher:  NewFetchCoordinator(table, tracker, catalog, store, sender, conf, logger),
		catalog:  catalog,
		store:    store,
		sender:   sender,
		logger:   logger,
	}
}

// Table exposes the gossip table for read-only inspection (stats, service).
func (e *Engine) Table() *GossipTable {
	return e.table
}

// Tracker exposes the request tracker for read-only inspection.
func (e *Engine) Tracker() *RequestTracker {
	return e.tracker
}

// StartGossip begins disseminating an item that the local node holds. It
// creates an Active record and triggers one fan-out round immediately.
func (e *Engine) StartGossip(item ItemID, now time.Time) {
	e.table.RecordFor(item)

	e.logger.WithField("item", item.Short()).Debug("Start gossip")

	e.launchRound(item, now)
}

// HandleGossipMessage processes an inbound announce: from holds item. The
// sender is recorded as a holder, a remainder fetch is issued if the local
// store lacks the body, and the local node joins the spreading unless the
// item's lifecycle has already ended. It returns whether the item was new to
// this node's gossip table.
func (e *Engine) HandleGossipMessage(item ItemID, from uint32, now time.Time) bool {
	wasNew := e.table.Get(item) == nil

	e.table.AddHolder(item, from)

	e.logger.WithFields(logrus.Fields{
		"item": item.Short(),
		"from": from,
		"new":  wasNew,
	}).Debug("Gossip message")

	if !e.store.Has(item) {
		e.fetcher.RequestRemainder(item, from, now)
	}

	if !e.table.IsFinished(item) {
		e.continueGossip(item, now)
	}

	return wasNew
}

// HandleGossipAck processes a peer's acknowledgement of an announce. The
// isNew flag reports whether the item was new to the peer; only new
// infections count towards the saturation evaluation. Acks with no matching
// pending request are late or cancelled and are ignored.
func (e *Engine) HandleGossipAck(item ItemID, from uint32, isNew bool, now time.Time) {
	if _, err := e.tracker.Resolve(Gossip, item, from); err != nil {
		e.logger.WithFields(logrus.Fields{
			"item": item.Short(),
			"from": from,
		}).Debug("Stale gossip ack")
		return
	}

	e.table.ClearInFlight(item, from)

	if isNew {
		e.table.AddHolder(item, from)
	} else {
		e.table.NoteHolder(item, from)
	}

	e.continueGossip(item, now)
}

// HandleTimeout drains the expired requests and applies the retry policy. It
// returns the requests that expired, for the caller's accounting.
func (e *Engine) HandleTimeout(now time.Time) []*PendingRequest {
	expired := e.tracker.PollExpired(now)

	for _, req := range expired {
		switch req.Kind {
		case Gossip:
			e.gossipTimeout(req, now)
		case Remainder:
			e.logger.WithFields(logrus.Fields{
				"item": req.ItemID.Short(),
				"peer": req.PeerID,
			}).Debug("Remainder timeout")

			e.fetcher.RetryFromAnotherHolder(req.ItemID, req.PeerID, req.Attempt+1, req.Timeout, now)
		}
	}

	return expired
}

// Tick performs periodic maintenance: cancels remainder fetches for items the
// store obtained through another path, re-evaluates stalled rounds, and
// evicts expired Finished records. It is driven by an external timer.
func (e *Engine) Tick(now time.Time) {
	for _, req := range e.tracker.PendingRemainders() {
		if e.store.Has(req.ItemID) {
			e.tracker.Resolve(Remainder, req.ItemID, req.PeerID)
		}
	}

	for _, item := range e.table.Items() {
		if e.table.IsFinished(item) {
			if e.table.EvictIfExpired(item, now, e.conf.FinishedEntryDuration) {
				e.logger.WithField("item", item.Short()).Debug("Evicted finished record")
			}
			continue
		}

		e.continueGossip(item, now)
	}
}

// FetchDirect issues a one-shot fetch of an item from a specific peer,
// outside the gossip path, with the GetFromPeerTimeout deadline.
func (e *Engine) FetchDirect(item ItemID, peer uint32, now time.Time) error {
	if e.store.Has(item) {
		return nil
	}

	target := e.catalog.PeerByID(peer)
	if target == nil {
		return NewErr("FetchDirect", NoPeers, item.Short())
	}

	if _, err := e.tracker.Register(Remainder, item, peer, now, e.conf.GetFromPeerTimeout, 0); err != nil {
		return err
	}

	e.sender.RequestRemainder(target, item)

	return nil
}

// OnRemainderReceived feeds an inbound remainder payload to the fetch
// coordinator.
func (e *Engine) OnRemainderReceived(item ItemID, from uint32, payload []byte, now time.Time) {
	e.fetcher.OnRemainderReceived(item, from, payload, now)
}

// OnRemainderNotFound feeds a negative remainder response to the fetch
// coordinator.
func (e *Engine) OnRemainderNotFound(item ItemID, from uint32, now time.Time) {
	e.fetcher.OnNotFound(item, from, now)
}

// continueGossip evaluates the item's fan-out round. Nothing happens while
// announces are outstanding. On round completion, the record either finishes
// (saturation reached) or a new round is launched.
func (e *Engine) continueGossip(item ItemID, now time.Time) {
	if !e.table.RoundComplete(item) {
		return
	}

	if e.table.ShouldFinish(item, e.conf.saturatedHolderCount()) {
		e.table.MarkFinished(item, now)

		e.logger.WithFields(logrus.Fields{
			"item":    item.Short(),
			"holders": len(e.table.Holders(item)),
		}).Debug("Gossip finished")

		return
	}

	e.launchRound(item, now)
}

// launchRound resets the infection tally and announces the item to a fresh
// selection of peers. A round that finds no targets leaves the record Active;
// Tick will re-evaluate it when peers or holders change.
func (e *Engine) launchRound(item ItemID, now time.Time) {
	if e.table.IsFinished(item) {
		return
	}

	e.table.ResetInfectionCount(item)

	targets := e.selector.SelectTargets(item, e.conf.InfectionTarget)
	if len(targets) == 0 {
		return
	}

	for _, target := range targets {
		if _, err := e.tracker.Register(Gossip, item, target.ID(), now, e.conf.GossipRequestTimeout, 0); err != nil {
			continue
		}

		e.table.MarkInFlight(item, target.ID())
		e.sender.Announce(target, item)
	}
}

// gossipTimeout applies the retry policy to an expired announce: the same
// peer is retried with an incremented attempt count until the retry bound is
// hit, after which the round is re-evaluated without it.
func (e *Engine) gossipTimeout(req *PendingRequest, now time.Time) {
	item := req.ItemID

	e.table.ClearInFlight(item, req.PeerID)

	if e.table.IsFinished(item) {
		return
	}

	attempt := req.Attempt + 1

	target := e.catalog.PeerByID(req.PeerID)
	if target != nil && retryAllowed(e.conf, e.catalog, attempt) {
		if _, err := e.tracker.Register(Gossip, item, req.PeerID, now, e.conf.GossipRequestTimeout, attempt); err == nil {
			e.logger.WithFields(logrus.Fields{
				"item":    item.Short(),
				"peer":    req.PeerID,
				"attempt": attempt,
			}).Debug("Retrying announce")

			e.table.MarkInFlight(item, req.PeerID)
			e.sender.Announce(target, item)
			return
		}
	}

	e.continueGossip(item, now)
}

// Stats returns engine counters for the stats surface.
func (e *Engine) Stats() map[string]string {
	items := e.table.Items()

	finished := 0
	for _, item := range items {
		if e.table.IsFinished(item) {
			finished++
		}
	}

	return map[string]string{
		"items":            strconv.Itoa(len(items)),
		"active_items":     strconv.Itoa(len(items) - finished),
		"finished_items":   strconv.Itoa(finished),
		"pending_requests": strconv.Itoa(e.tracker.Len()),
		"num_peers":        strconv.Itoa(e.catalog.Len()),
	}
}
