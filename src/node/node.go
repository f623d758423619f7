package node

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mosaicnetworks/hearsay/src/config"
	"github.com/mosaicnetworks/hearsay/src/gossip"
	"github.com/mosaicnetworks/hearsay/src/net"
	"github.com/mosaicnetworks/hearsay/src/peers"
	"github.com/mosaicnetworks/hearsay/src/store"
	"github.com/mosaicnetworks/hearsay/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Node defines a hearsay node. It runs the gossip engine against real time
// and a real transport: inbound RPCs, locally submitted items, and the
// maintenance timer all feed the engine from here.
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	localPeer *peers.Peer
	catalog   *PeerCatalog

	engine     *gossip.Engine
	engineLock sync.Mutex

	itemStore store.Store

	trans net.Transport
	netCh <-chan net.RPC

	submitCh chan []byte

	sigintCh   chan os.Signal
	shutdownCh chan struct{}

	runStarted int32
	runDoneCh  chan struct{}

	controlTimer *ControlTimer

	start time.Time
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config,
	localPeer *peers.Peer,
	peerSet *peers.PeerSet,
	itemStore store.Store,
	trans net.Transport,
) *Node {
	//Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	catalog := NewPeerCatalog(peerSet)

	node := Node{
		conf:         conf,
		logger:       conf.Logger().WithField("this_id", localPeer.ID()),
		localPeer:    localPeer,
		catalog:      catalog,
		itemStore:    itemStore,
		trans:        trans,
		netCh:        trans.Consumer(),
		submitCh:     make(chan []byte, 64),
		sigintCh:     sigintCh,
		shutdownCh:   make(chan struct{}),
		runDoneCh:    make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
		start:        time.Now(),
	}

	node.engine = gossip.NewEngine(
		&conf.Gossip,
		localPeer.ID(),
		catalog,
		itemStore,
		&node,
	)

	return &node
}

// Init initialises the node
func (n *Node) Init() error {
	//The transport's accept loop runs until the transport is closed.
	go n.trans.Listen()

	_, ok := n.catalog.peerSet.ByID[n.localPeer.ID()]
	if ok {
		n.logger.Debug("Node belongs to PeerSet")
	} else {
		n.logger.Debug("Node does not belong to PeerSet")
	}

	n.setState(Gossiping)

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	go n.Run()
}

// Run invokes the main loop of the node
func (n *Node) Run() {
	atomic.StoreInt32(&n.runStarted, 1)

	//Shutdown waits on runDoneCh so nothing is logged or torn down while the
	//loop is still draining.
	defer close(n.runDoneCh)

	//The ControlTimer drives the engine's periodic maintenance: timeout
	//processing, saturation evaluation, and eviction of finished records.
	go n.controlTimer.Run(n.conf.TickInterval)

	//Execute some background work regardless of the state of the node.
	go n.doBackgroundWork()

	//Execute Node State Machine
	for {
		//Run different routines depending on node state
		state := n.getState()

		if state == Shutdown {
			return
		}

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Gossiping:
			n.gossiping()
		case Suspended:
			n.suspended()
		}
	}
}

func (n *Node) resetTimer() {
	n.controlTimer.resetCh <- n.conf.TickInterval
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			n.goFunc(func() {
				n.logger.Debug("Processing RPC")
				n.processRPC(rpc)
			})
		case payload := <-n.submitCh:
			n.logger.Debug("Adding Item")
			n.addItem(payload)
		case <-n.shutdownCh:
			return
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT")
			n.Shutdown()
			os.Exit(0)
		}
	}
}

// gossiping processes maintenance ticks while the node is in the Gossiping
// state.
func (n *Node) gossiping() {
	n.logger.Debug("GOSSIPING")

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.tick()
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}

		if n.getState() != Gossiping {
			return
		}
	}
}

// suspended keeps the timer spinning but performs no gossip work. RPCs are
// still served from doBackgroundWork, so a suspended node keeps answering
// remainder requests.
func (n *Node) suspended() {
	n.logger.Debug("SUSPENDED")

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}

		if n.getState() != Suspended {
			return
		}
	}
}

// tick runs one maintenance pass of the engine against the current time.
func (n *Node) tick() {
	n.engineLock.Lock()
	defer n.engineLock.Unlock()

	now := time.Now()

	for _, req := range n.engine.HandleTimeout(now) {
		telemetry.RequestTimeouts.WithLabelValues(req.Kind.String()).Inc()
	}

	n.engine.Tick(now)
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.GossipAnnounce:
		n.processGossipAnnounce(rpc, cmd)
	case *net.RemainderRequest:
		n.processRemainderRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processGossipAnnounce(rpc net.RPC, cmd *net.GossipAnnounce) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"item":    cmd.ItemID.Short(),
	}).Debug("Process GossipAnnounce")

	wasNew := false

	//A suspended node acknowledges announces but does not join the spreading.
	if n.getState() == Gossiping {
		n.engineLock.Lock()
		wasNew = n.engine.HandleGossipMessage(cmd.ItemID, cmd.FromID, time.Now())
		n.engineLock.Unlock()
	}

	telemetry.AnnouncesReceived.WithLabelValues(strconv.FormatBool(wasNew)).Inc()

	resp := &net.GossipAck{
		FromID: n.localPeer.ID(),
		New:    wasNew,
	}

	rpc.Respond(resp, nil)
}

func (n *Node) processRemainderRequest(rpc net.RPC, cmd *net.RemainderRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"item":    cmd.ItemID.Short(),
	}).Debug("Process RemainderRequest")

	resp := &net.RemainderResponse{
		FromID: n.localPeer.ID(),
		ItemID: cmd.ItemID,
	}

	payload, err := n.itemStore.Get(cmd.ItemID)
	if err == nil {
		resp.Found = true
		resp.Payload = payload
	}

	telemetry.RemaindersServed.WithLabelValues(strconv.FormatBool(resp.Found)).Inc()

	rpc.Respond(resp, nil)
}

// addItem stores a locally produced item and starts gossiping it.
func (n *Node) addItem(payload []byte) {
	item := gossip.NewItemID(payload)

	if err := n.itemStore.Put(item, payload); err != nil {
		n.logger.WithError(err).WithField("item", item.Short()).Error("Storing item")
		return
	}

	n.engineLock.Lock()
	defer n.engineLock.Unlock()

	n.engine.StartGossip(item, time.Now())
}

// Announce implements the engine's sender interface. The RPC runs in a
// background routine; its response feeds back into the engine as an ack, and
// a failed or slow exchange is left to the engine's timeout handling.
func (n *Node) Announce(peer *peers.Peer, item gossip.ItemID) {
	telemetry.AnnouncesSent.Inc()

	n.goFunc(func() {
		args := &net.GossipAnnounce{
			FromID: n.localPeer.ID(),
			ItemID: item,
		}

		var resp net.GossipAck

		if err := n.trans.Announce(peer.NetAddr, args, &resp); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"target": peer.NetAddr,
				"item":   item.Short(),
			}).Debug("Announce failed")
			return
		}

		n.engineLock.Lock()
		defer n.engineLock.Unlock()

		n.engine.HandleGossipAck(item, peer.ID(), resp.New, time.Now())
	})
}

// RequestRemainder implements the engine's sender interface.
func (n *Node) RequestRemainder(peer *peers.Peer, item gossip.ItemID) {
	telemetry.RemaindersSent.Inc()

	n.goFunc(func() {
		args := &net.RemainderRequest{
			FromID: n.localPeer.ID(),
			ItemID: item,
		}

		var resp net.RemainderResponse

		if err := n.trans.GetRemainder(peer.NetAddr, args, &resp); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"target": peer.NetAddr,
				"item":   item.Short(),
			}).Debug("GetRemainder failed")
			return
		}

		n.engineLock.Lock()
		defer n.engineLock.Unlock()

		if resp.Found {
			n.engine.OnRemainderReceived(item, peer.ID(), resp.Payload, time.Now())
		} else {
			n.engine.OnRemainderNotFound(item, peer.ID(), time.Now())
		}
	})
}

// Submit queues a locally produced payload for storage and dissemination.
func (n *Node) Submit(payload []byte) {
	select {
	case n.submitCh <- payload:
	case <-n.shutdownCh:
	}
}

// Fetch issues a one-shot fetch of an item from a specific peer, outside the
// gossip path.
func (n *Node) Fetch(item gossip.ItemID, peerID uint32) error {
	n.engineLock.Lock()
	defer n.engineLock.Unlock()

	return n.engine.FetchDirect(item, peerID, time.Now())
}

// Suspend stops the node from initiating gossip. It keeps serving remainder
// requests.
func (n *Node) Suspend() {
	if n.getState() == Gossiping {
		n.logger.Debug("Suspend")
		n.setState(Suspended)
	}
}

// Resume returns a suspended node to the Gossiping state.
func (n *Node) Resume() {
	if n.getState() == Suspended {
		n.logger.Debug("Resume")
		n.setState(Gossiping)
	}
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.waitRoutines()

		//Wait for the run loop to exit before tearing anything down
		if atomic.LoadInt32(&n.runStarted) == 1 {
			<-n.runDoneCh
		}

		//For some reason this needs to be called after closing the shutdownCh
		//Not entirely sure why...
		n.controlTimer.Shutdown()

		//transport and store should only be closed once all concurrent operations
		//are finished otherwise they will panic trying to use closed objects
		n.trans.Close()

		n.itemStore.Close()
	}
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	n.engineLock.Lock()
	s := n.engine.Stats()
	n.engineLock.Unlock()

	s["stored_items"] = strconv.Itoa(n.itemStore.Len())
	s["uptime_seconds"] = strconv.FormatFloat(timeElapsed.Seconds(), 'f', 2, 64)
	s["id"] = fmt.Sprint(n.localPeer.ID())
	s["state"] = n.getState().String()
	s["moniker"] = n.localPeer.Moniker

	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"items":            stats["items"],
		"active_items":     stats["active_items"],
		"finished_items":   stats["finished_items"],
		"pending_requests": stats["pending_requests"],
		"stored_items":     stats["stored_items"],
		"num_peers":        stats["num_peers"],
		"id":               stats["id"],
		"state":            stats["state"],
		"moniker":          stats["moniker"],
	}).Debug("Stats")
}

// ID returns the node's ID
func (n *Node) ID() uint32 {
	return n.localPeer.ID()
}

// GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.catalog.Peers()
}

// GetItem returns the body of a stored item.
func (n *Node) GetItem(item gossip.ItemID) ([]byte, error) {
	return n.itemStore.Get(item)
}

// GetItemIDs returns the IDs of the items currently tracked by the gossip
// table.
func (n *Node) GetItemIDs() []gossip.ItemID {
	n.engineLock.Lock()
	defer n.engineLock.Unlock()

	return n.engine.Table().Items()
}
