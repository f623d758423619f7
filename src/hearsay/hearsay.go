// Package hearsay assembles a node from its parts: peers, store, transport,
// engine, and HTTP service.
package hearsay

import (
	"fmt"

	"github.com/mosaicnetworks/hearsay/src/config"
	"github.com/mosaicnetworks/hearsay/src/net"
	"github.com/mosaicnetworks/hearsay/src/node"
	"github.com/mosaicnetworks/hearsay/src/peers"
	"github.com/mosaicnetworks/hearsay/src/service"
	"github.com/mosaicnetworks/hearsay/src/store"
	"github.com/sirupsen/logrus"
)

// Hearsay is a struct containing the key parts of a hearsay node.
type Hearsay struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     store.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	localPeer *peers.Peer
}

// NewHearsay is a factory method to produce a Hearsay instance.
func NewHearsay(config *config.Config) *Hearsay {
	engine := &Hearsay{
		Config: config,
	}

	return engine
}

// Init initialises the hearsay engine
func (h *Hearsay) Init() error {
	if err := h.initPeers(); err != nil {
		h.Config.Logger().WithError(err).Error("hearsay.go:Init() initPeers")
		return err
	}

	if err := h.initStore(); err != nil {
		h.Config.Logger().WithError(err).Error("hearsay.go:Init() initStore")
		return err
	}

	if err := h.initTransport(); err != nil {
		h.Config.Logger().WithError(err).Error("hearsay.go:Init() initTransport")
		return err
	}

	if err := h.initNode(); err != nil {
		h.Config.Logger().WithError(err).Error("hearsay.go:Init() initNode")
		return err
	}

	if err := h.initService(); err != nil {
		h.Config.Logger().WithError(err).Error("hearsay.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the node and the HTTP service.
func (h *Hearsay) Run() {
	if h.Service != nil && !h.Config.NoService {
		go h.Service.Serve()
	}

	h.Node.Run()
}

func (h *Hearsay) initPeers() error {
	if h.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeerSet(h.Config.DataDir)

	participants, err := peerStore.PeerSet()
	if err != nil {
		return err
	}

	if participants.Len() < 2 {
		return fmt.Errorf("peers.json should define at least two peers")
	}

	h.Peers = participants

	return nil
}

func (h *Hearsay) initStore() error {
	if h.Store != nil {
		return nil
	}

	if !h.Config.Store {
		h.Store = store.NewInmemStore()

		h.Config.Logger().Debug("Created new in-mem store")
	} else {
		var err error

		h.Config.Logger().WithField("path", h.Config.DatabaseDir).Debug("Attempting to load or create database")

		h.Store, err = store.NewBadgerStore(h.Config.DatabaseDir)
		if err != nil {
			return err
		}

		h.Config.Logger().Debug("Loaded badger store")
	}

	return nil
}

func (h *Hearsay) initTransport() error {
	if h.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		h.Config.BindAddr,
		h.Config.AdvertiseAddr,
		h.Config.MaxPool,
		h.Config.TCPTimeout,
		h.Config.Logger(),
	)
	if err != nil {
		return err
	}

	h.Transport = transport

	return nil
}

// initNode finds the local peer in the peer set by its advertised address and
// builds the node around it.
func (h *Hearsay) initNode() error {
	advertise := h.Transport.AdvertiseAddr()

	for _, p := range h.Peers.Peers {
		if p.NetAddr == advertise {
			h.localPeer = p
			break
		}
	}

	if h.localPeer == nil {
		return fmt.Errorf("cannot find self (%s) in peers.json", advertise)
	}

	if h.Config.Moniker != "" {
		h.localPeer.Moniker = h.Config.Moniker
	}

	h.Config.Logger().WithFields(logrus.Fields{
		"participants": h.Peers.Len(),
		"id":           h.localPeer.ID(),
		"moniker":      h.localPeer.Moniker,
	}).Debug("PARTICIPANTS")

	h.Node = node.NewNode(
		h.Config,
		h.localPeer,
		h.Peers,
		h.Store,
		h.Transport,
	)

	if err := h.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (h *Hearsay) initService() error {
	if h.Config.ServiceAddr != "" && !h.Config.NoService {
		h.Service = service.NewService(h.Config.ServiceAddr, h.Node, h.Config.Logger())
	}
	return nil
}
