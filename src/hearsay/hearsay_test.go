package hearsay

import (
	"fmt"
	"testing"
	"time"

	"github.com/mosaicnetworks/hearsay/src/config"
	"github.com/mosaicnetworks/hearsay/src/gossip"
	"github.com/mosaicnetworks/hearsay/src/net"
	"github.com/mosaicnetworks/hearsay/src/peers"
	"github.com/mosaicnetworks/hearsay/src/store"
)

func initHearsays(t *testing.T, n int) []*Hearsay {
	transports := []*net.InmemTransport{}
	peerSlice := []*peers.Peer{}

	for i := 0; i < n; i++ {
		addr, trans := net.NewInmemTransport("")
		transports = append(transports, trans)
		peerSlice = append(peerSlice, peers.NewPeer(
			fmt.Sprintf("0x%040X", i+1),
			addr,
			fmt.Sprintf("node%d", i)))
	}

	for i, t1 := range transports {
		for j, t2 := range transports {
			if i != j {
				t1.Connect(peerSlice[j].NetAddr, t2)
			}
		}
	}

	hearsays := []*Hearsay{}
	for i := 0; i < n; i++ {
		conf := config.NewTestConfig(t)
		conf.TickInterval = 20 * time.Millisecond
		conf.NoService = true

		h := NewHearsay(conf)
		h.Peers = peers.NewPeerSet(peerSlice)
		h.Store = store.NewInmemStore()
		h.Transport = transports[i]

		if err := h.Init(); err != nil {
			t.Fatal(err)
		}

		hearsays = append(hearsays, h)
	}

	return hearsays
}

func TestInitAndRun(t *testing.T) {
	hearsays := initHearsays(t, 3)

	for _, h := range hearsays {
		if h.Node == nil {
			t.Fatal("Init should build the node")
		}
		go h.Run()
	}

	defer func() {
		for _, h := range hearsays {
			h.Node.Shutdown()
		}
	}()

	payload := []byte("assembled end to end")
	item := gossip.NewItemID(payload)

	hearsays[0].Node.Submit(payload)

	deadline := time.After(3 * time.Second)
	for {
		done := true
		for _, h := range hearsays {
			if !h.Store.Has(item) {
				done = false
				break
			}
		}
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("the item did not reach all nodes in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestInitRequiresSelfInPeers(t *testing.T) {
	conf := config.NewTestConfig(t)
	conf.NoService = true

	_, trans := net.NewInmemTransport("")

	h := NewHearsay(conf)
	h.Peers = peers.NewPeerSet([]*peers.Peer{
		peers.NewPeer("0xAAAA", "127.0.0.1:1111", "a"),
		peers.NewPeer("0xBBBB", "127.0.0.1:2222", "b"),
	})
	h.Store = store.NewInmemStore()
	h.Transport = trans

	if err := h.Init(); err == nil {
		t.Fatal("Init should fail when the local address is not in the peer set")
	}
}
