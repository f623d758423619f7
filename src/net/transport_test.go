package net

import (
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/hearsay/src/common"
	"github.com/mosaicnetworks/hearsay/src/gossip"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, common.NewTestEntry(t))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Announce(t *testing.T) {
	addr1 := "127.0.0.1:1234"
	addr2 := "127.0.0.1:1235"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		// Make the RPC request
		args := GossipAnnounce{
			FromID: 5,
			ItemID: gossip.NewItemID([]byte("an item")),
		}
		resp := GossipAck{
			FromID: 0,
			New:    true,
		}

		// Listen for a request
		go func() {
			select {
			case rpc := <-rpcCh:
				// Verify the command
				req := rpc.Command.(*GossipAnnounce)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)
			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		// Transport 2 makes outbound request
		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		if itrans, ok := trans2.(*InmemTransport); ok {
			itrans.Connect(trans1.AdvertiseAddr(), trans1)
		}

		var out GossipAck
		if err := trans2.Announce(trans1.AdvertiseAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		// Verify the response
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("command mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_GetRemainder(t *testing.T) {
	addr1 := "127.0.0.1:1236"
	addr2 := "127.0.0.1:1237"

	payload := []byte("the full item body")
	item := gossip.NewItemID(payload)

	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := RemainderRequest{
			FromID: 5,
			ItemID: item,
		}
		resp := RemainderResponse{
			FromID:  0,
			ItemID:  item,
			Found:   true,
			Payload: payload,
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*RemainderRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)
			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		if itrans, ok := trans2.(*InmemTransport); ok {
			itrans.Connect(trans1.AdvertiseAddr(), trans1)
		}

		var out RemainderResponse
		if err := trans2.GetRemainder(trans1.AdvertiseAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("command mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_PooledConn(t *testing.T) {
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer trans1.Close()
	go trans1.Listen()

	rpcCh := trans1.Consumer()

	go func() {
		for {
			select {
			case rpc := <-rpcCh:
				rpc.Respond(&GossipAck{FromID: 1, New: false}, nil)
			case <-time.After(time.Second):
				return
			}
		}
	}()

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	defer trans2.Close()

	args := GossipAnnounce{FromID: 5, ItemID: gossip.NewItemID([]byte("pooled"))}

	// Two sequential RPCs share a pooled connection
	for i := 0; i < 2; i++ {
		var out GossipAck
		if err := trans2.Announce(trans1.AdvertiseAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}
