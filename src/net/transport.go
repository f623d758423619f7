package net

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen starts the transport listening.
	Listen()

	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address.
	LocalAddr() string

	// AdvertiseAddr is used to return the address where other peers can reach
	// us.
	AdvertiseAddr() string

	// Announce and GetRemainder send the appropriate RPC to the target node.

	Announce(target string, args *GossipAnnounce, resp *GossipAck) error

	GetRemainder(target string, args *RemainderRequest, resp *RemainderResponse) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}
