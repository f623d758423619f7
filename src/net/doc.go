// Package net implements the transports used by hearsay nodes to exchange
// gossip announces and remainder fetches.
//
// There are two implementations of the Transport interface:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// Each RPC request is framed by a byte indicating the message type, followed
// by the codec-encoded request. The response is an error string followed by
// the response object.
package net
