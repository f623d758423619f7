// Package peers defines the PeerSet, the catalog of connected peers from which
// the gossip routines draw their fan-out targets.
package peers
