// Package gossip implements the epidemic dissemination engine at the heart of
// a hearsay node.
//
// Items are opaque, content-addressed units of data (blocks, deploys,
// signatures, trie nodes). A node that obtains a new item announces it to a
// random selection of peers, who announce it to their own selections in turn,
// until further rounds are unlikely to reach anyone who hasn't heard of the
// item. Peers that learn of an item's existence without holding its body fetch
// the remainder from a known holder.
//
// The engine decides who to tell, when to stop telling, and how to get the
// full payload. It does not interpret, validate, or persist item bodies; those
// concerns belong to the storage and consensus collaborators.
package gossip
