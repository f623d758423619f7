package gossip

import (
	"fmt"
	"sync"
	"time"
)

// RequestKind distinguishes the two kinds of tracked requests.
type RequestKind uint8

const (
	// Gossip is an announce awaiting acknowledgement.
	Gossip RequestKind = iota
	// Remainder is a fetch of an item's full body.
	Remainder
)

// String ...
func (k RequestKind) String() string {
	switch k {
	case Gossip:
		return "Gossip"
	case Remainder:
		return "Remainder"
	default:
		return "Unknown"
	}
}

// PendingRequest is an outstanding gossip or remainder request. Timeout is
// the duration the deadline was computed from; retries reuse it so a request
// keeps its originating deadline policy across attempts.
type PendingRequest struct {
	Kind     RequestKind
	ItemID   ItemID
	PeerID   uint32
	Deadline time.Time
	Timeout  time.Duration
	Attempt  int
}

type requestKey struct {
	kind RequestKind
	item ItemID
	peer uint32
}

func (k requestKey) String() string {
	return fmt.Sprintf("{%s, %s, %d}", k.kind, k.item.Short(), k.peer)
}

// RequestTracker tracks outstanding requests per (kind, item, peer) and
// enforces their deadlines. It exclusively owns its PendingRequest entries.
type RequestTracker struct {
	sync.Mutex
	pending map[requestKey]*PendingRequest
}

// NewRequestTracker instantiates a RequestTracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		pending: make(map[requestKey]*PendingRequest),
	}
}

// Register creates a PendingRequest with a deadline of now + timeout. It
// returns a DuplicateRequest error if an identical entry already exists and
// has not expired; at most one request per (kind, item, peer) may be
// outstanding at any instant.
func (rt *RequestTracker) Register(
	kind RequestKind,
	item ItemID,
	peer uint32,
	now time.Time,
	timeout time.Duration,
	attempt int,
) (*PendingRequest, error) {
	rt.Lock()
	defer rt.Unlock()

	key := requestKey{kind, item, peer}

	if existing, ok := rt.pending[key]; ok && existing.Deadline.After(now) {
		return nil, NewErr("Register", DuplicateRequest, key.String())
	}

	req := &PendingRequest{
		Kind:     kind,
		ItemID:   item,
		PeerID:   peer,
		Deadline: now.Add(timeout),
		Timeout:  timeout,
		Attempt:  attempt,
	}

	rt.pending[key] = req

	return req, nil
}

// Resolve removes the matching pending request on a valid response. It
// returns a NotFound error if no entry exists; late or duplicate responses
// are expected to hit this and be silently ignored by the caller.
func (rt *RequestTracker) Resolve(kind RequestKind, item ItemID, peer uint32) (*PendingRequest, error) {
	rt.Lock()
	defer rt.Unlock()

	key := requestKey{kind, item, peer}

	req, ok := rt.pending[key]
	if !ok {
		return nil, NewErr("Resolve", NotFound, key.String())
	}

	delete(rt.pending, key)

	return req, nil
}

// PollExpired removes and returns all entries whose deadline has passed.
func (rt *RequestTracker) PollExpired(now time.Time) []*PendingRequest {
	rt.Lock()
	defer rt.Unlock()

	expired := []*PendingRequest{}
	for key, req := range rt.pending {
		if !req.Deadline.After(now) {
			expired = append(expired, req)
			delete(rt.pending, key)
		}
	}

	return expired
}

// PendingRemainders returns a snapshot of outstanding Remainder requests.
func (rt *RequestTracker) PendingRemainders() []*PendingRequest {
	rt.Lock()
	defer rt.Unlock()

	reqs := []*PendingRequest{}
	for _, req := range rt.pending {
		if req.Kind == Remainder {
			reqs = append(reqs, req)
		}
	}

	return reqs
}

// Len returns the number of outstanding requests.
func (rt *RequestTracker) Len() int {
	rt.Lock()
	defer rt.Unlock()

	return len(rt.pending)
}
