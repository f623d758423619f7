package gossip

import "fmt"

// ErrType classifies the errors produced by the gossip engine.
type ErrType uint32

const (
	// DuplicateRequest indicates that an identical request is already
	// outstanding. Callers must skip re-registration.
	DuplicateRequest ErrType = iota
	// NotFound indicates that no matching entry exists. Late or duplicate
	// responses produce NotFound and are silently ignored.
	NotFound
	// AlreadyFinished indicates that the item's gossip lifecycle has ended.
	AlreadyFinished
	// NoPeers indicates that no suitable peer was available.
	NoPeers
	// StoreFailure indicates that the storage collaborator rejected a payload.
	StoreFailure
)

// Err is the error type produced by the gossip engine. None of these
// conditions are fatal to the node.
type Err struct {
	op      string
	errType ErrType
	key     string
}

// NewErr instantiates an Err.
func NewErr(op string, errType ErrType, key string) Err {
	return Err{
		op:      op,
		errType: errType,
		key:     key,
	}
}

// Error implements the error interface.
func (e Err) Error() string {
	m := ""
	switch e.errType {
	case DuplicateRequest:
		m = "Duplicate Request"
	case NotFound:
		m = "Not Found"
	case AlreadyFinished:
		m = "Already Finished"
	case NoPeers:
		m = "No Peers"
	case StoreFailure:
		m = "Store Failure"
	}

	return fmt.Sprintf("%s, %s, %s", e.op, e.key, m)
}

// Is checks that an error is of type Err and that its code matches the
// provided ErrType.
func Is(err error, t ErrType) bool {
	gossipErr, ok := err.(Err)
	return ok && gossipErr.errType == t
}
