package authclient

import (
	"context"
	"sync"
)

// State of a request tree's credential.
type State int

const (
	// StateUnestablished: no credential inherited; a handshake is needed.
	StateUnestablished State = iota
	// StateUnverified: a credential of unknown freshness was inherited,
	// e.g. from a prior page load, and must be checked before reuse.
	StateUnverified
	// StateVerified: the stored credential is attached to every further
	// call in the tree with no additional round-trips.
	StateVerified
)

// Tree carries the memoized credential for one request tree: one inbound
// end-user request and every outbound call it triggers. It is threaded
// through call context, never stored process-wide, so concurrent trees
// cannot race on each other's handshake progress.
type Tree struct {
	mu         sync.Mutex
	state      State
	credential string
}

// NewTree starts a tree, optionally seeded with an inherited wire
// credential ("{Type} {token}").
func NewTree(inherited string) *Tree {
	t := &Tree{}
	if inherited != "" {
		t.state = StateUnverified
		t.credential = inherited
	}
	return t
}

// State returns the current state, for observability and tests.
func (t *Tree) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Credential returns the memoized wire credential, empty until verified.
func (t *Tree) Credential() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.credential
}

type treeContextKey struct{}

// WithTree attaches the tree to the context of every call in its request tree.
func WithTree(ctx context.Context, tree *Tree) context.Context {
	return context.WithValue(ctx, treeContextKey{}, tree)
}

// TreeFromContext extracts the request tree, if one was attached.
func TreeFromContext(ctx context.Context) (*Tree, bool) {
	if ctx == nil {
		return nil, false
	}
	tree, ok := ctx.Value(treeContextKey{}).(*Tree)
	return tree, ok && tree != nil
}
