package testing

import (
	"sync"

	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/backend/ssr"
)

// Backend is a recording test backend. Nodes are real in-memory nodes from
// the ssr backend, so built trees can be serialized with ssr.Render; on top
// of that the backend counts creations and supports failure injection for
// build-error paths.
type Backend struct {
	inner *ssr.Backend

	mu      sync.Mutex
	created []string
	fail    map[string]error
	alias   map[string]string
}

// NewBackend returns an empty recording backend.
func NewBackend() *Backend {
	return &Backend{
		inner: ssr.New(),
		fail:  make(map[string]error),
		alias: make(map[string]string),
	}
}

// FailTag makes CreateNode fail with err for the given tag. It exercises
// build-abort paths without a broken platform.
func (b *Backend) FailTag(tag string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[tag] = err
}

// AliasTag makes nodes created with the given tag report a different tag,
// simulating a platform that resolves a requested node type to something
// else. Aliased nodes exist only to trigger cast failures; they cannot be
// linked as children.
func (b *Backend) AliasTag(tag, reported string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alias[tag] = reported
}

// Created returns the tags of every node created so far, in creation order.
func (b *Backend) Created() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.created))
	copy(out, b.created)
	return out
}

// CreateCount returns how many nodes have been created.
func (b *Backend) CreateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

// CreateNode implements backend.Backend.
func (b *Backend) CreateNode(tag string) (backend.Node, error) {
	b.mu.Lock()
	injected := b.fail[tag]
	reported, aliased := b.alias[tag]
	b.mu.Unlock()
	if injected != nil {
		return nil, injected
	}
	n, err := b.inner.CreateNode(tag)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.created = append(b.created, tag)
	b.mu.Unlock()
	if aliased {
		return &aliasNode{Node: n.(*ssr.Node), tag: reported}, nil
	}
	return n, nil
}

type aliasNode struct {
	*ssr.Node
	tag string
}

func (a *aliasNode) Tag() string { return a.tag }
