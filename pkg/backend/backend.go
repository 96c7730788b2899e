// Package backend defines the capability interface Loom requires from a
// concrete rendering surface. The compiler consumes this interface and
// nothing else: swapping browser-style DOM nodes for a native widget tree or
// a server-side string renderer means implementing these two interfaces.
package backend

import (
	"github.com/go-loom/loom/pkg/channel"
)

// TextTag is the reserved tag identifying a text node. Backends create text
// nodes for it and render their text content verbatim.
const TextTag = "#text"

// Backend creates nodes on a concrete rendering surface.
type Backend interface {
	// CreateNode allocates a node for the given tag. It returns an error
	// for invalid tags or on resource exhaustion; the caller aborts the
	// affected subtree.
	CreateNode(tag string) (Node, error)
}

// Node is a handle to one live node on the rendering surface. All mutation
// of a node happens through this interface. Implementations must be safe to
// call from the application's event loop goroutine; Loom serializes
// mutations onto that goroutine when a loop is configured.
type Node interface {
	// Tag returns the tag the node was created with.
	Tag() string
	// SetAttribute sets a string attribute.
	SetAttribute(name, value string)
	// RemoveAttribute removes an attribute if present.
	RemoveAttribute(name string)
	// SetText replaces the node's text content.
	SetText(text string)
	// AppendChild links child as the last child of this node.
	AppendChild(child Node)
	// InsertChild links child at position i, shifting later children right.
	InsertChild(i int, child Node)
	// RemoveChild unlinks child from this node.
	RemoveChild(child Node)
	// Listen subscribes to the named event. Each call derives an
	// independent stream; cancelling it detaches the listener.
	Listen(event string) *channel.Stream[Event]
}
