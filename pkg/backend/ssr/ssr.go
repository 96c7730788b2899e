// Package ssr is a rendering backend that materializes nodes as an
// in-memory tree and serializes them to markup text. It implements the full
// backend capability interface, so anything buildable against a real surface
// is buildable here; the result is read with Render. Server-side rendering
// and golden-file tests are its intended uses.
package ssr

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/channel"
)

// Backend creates in-memory nodes.
type Backend struct{}

// New returns an SSR backend.
func New() *Backend {
	return &Backend{}
}

// CreateNode allocates an in-memory node. Tags must be non-empty and free of
// whitespace and angle brackets; anything else is refused so malformed
// builders fail at build time instead of producing broken markup.
func (b *Backend) CreateNode(tag string) (backend.Node, error) {
	if tag == "" || strings.ContainsAny(tag, " \t\n<>") {
		return nil, fmt.Errorf("invalid tag %q", tag)
	}
	return &Node{
		id:  uuid.New(),
		tag: tag,
	}, nil
}

// Node is one in-memory node. All methods are safe for concurrent use; the
// SSR tree has no thread-affine surface underneath it.
type Node struct {
	id  uuid.UUID
	tag string

	mu        sync.Mutex
	attrs     []attr
	text      string
	children  []*Node
	listeners map[string][]channel.Sink[backend.Event]
}

type attr struct {
	name  string
	value string
}

// ID returns the node's unique identity.
func (n *Node) ID() uuid.UUID { return n.id }

// Tag returns the tag the node was created with.
func (n *Node) Tag() string { return n.tag }

// SetAttribute sets or replaces an attribute, preserving first-set order.
func (n *Node) SetAttribute(name, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.attrs {
		if n.attrs[i].name == name {
			n.attrs[i].value = value
			return
		}
	}
	n.attrs = append(n.attrs, attr{name: name, value: value})
}

// RemoveAttribute removes an attribute if present.
func (n *Node) RemoveAttribute(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.attrs {
		if n.attrs[i].name == name {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// Attribute returns the current value of an attribute.
func (n *Node) Attribute(name string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.attrs {
		if a.name == name {
			return a.value, true
		}
	}
	return "", false
}

// SetText replaces the node's text content.
func (n *Node) SetText(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.text = text
}

// Text returns the node's text content.
func (n *Node) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

// AppendChild links child as the last child.
func (n *Node) AppendChild(child backend.Node) {
	c := child.(*Node)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, c)
}

// InsertChild links child at position i.
func (n *Node) InsertChild(i int, child backend.Node) {
	c := child.(*Node)
	n.mu.Lock()
	defer n.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
}

// RemoveChild unlinks child.
func (n *Node) RemoveChild(child backend.Node) {
	c := child.(*Node)
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.children {
		if existing == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// ChildCount returns the number of linked children.
func (n *Node) ChildCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.children)
}

// Listen derives a stream of events fired on this node under the given
// name. After the stream is cancelled the listener is pruned at the next
// Fire of that event.
func (n *Node) Listen(event string) *channel.Stream[backend.Event] {
	sink, stream := channel.New[backend.Event](channel.Buffered(0))
	n.mu.Lock()
	if n.listeners == nil {
		n.listeners = make(map[string][]channel.Sink[backend.Event])
	}
	n.listeners[event] = append(n.listeners[event], sink)
	n.mu.Unlock()
	return stream
}

// Fire synthesizes an event on this node, delivering it to every listener
// without blocking. It fills in the event's Name and Target. Listeners whose
// stream has been cancelled are pruned on the way, so abandoned streams do
// not accumulate on long-lived nodes.
func (n *Node) Fire(event string, ev backend.Event) {
	ev.Name = event
	ev.Target = n
	n.mu.Lock()
	sinks := make([]channel.Sink[backend.Event], len(n.listeners[event]))
	copy(sinks, n.listeners[event])
	n.mu.Unlock()
	var dead []channel.Sink[backend.Event]
	for _, s := range sinks {
		if _, err := s.TrySend(ev); err != nil {
			dead = append(dead, s)
		}
	}
	if len(dead) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	live := n.listeners[event][:0]
	for _, s := range n.listeners[event] {
		gone := false
		for _, d := range dead {
			if s == d {
				gone = true
				break
			}
		}
		if !gone {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		delete(n.listeners, event)
	} else {
		n.listeners[event] = live
	}
}

// ListenerCount returns the number of attached listeners for event.
func (n *Node) ListenerCount(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[event])
}

// Render serializes the node tree to markup. Attributes render in first-set
// order; text precedes children. Text nodes render their escaped content
// only.
func Render(node backend.Node) string {
	var sb strings.Builder
	render(&sb, node.(*Node))
	return sb.String()
}

func render(sb *strings.Builder, n *Node) {
	n.mu.Lock()
	tag := n.tag
	text := n.text
	attrs := make([]attr, len(n.attrs))
	copy(attrs, n.attrs)
	children := make([]*Node, len(n.children))
	copy(children, n.children)
	n.mu.Unlock()

	if tag == backend.TextTag {
		sb.WriteString(html.EscapeString(text))
		return
	}

	sb.WriteString("<")
	sb.WriteString(tag)
	for _, a := range attrs {
		sb.WriteString(" ")
		sb.WriteString(a.name)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.value))
		sb.WriteString(`"`)
	}
	if text == "" && len(children) == 0 {
		sb.WriteString(" />")
		return
	}
	sb.WriteString(">")
	if text != "" {
		sb.WriteString(html.EscapeString(text))
	}
	for _, c := range children {
		render(sb, c)
	}
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteString(">")
}
