package view

import (
	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/channel"
	"github.com/go-loom/loom/pkg/patch"
)

// Builder is a lazy, composable description of one node. Builders are
// immutable by convention: the With-style methods mutate and return the same
// builder for chaining, and a builder describes exactly one node, so it must
// not be reused after it has been built or appended elsewhere.
type Builder struct {
	tag     string
	castTag string
	classes []string

	attribs     []attribBinding
	boolAttribs []boolAttribBinding
	styles      []styleBinding
	texts       []textBinding
	events      []eventBinding
	children    []childEntry
	post        []func(backend.Node)
}

type attribBinding struct {
	name    string
	initial *string
	stream  *channel.Stream[string]
}

type boolAttribBinding struct {
	name    string
	initial *bool
	stream  *channel.Stream[bool]
}

type styleBinding struct {
	name    string
	initial *string
	stream  *channel.Stream[string]
}

type textBinding struct {
	initial *string
	stream  *channel.Stream[string]
}

type eventBinding struct {
	name string
	sink channel.Sink[backend.Event]
}

type childKind uint8

const (
	childStatic childKind = iota
	childPatches
	childKeyedPatches
)

type childEntry struct {
	kind    childKind
	builder *Builder
	patches *channel.Stream[patch.ListPatch[*Builder]]
	keyed   *channel.Stream[patch.KeyPatch[string, *Builder]]
}

// El returns a builder for an element with the given tag.
func El(tag string) *Builder {
	return &Builder{tag: tag}
}

// Text returns a builder for a text node with the given content.
func Text(s string) *Builder {
	return El(backend.TextTag).SetText(s)
}

// TextFrom returns a builder for a text node whose content starts at initial
// and follows st.
func TextFrom(initial string, st *channel.Stream[string]) *Builder {
	return El(backend.TextTag).TextNowLater(initial, st)
}

// Cast declares the concrete node tag the builder expects from the backend.
// Building fails with *errors.CastError if the backend produces anything
// else.
func (b *Builder) Cast(tag string) *Builder {
	b.castTag = tag
	return b
}

// Class resolves the named stylesheet rules from the build context's sheet
// and applies them before any builder-declared attribute or style.
func (b *Builder) Class(names ...string) *Builder {
	b.classes = append(b.classes, names...)
	return b
}

// Attrib sets a static attribute.
func (b *Builder) Attrib(name, value string) *Builder {
	v := value
	b.attribs = append(b.attribs, attribBinding{name: name, initial: &v})
	return b
}

// AttribStream binds an attribute to a stream. The attribute has no value
// until the stream emits.
func (b *Builder) AttribStream(name string, st *channel.Stream[string]) *Builder {
	b.attribs = append(b.attribs, attribBinding{name: name, stream: st})
	return b
}

// AttribNowLater binds an attribute to an initial value applied at build
// time and a stream of later values: now + later semantics.
func (b *Builder) AttribNowLater(name, initial string, st *channel.Stream[string]) *Builder {
	v := initial
	b.attribs = append(b.attribs, attribBinding{name: name, initial: &v, stream: st})
	return b
}

// BoolAttrib sets a static boolean attribute; true renders the attribute
// present and empty, false removes it.
func (b *Builder) BoolAttrib(name string, value bool) *Builder {
	v := value
	b.boolAttribs = append(b.boolAttribs, boolAttribBinding{name: name, initial: &v})
	return b
}

// BoolAttribStream binds a boolean attribute to a stream.
func (b *Builder) BoolAttribStream(name string, st *channel.Stream[bool]) *Builder {
	b.boolAttribs = append(b.boolAttribs, boolAttribBinding{name: name, stream: st})
	return b
}

// BoolAttribNowLater binds a boolean attribute to an initial value and a
// stream of later values.
func (b *Builder) BoolAttribNowLater(name string, initial bool, st *channel.Stream[bool]) *Builder {
	v := initial
	b.boolAttribs = append(b.boolAttribs, boolAttribBinding{name: name, initial: &v, stream: st})
	return b
}

// Style sets a static style declaration. Styles are maintained as a set and
// serialized into the node's style attribute.
func (b *Builder) Style(name, value string) *Builder {
	v := value
	b.styles = append(b.styles, styleBinding{name: name, initial: &v})
	return b
}

// StyleStream binds a style declaration to a stream.
func (b *Builder) StyleStream(name string, st *channel.Stream[string]) *Builder {
	b.styles = append(b.styles, styleBinding{name: name, stream: st})
	return b
}

// SetText sets the node's initial text content.
func (b *Builder) SetText(s string) *Builder {
	v := s
	b.texts = append(b.texts, textBinding{initial: &v})
	return b
}

// TextStream binds the node's text content to a stream.
func (b *Builder) TextStream(st *channel.Stream[string]) *Builder {
	b.texts = append(b.texts, textBinding{stream: st})
	return b
}

// TextNowLater binds the node's text to an initial value and a stream of
// later values.
func (b *Builder) TextNowLater(initial string, st *channel.Stream[string]) *Builder {
	v := initial
	b.texts = append(b.texts, textBinding{initial: &v, stream: st})
	return b
}

// On binds the named event to a sink. Raw platform events are forwarded into
// the sink without blocking the event loop; adapt the payload type with
// channel.ContraMap at the call site.
func (b *Builder) On(event string, sink channel.Sink[backend.Event]) *Builder {
	b.events = append(b.events, eventBinding{name: event, sink: sink})
	return b
}

// Append adds static children in declaration order.
func (b *Builder) Append(children ...*Builder) *Builder {
	for _, c := range children {
		b.children = append(b.children, childEntry{kind: childStatic, builder: c})
	}
	return b
}

// MaybeAppend adds a child if it is non-nil.
func (b *Builder) MaybeAppend(c *Builder) *Builder {
	if c != nil {
		b.Append(c)
	}
	return b
}

// PatchChildren binds the child list to a stream of list patches. Each
// arriving patch is applied to the live child collection: builders carried
// by the patch are compiled before insertion, and removed views are dropped,
// cancelling their subscriptions. Indices address the node's whole child
// list, including previously appended static children.
func (b *Builder) PatchChildren(st *channel.Stream[patch.ListPatch[*Builder]]) *Builder {
	b.children = append(b.children, childEntry{kind: childPatches, patches: st})
	return b
}

// PatchChildrenKeyed binds the child list to a stream of keyed patches.
// Keys are stable application-chosen identifiers resolved through a
// key-to-position index maintained on the live collection.
func (b *Builder) PatchChildrenKeyed(st *channel.Stream[patch.KeyPatch[string, *Builder]]) *Builder {
	b.children = append(b.children, childEntry{kind: childKeyedPatches, keyed: st})
	return b
}

// PostBuild registers a one-shot hook invoked with the freshly created node
// after its own wiring is complete but before it is linked into any parent.
func (b *Builder) PostBuild(fn func(backend.Node)) *Builder {
	if fn != nil {
		b.post = append(b.post, fn)
	}
	return b
}

// Capture sends the freshly created node into sink once it is built. It is
// shorthand for a PostBuild hook; the send is best-effort since the receiver
// may already be gone.
func (b *Builder) Capture(sink channel.Sink[backend.Node]) *Builder {
	return b.PostBuild(func(n backend.Node) {
		_, _ = sink.TrySend(n)
	})
}
