package view

import (
	"fmt"
	"sort"

	"github.com/go-loom/loom/pkg/errors"
)

// Build compiles a builder into a live view against the given context.
//
// The walk is depth-first: the node is created first, then every attribute
// binding is applied (initial value immediately, update task subscribed for
// streams), event listeners are wired, and children are built and appended
// in declaration order. Attribute subscriptions start before the caller
// appends the new node to any parent, so a streamed value that fires early
// is still applied: value correctness takes priority over attachment order.
//
// On failure the partially constructed subtree is dropped, cancelling every
// subscription it created; already-built siblings are unaffected. Build
// returns *errors.BuildError for construction failures and
// *errors.CastError for a declared node type the backend did not produce.
func Build(ctx *Context, b *Builder) (*View, error) {
	if ctx == nil || ctx.Backend == nil {
		return nil, &errors.BuildError{Tag: tagOf(b), Op: "context", Err: fmt.Errorf("no backend configured")}
	}
	if b == nil {
		return nil, &errors.BuildError{Op: "builder", Err: fmt.Errorf("nil builder")}
	}

	node, err := ctx.Backend.CreateNode(b.tag)
	if err != nil {
		return nil, &errors.BuildError{Tag: b.tag, Op: "create", Err: err}
	}
	if b.castTag != "" && node.Tag() != b.castTag {
		return nil, &errors.CastError{Want: b.castTag, Got: node.Tag()}
	}

	v := newView(ctx, node, b.tag)
	ok := false
	defer func() {
		if !ok {
			v.Drop()
		}
	}()

	// Stylesheet classes resolve first so explicit declarations win.
	for _, class := range b.classes {
		rule, found := ctx.Styles.Rule(class)
		if !found {
			return nil, &errors.BuildError{Tag: b.tag, Op: "class", Err: fmt.Errorf("unknown class %q", class)}
		}
		for _, name := range sortedKeys(rule.Attributes) {
			node.SetAttribute(name, rule.Attributes[name])
		}
		for _, name := range sortedKeys(rule.Styles) {
			v.setStyle(name, rule.Styles[name])
		}
	}

	for _, ab := range b.attribs {
		if ab.initial != nil {
			node.SetAttribute(ab.name, *ab.initial)
		}
		if ab.stream != nil {
			v.watchAttr(ab.name, ab.stream)
		}
	}
	for _, bb := range b.boolAttribs {
		if bb.initial != nil {
			v.setBoolAttr(bb.name, *bb.initial)
		}
		if bb.stream != nil {
			v.watchBoolAttr(bb.name, bb.stream)
		}
	}
	for _, sb := range b.styles {
		if sb.initial != nil {
			v.setStyle(sb.name, *sb.initial)
		}
		if sb.stream != nil {
			v.watchStyle(sb.name, sb.stream)
		}
	}
	for _, tb := range b.texts {
		if tb.initial != nil {
			node.SetText(*tb.initial)
		}
		if tb.stream != nil {
			v.watchText(tb.stream)
		}
	}
	for _, eb := range b.events {
		v.watchEvent(eb.name, eb.sink)
	}

	for _, ce := range b.children {
		switch ce.kind {
		case childStatic:
			cv, err := Build(ctx, ce.builder)
			if err != nil {
				return nil, err
			}
			v.appendSlot("", cv)
		case childPatches:
			v.watchChildPatches(ce.patches)
		case childKeyedPatches:
			v.watchKeyedChildPatches(ce.keyed)
		}
	}

	// Post-build hooks see the wired node before it is linked into any
	// parent.
	for _, fn := range b.post {
		fn(node)
	}

	ok = true
	return v, nil
}

func tagOf(b *Builder) string {
	if b == nil {
		return ""
	}
	return b.tag
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
