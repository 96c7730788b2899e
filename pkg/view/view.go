package view

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/channel"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/patch"
)

// View is the live, compiled counterpart of a Builder. It owns a handle to
// exactly one backend node and every subscription task created while wiring
// that node. Dropping the view cancels all of them; a view never outlives
// its node and vice versa.
type View struct {
	ctx  *Context
	node backend.Node
	tag  string

	taskCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	slots    []childSlot
	keyIndex map[string]int
	styles   map[string]string
	// retired holds children detached by Drop. They stay reachable so Wait
	// joins their tasks and SubscriptionCount observes them draining to
	// zero; forgetting them on Drop would let Wait return early.
	retired []*View

	dropped atomic.Bool
	active  atomic.Int32
	wg      sync.WaitGroup
}

// childSlot pairs a live child view with its stable key. Children appended
// statically or by positional patches carry an empty key.
type childSlot struct {
	key  string
	view *View
}

func newView(ctx *Context, node backend.Node, tag string) *View {
	taskCtx, cancel := context.WithCancel(context.Background())
	return &View{
		ctx:     ctx,
		node:    node,
		tag:     tag,
		taskCtx: taskCtx,
		cancel:  cancel,
	}
}

// Node returns the backend node the view owns.
func (v *View) Node() backend.Node {
	return v.node
}

// Tag returns the tag the view was built with.
func (v *View) Tag() string {
	return v.tag
}

// ChildCount returns the number of live child views.
func (v *View) ChildCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.slots)
}

// ChildKeys returns the keys of the live children in order. Children without
// a key contribute an empty string.
func (v *View) ChildKeys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, len(v.slots))
	for i, s := range v.slots {
		keys[i] = s.key
	}
	return keys
}

// ChildAt returns the live child view at position i.
func (v *View) ChildAt(i int) *View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.slots[i].view
}

// SubscriptionCount reports the number of live subscription tasks owned by
// this view and its descendants. It exists as a teardown probe: after Drop
// and Wait it must be zero.
func (v *View) SubscriptionCount() int {
	count := int(v.active.Load())
	for _, c := range v.children() {
		count += c.SubscriptionCount()
	}
	return count
}

// children snapshots every child view still owned by v: live slots plus
// children retired by Drop whose tasks may not have exited yet.
func (v *View) children() []*View {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*View, 0, len(v.slots)+len(v.retired))
	for _, s := range v.slots {
		out = append(out, s.view)
	}
	out = append(out, v.retired...)
	return out
}

// Dropped reports whether the view has been dropped.
func (v *View) Dropped() bool {
	return v.dropped.Load()
}

// Drop cancels every subscription the view owns and recursively drops its
// children. Cancellation is cooperative: tasks observe it at their next
// suspension point and unwind without further node mutation. Use Wait to
// block until they have all exited.
func (v *View) Drop() {
	if !v.dropped.CompareAndSwap(false, true) {
		return
	}
	v.cancel()
	v.mu.Lock()
	slots := v.slots
	v.slots = nil
	v.keyIndex = nil
	for _, s := range slots {
		v.retired = append(v.retired, s.view)
	}
	v.mu.Unlock()
	for _, s := range slots {
		s.view.Drop()
	}
}

// Wait blocks until every subscription task of the view and its descendants
// has observed cancellation and exited. Calling it from the event loop
// goroutine can deadlock while tasks are dispatching; wait from logic
// goroutines only.
func (v *View) Wait() {
	v.wg.Wait()
	for _, c := range v.children() {
		c.Wait()
	}
}

// dispatch runs fn on the context's loop when one is configured, directly
// otherwise. Dropped views swallow the mutation: no task may touch a node
// whose owning view has terminated.
func (v *View) dispatch(fn func()) {
	if v.ctx.Loop != nil {
		v.ctx.Loop.Dispatch(func() {
			if v.dropped.Load() {
				return
			}
			fn()
		})
		return
	}
	if v.dropped.Load() {
		return
	}
	fn()
}

// spawn starts one subscription task tied to the view's lifetime.
func (v *View) spawn(run func(ctx context.Context)) {
	v.wg.Add(1)
	v.active.Add(1)
	go func() {
		defer v.wg.Done()
		defer v.active.Add(-1)
		run(v.taskCtx)
	}()
}

// --- subscription tasks -------------------------------------------------

type (
	attrStream      = *channel.Stream[string]
	boolStream      = *channel.Stream[bool]
	eventSink       = channel.Sink[backend.Event]
	listPatchStream = *channel.Stream[patch.ListPatch[*Builder]]
	keyPatchStream  = *channel.Stream[patch.KeyPatch[string, *Builder]]
)

func (v *View) watchAttr(name string, st attrStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			val, err := st.Next(ctx)
			if err != nil {
				return
			}
			v.dispatch(func() { v.node.SetAttribute(name, val) })
		}
	})
}

func (v *View) watchBoolAttr(name string, st boolStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			val, err := st.Next(ctx)
			if err != nil {
				return
			}
			v.dispatch(func() { v.setBoolAttr(name, val) })
		}
	})
}

func (v *View) watchStyle(name string, st attrStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			val, err := st.Next(ctx)
			if err != nil {
				return
			}
			v.dispatch(func() { v.setStyle(name, val) })
		}
	})
}

func (v *View) watchText(st attrStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			val, err := st.Next(ctx)
			if err != nil {
				return
			}
			v.dispatch(func() { v.node.SetText(val) })
		}
	})
}

// watchEvent registers a backend listener and forwards raw events into the
// bound sink. Delivery must never suspend the platform callback path, so it
// uses TrySend: a full queue drops the event in favor of forward progress.
func (v *View) watchEvent(name string, sink eventSink) {
	// The listener attaches before Build returns so no event fired after
	// construction can be missed.
	es := v.node.Listen(name)
	v.spawn(func(ctx context.Context) {
		defer es.Cancel()
		for {
			ev, err := es.Next(ctx)
			if err != nil {
				return
			}
			// ErrClosed here means the handler side is gone; keep
			// draining so the listener stays cheap, callers tear the
			// view down when they are done with it.
			_, _ = sink.TrySend(ev)
		}
	})
}

// applySync applies a compiled patch, on the loop goroutine when one is
// configured, and waits for the outcome so the task never pulls the next
// patch before the previous one has settled. applied is false when the view
// was dropped or the loop stopped before the patch could run.
func (v *View) applySync(apply func() error) (applied bool, err error) {
	run := func() {
		if v.dropped.Load() {
			return
		}
		applied = true
		err = apply()
	}
	if v.ctx.Loop != nil {
		if !v.ctx.Loop.DispatchAndWait(run) {
			return false, nil
		}
		return applied, err
	}
	run()
	return applied, err
}

// watchChildPatches applies arriving list patches to the live child
// collection. Builders are compiled before insertion; an invalid index is a
// logic bug upstream, reported and fatal to this task before any later
// patch can apply.
func (v *View) watchChildPatches(st listPatchStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			p, err := st.Next(ctx)
			if err != nil {
				return
			}
			vp, err := patch.MapErr(p, func(b *Builder) (*View, error) {
				return Build(v.ctx, b)
			})
			if err != nil {
				// The subtree failed to build; the patch is aborted and
				// the collection left untouched. Siblings are unaffected.
				errors.Report(&errors.LoomError{Op: "view.childPatch", Kind: errors.KindBuild, Err: err})
				continue
			}
			applied, aerr := v.applySync(func() error { return v.applyListPatch(vp) })
			if !applied {
				// Dropped view or stopped loop: the freshly built views
				// will never attach, release their subscriptions.
				for _, cv := range vp.Values {
					cv.Drop()
				}
				return
			}
			if aerr != nil {
				errors.Report(&errors.LoomError{Op: "view.childPatch", Kind: errors.KindPatch, Err: aerr})
				return
			}
		}
	})
}

func (v *View) watchKeyedChildPatches(st keyPatchStream) {
	v.spawn(func(ctx context.Context) {
		defer st.Cancel()
		for {
			p, err := st.Next(ctx)
			if err != nil {
				return
			}
			var built *View
			if p.Op == patch.KeyInsert || p.Op == patch.KeyReplace {
				cv, err := Build(v.ctx, p.Value)
				if err != nil {
					errors.Report(&errors.LoomError{Op: "view.keyedChildPatch", Kind: errors.KindBuild, Err: err})
					continue
				}
				built = cv
			}
			vp := patch.MapKey(p, func(*Builder) *View { return built })
			applied, aerr := v.applySync(func() error { return v.applyKeyPatch(vp) })
			if !applied {
				if built != nil {
					built.Drop()
				}
				return
			}
			if aerr != nil {
				errors.Report(&errors.LoomError{Op: "view.keyedChildPatch", Kind: errors.KindPatch, Err: aerr})
				return
			}
		}
	})
}

// --- node-side mutation helpers (run on the loop goroutine) --------------

func (v *View) setBoolAttr(name string, val bool) {
	if val {
		v.node.SetAttribute(name, "")
	} else {
		v.node.RemoveAttribute(name)
	}
}

func (v *View) setStyle(name, val string) {
	v.mu.Lock()
	if v.styles == nil {
		v.styles = make(map[string]string)
	}
	v.styles[name] = val
	decl := serializeStyles(v.styles)
	v.mu.Unlock()
	v.node.SetAttribute("style", decl)
}

func serializeStyles(styles map[string]string) string {
	names := make([]string, 0, len(styles))
	for name := range styles {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(styles[name])
	}
	return sb.String()
}

// appendSlot links a freshly built child at the end of the live list.
// Used for static children during the build walk.
func (v *View) appendSlot(key string, cv *View) {
	v.mu.Lock()
	v.slots = append(v.slots, childSlot{key: key, view: cv})
	if key != "" {
		if v.keyIndex == nil {
			v.keyIndex = make(map[string]int)
		}
		v.keyIndex[key] = len(v.slots) - 1
	}
	v.mu.Unlock()
	v.node.AppendChild(cv.node)
}

// applyListPatch mutates the live child collection in place. Removed views
// are dropped after they are detached from the node.
func (v *View) applyListPatch(p patch.ListPatch[*View]) error {
	v.mu.Lock()
	removed, err := v.applyListPatchLocked(p)
	v.mu.Unlock()
	if err != nil {
		// The patch carried freshly built views that will never be
		// attached; release their subscriptions.
		for _, cv := range p.Values {
			cv.Drop()
		}
		return err
	}
	for _, cv := range removed {
		cv.Drop()
	}
	return nil
}

func (v *View) applyListPatchLocked(p patch.ListPatch[*View]) ([]*View, error) {
	n := len(v.slots)
	switch p.Op {
	case patch.OpInsert:
		if len(p.Values) == 0 {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		if p.Index < 0 || p.Index > n {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		v.insertSlotLocked(p.Index, "", p.Values[0])
		return nil, nil

	case patch.OpRemoveAt:
		if p.Index < 0 || p.Index >= n {
			return nil, &errors.IndexError{Op: "RemoveAt", Index: p.Index, Len: n}
		}
		return []*View{v.removeSlotLocked(p.Index)}, nil

	case patch.OpMove:
		if p.From < 0 || p.From >= n {
			return nil, &errors.IndexError{Op: "Move", Index: p.From, Len: n}
		}
		if p.To < 0 || p.To >= n {
			return nil, &errors.IndexError{Op: "Move", Index: p.To, Len: n}
		}
		v.moveSlotLocked(p.From, p.To)
		return nil, nil

	case patch.OpReplaceAt:
		if len(p.Values) == 0 {
			return nil, &errors.IndexError{Op: "ReplaceAt", Index: p.Index, Len: n}
		}
		if p.Index < 0 || p.Index >= n {
			return nil, &errors.IndexError{Op: "ReplaceAt", Index: p.Index, Len: n}
		}
		old := v.removeSlotLocked(p.Index)
		v.insertSlotLocked(p.Index, "", p.Values[0])
		return []*View{old}, nil

	case patch.OpSplice:
		start, end := p.Start, p.End
		if start == -1 && end == -1 { // Push
			start, end = n, n
		} else if start == -2 && end == -1 { // Pop
			if n == 0 {
				start, end = 0, 0
			} else {
				start, end = n-1, n
			}
		}
		if start < 0 || end < start || end > n {
			return nil, &errors.IndexError{Op: "Splice", Index: start, Len: n}
		}
		removed := make([]*View, 0, end-start)
		for i := end - 1; i >= start; i-- {
			removed = append(removed, v.removeSlotLocked(i))
		}
		for i, cv := range p.Values {
			v.insertSlotLocked(start+i, "", cv)
		}
		return removed, nil

	case patch.OpClear:
		removed := make([]*View, 0, n)
		for i := n - 1; i >= 0; i-- {
			removed = append(removed, v.removeSlotLocked(i))
		}
		return removed, nil

	default:
		return nil, &errors.IndexError{Op: "invalid", Index: -1, Len: n}
	}
}

// applyKeyPatch resolves keys through the key-to-position index and applies
// the positional equivalent.
func (v *View) applyKeyPatch(p patch.KeyPatch[string, *View]) error {
	v.mu.Lock()
	removed, err := v.applyKeyPatchLocked(p)
	v.mu.Unlock()
	if err != nil {
		if p.Value != nil {
			p.Value.Drop()
		}
		return err
	}
	for _, cv := range removed {
		cv.Drop()
	}
	return nil
}

func (v *View) applyKeyPatchLocked(p patch.KeyPatch[string, *View]) ([]*View, error) {
	n := len(v.slots)
	switch p.Op {
	case patch.KeyInsert:
		if cur, ok := v.keyIndex[p.Key]; ok {
			// Same logical item: replace in place, then move.
			if p.Index < 0 || p.Index >= n {
				return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
			}
			old := v.slots[cur].view
			v.node.RemoveChild(old.node)
			v.slots[cur].view = p.Value
			v.node.InsertChild(cur, p.Value.node)
			if p.Index != cur {
				v.moveSlotLocked(cur, p.Index)
			}
			return []*View{old}, nil
		}
		if p.Index < 0 || p.Index > n {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		v.insertSlotLocked(p.Index, p.Key, p.Value)
		return nil, nil

	case patch.KeyRemove:
		i, ok := v.keyIndex[p.Key]
		if !ok {
			// Removing an absent key is a no-op; this is what keeps
			// remove/insert pairs idempotent under reordering.
			return nil, nil
		}
		return []*View{v.removeSlotLocked(i)}, nil

	case patch.KeyMove:
		i, ok := v.keyIndex[p.Key]
		if !ok {
			return nil, &errors.IndexError{Op: "Move", Index: -1, Key: p.Key, Len: n}
		}
		if p.To < 0 || p.To >= n {
			return nil, &errors.IndexError{Op: "Move", Index: p.To, Len: n}
		}
		v.moveSlotLocked(i, p.To)
		return nil, nil

	case patch.KeyReplace:
		i, ok := v.keyIndex[p.Key]
		if !ok {
			return nil, &errors.IndexError{Op: "Replace", Index: -1, Key: p.Key, Len: n}
		}
		old := v.slots[i].view
		v.node.RemoveChild(old.node)
		v.slots[i].view = p.Value
		v.node.InsertChild(i, p.Value.node)
		return []*View{old}, nil

	case patch.KeyClear:
		removed := make([]*View, 0, n)
		for i := n - 1; i >= 0; i-- {
			removed = append(removed, v.removeSlotLocked(i))
		}
		return removed, nil

	default:
		return nil, &errors.IndexError{Op: "invalid", Index: -1, Len: n}
	}
}

// insertSlotLocked inserts the child at position i and reindexes keys for
// the shifted tail.
func (v *View) insertSlotLocked(i int, key string, cv *View) {
	v.slots = append(v.slots, childSlot{})
	copy(v.slots[i+1:], v.slots[i:])
	v.slots[i] = childSlot{key: key, view: cv}
	v.node.InsertChild(i, cv.node)
	v.reindexLocked(i)
}

// removeSlotLocked detaches and returns the child at position i. The caller
// drops the returned view.
func (v *View) removeSlotLocked(i int) *View {
	slot := v.slots[i]
	v.slots = append(v.slots[:i], v.slots[i+1:]...)
	if slot.key != "" {
		delete(v.keyIndex, slot.key)
	}
	v.node.RemoveChild(slot.view.node)
	v.reindexLocked(i)
	return slot.view
}

func (v *View) moveSlotLocked(from, to int) {
	slot := v.slots[from]
	v.slots = append(v.slots[:from], v.slots[from+1:]...)
	v.slots = append(v.slots, childSlot{})
	copy(v.slots[to+1:], v.slots[to:])
	v.slots[to] = slot
	v.node.RemoveChild(slot.view.node)
	v.node.InsertChild(to, slot.view.node)
	lo := from
	if to < lo {
		lo = to
	}
	v.reindexLocked(lo)
}

// reindexLocked refreshes the key-to-position index from position i to the
// end. Amortized O(1) for tail operations, O(n) for arbitrary moves, which
// is acceptable for UI child counts.
func (v *View) reindexLocked(i int) {
	for ; i < len(v.slots); i++ {
		if key := v.slots[i].key; key != "" {
			if v.keyIndex == nil {
				v.keyIndex = make(map[string]int)
			}
			v.keyIndex[key] = i
		}
	}
}
