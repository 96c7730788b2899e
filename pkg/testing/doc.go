// Package testing provides isolated view testing without a real rendering
// surface. It pairs a recording backend with a tester that builds views,
// fires synthetic events, and settles on asynchronous stream updates.
//
// Import it with an alias to avoid shadowing the standard library:
//
//	import loomtest "github.com/go-loom/loom/pkg/testing"
//
// A typical test builds a view through the tester, sends values into its
// bound streams, and settles on the expected node state:
//
//	vt := loomtest.NewViewTester(t, view.El("label").TextStream(st))
//	_ = sink.Send(ctx, "hello")
//	vt.RequireSettle(t, func() bool { return vt.Text() == "hello" })
package testing
