package view

import (
	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/loop"
	"github.com/go-loom/loom/pkg/style"
)

// Context carries everything the compiler needs that is not part of a
// builder. It is threaded explicitly through Build and owned by the
// application's top-level component; Loom has no hidden singletons.
type Context struct {
	// Backend materializes nodes on the rendering surface. Required.
	Backend backend.Backend
	// Loop, when set, is the event loop node mutations are serialized
	// onto. When nil, update tasks mutate nodes directly and the backend
	// must tolerate calls from any goroutine.
	Loop *loop.Loop
	// Styles is an optional stylesheet resolved for Builder.Class
	// declarations at build time.
	Styles *style.Sheet
}

// NewContext returns a context for the given backend.
func NewContext(b backend.Backend) *Context {
	return &Context{Backend: b}
}
