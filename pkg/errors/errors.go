// Package errors provides structured error handling for the Loom framework.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by channel operations when every peer endpoint has
// been dropped. It is an expected, ordinary outcome of view teardown and
// callers doing fire-and-forget sends typically ignore it.
var ErrClosed = errors.New("channel closed")

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindBuild indicates a view construction error.
	KindBuild
	// KindChannel indicates a channel delivery error.
	KindChannel
	// KindPatch indicates a patch application error.
	KindPatch
	// KindBackend indicates a rendering-backend error.
	KindBackend
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindChannel:
		return "channel"
	case KindPatch:
		return "patch"
	case KindBackend:
		return "backend"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// LoomError represents a structured error in the Loom framework.
type LoomError struct {
	// Op is the operation that failed (e.g., "view.Build").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *LoomError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *LoomError) Unwrap() error {
	return e.Err
}

// BuildError represents a failure to construct a view subtree.
// The failed subtree is dropped; already-built siblings are unaffected.
type BuildError struct {
	// Tag is the construction tag of the builder that failed.
	Tag string
	// Op is the build step that failed (e.g., "create", "child").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building <%s> failed at %s: %v", e.Tag, e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// CastError indicates a builder's declared concrete node type did not match
// what the backend produced. It is surfaced at build time, never coerced.
type CastError struct {
	// Want is the declared node tag or type.
	Want string
	// Got is what the backend actually produced.
	Got string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cannot cast node %q to %q", e.Got, e.Want)
}

// IndexError indicates a patch referenced an invalid position or key.
// It marks a logic bug upstream and is allowed to be fatal to the calling
// task; it must never be silently clamped.
type IndexError struct {
	// Op is the patch operation (e.g., "RemoveAt", "Move").
	Op string
	// Index is the offending position. -1 when the reference was a key.
	Index int
	// Key is the offending key, if the patch was keyed.
	Key any
	// Len is the collection length at the time of the error.
	Len int
}

func (e *IndexError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("patch %s: no such key %v", e.Op, e.Key)
	}
	return fmt.Sprintf("patch %s: index %d out of range (len %d)", e.Op, e.Index, e.Len)
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler receives errors reported by the Loom framework.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *LoomError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
