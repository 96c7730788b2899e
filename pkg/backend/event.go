package backend

// EventKind enumerates the concrete event shapes the backend interface
// supports. The set is closed and versioned: handler code switches on the
// kind instead of inspecting dynamic payloads, and new shapes are added here
// rather than smuggled through side fields.
type EventKind uint8

const (
	// KindPointer covers press, release, click and move events.
	KindPointer EventKind = iota
	// KindKey covers key down and up events.
	KindKey
	// KindInput covers value changes of editable nodes.
	KindInput
	// KindFocus covers focus and blur.
	KindFocus
	// KindLifecycle covers attach/detach notifications from the surface.
	KindLifecycle
)

func (k EventKind) String() string {
	switch k {
	case KindPointer:
		return "pointer"
	case KindKey:
		return "key"
	case KindInput:
		return "input"
	case KindFocus:
		return "focus"
	case KindLifecycle:
		return "lifecycle"
	default:
		return "unknown"
	}
}

// Event is a raw platform event delivered by a backend. Only the fields
// meaningful for its Kind are set.
type Event struct {
	// Kind selects which shape the event carries.
	Kind EventKind
	// Name is the backend event name the listener was registered for.
	Name string
	// Target is the node the event fired on.
	Target Node

	// X and Y are surface coordinates for pointer events.
	X, Y float64
	// Button is the pointer button index for pointer events.
	Button int

	// Key is the logical key identifier for key events.
	Key string

	// Value is the current content for input events.
	Value string
}
