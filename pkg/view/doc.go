// Package view turns declarative builders into live views.
//
// A Builder is a lazy description of one node: its tag, attribute and text
// bindings (static values, streams, or both), event bindings, and children.
// It has no behavior until compiled. Build walks a builder depth-first,
// allocates concrete nodes through the backend capability interface,
// subscribes an update task to every bound stream and wires every event
// listener into its sink. The resulting View owns the node and every
// subscription created while wiring it: dropping the View cancels them all.
//
// There is no diffing. Collections of children change only through patch
// streams, applied incrementally to the live child list.
package view
