// Package core defines the shared conversation state passed between graph
// nodes, the tagged delta/reducer machinery used to merge node output, and
// the error taxonomy of the orchestration engine. Everything here is pure
// data plus pure functions; nodes never mutate a State in place.
package core
