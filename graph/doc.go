// Package graph wires agent nodes into a directed conversation graph and
// executes turns against it. A walk starts at the Start sentinel, follows
// the router's per-step decisions and the static edges between workers, and
// terminates at End, at which point the turn's state is checkpointed and the
// final frame is streamed to the caller.
package graph
