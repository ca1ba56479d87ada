// Package stream defines the per-turn sink that carries token deltas and
// the final structured message from the executor to the transport layer.
// Generation and transport are decoupled through an explicit channel: the
// executor writes frames, the HTTP layer drains them concurrently.
package stream
