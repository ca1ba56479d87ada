// Package server exposes the conversation engine over HTTP. Turns are
// streamed to the caller as newline-delimited JSON frames; the transport
// drains the turn's stream sink concurrently with generation and flushes
// after every frame.
package server
