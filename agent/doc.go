// Package agent contains the graph nodes of the conversation engine: the
// supervisor that routes each step, the weather and news reporters that
// gather data through tools, the chat persona that produces the final
// user-facing answer, and the summarizer that maintains the running
// conversation synopsis.
//
// Every node implements the Node interface and expresses its effect on the
// shared conversation state as a core.Delta; the executor in package graph
// folds those deltas together and drives the walk.
package agent
