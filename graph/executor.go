package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/chatgraph/agent"
	"github.com/hupe1980/chatgraph/checkpoint"
	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/stream"
)

// DefaultMaxSteps bounds how many nodes one turn may visit before it is
// treated as a routing loop.
const DefaultMaxSteps = 25

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxSteps overrides the step ceiling per turn.
	MaxSteps int
	// Logger receives per-step execution logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// Executor drives turns through a Graph. Per thread it loads the checkpoint,
// walks the graph folding node deltas into the working state, streams the
// persona's answer, and persists the result. On a fatal error it leaves
// the last checkpoint untouched and sends the caller an error frame.
//
// Turns for one thread never interleave: a second submission while one is in
// flight is rejected with core.ErrTurnInFlight.
type Executor struct {
	graph    *Graph
	store    checkpoint.Store
	logger   logging.Logger
	maxSteps int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewExecutor creates an executor over a validated graph and a checkpoint
// store.
func NewExecutor(g *Graph, store checkpoint.Store, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		MaxSteps: DefaultMaxSteps,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		graph:    g,
		store:    store,
		logger:   opts.Logger,
		maxSteps: opts.MaxSteps,
		inflight: make(map[string]struct{}),
	}
}

// RunTurn executes one user turn for the thread, streaming frames to sink.
// Input validation errors are returned before any frame is emitted or state
// touched; once the walk starts, the sink is guaranteed a terminating frame
// (final or error) followed by close.
func (e *Executor) RunTurn(ctx context.Context, threadID, content string, sink stream.Sink) error {
	if strings.TrimSpace(threadID) == "" {
		return core.ErrMissingThreadID
	}
	if strings.TrimSpace(content) == "" {
		return core.ErrEmptyMessage
	}
	if !e.acquire(threadID) {
		return core.ErrTurnInFlight
	}
	defer e.release(threadID)

	messageID := core.NewID()
	ctx = agent.WithEmitter(ctx, func(acc string) {
		sink.EmitDelta(messageID, acc)
	})

	state, found, err := e.store.Load(ctx, threadID)
	if err != nil {
		return e.fail(sink, messageID, err)
	}
	if !found {
		state = core.InitialState()
	}

	// A fresh turn: append the user message, clear the invoked-agent set,
	// and point the walk at the entry edge.
	state = core.Merge(state, core.Delta{
		Messages:      []core.Message{core.NewUserMessage(content)},
		Next:          core.SetString(core.Start),
		InvokedAgents: core.ResetAgents(),
	})

	finalState, finalContent, err := e.walk(ctx, state)
	if err != nil {
		e.logger.Error("turn failed", "thread_id", threadID, "error", err)
		return e.fail(sink, messageID, err)
	}

	if err := e.store.Save(ctx, threadID, finalState); err != nil {
		return e.fail(sink, messageID, err)
	}

	sink.EmitFinal(messageID, finalContent, stream.Metadata{
		InvokedAgents: finalState.InvokedAgents,
		Summary:       finalState.Summary,
	})
	sink.Close()

	e.logger.Info("turn complete",
		"thread_id", threadID,
		"invoked_agents", finalState.InvokedAgents,
		"messages", len(finalState.Messages),
	)
	return nil
}

// walk runs the graph from Start to End, returning the terminal state and
// the content of the last assistant message produced during the walk.
func (e *Executor) walk(ctx context.Context, state core.State) (core.State, string, error) {
	current, ok := e.graph.Successor(core.Start)
	if !ok {
		return state, "", fmt.Errorf("graph has no entry edge")
	}

	var finalContent string

	for steps := 0; current != core.End; steps++ {
		if steps >= e.maxSteps {
			return state, "", &core.RoutingLoopError{Steps: steps}
		}
		if err := ctx.Err(); err != nil {
			return state, "", err
		}

		node, ok := e.graph.Node(current)
		if !ok {
			return state, "", &core.RoutingError{
				Decision: current,
				Reason:   "transition to undeclared node",
			}
		}

		e.logger.Debug("executing node", "node", current, "step", steps)

		delta, err := node.Run(ctx, state)
		if err != nil {
			return state, "", &core.NodeError{Node: current, Err: err}
		}

		for _, m := range delta.Messages {
			if m.Role == core.RoleAssistant {
				finalContent = m.Content
			}
		}

		state = core.Merge(state, delta)

		if e.graph.IsRouter(current) {
			decision := state.Next
			if decision != core.Start && decision != core.End {
				state = core.Merge(state, core.Delta{InvokedAgents: core.UnionAgents(decision)})
			}
			current = decision
			continue
		}

		succ, ok := e.graph.Successor(current)
		if !ok {
			return state, "", &core.RoutingError{
				Decision: current,
				Reason:   "node has no successor edge",
			}
		}
		state = core.Merge(state, core.Delta{Next: core.SetString(succ)})
		current = succ
	}

	return state, finalContent, nil
}

// ClearThread resets the thread's checkpoint to the initial state. Rejected
// while a turn for the thread is in flight.
func (e *Executor) ClearThread(ctx context.Context, threadID string) error {
	if strings.TrimSpace(threadID) == "" {
		return core.ErrMissingThreadID
	}
	if !e.acquire(threadID) {
		return core.ErrTurnInFlight
	}
	defer e.release(threadID)

	return e.store.Clear(ctx, threadID)
}

func (e *Executor) fail(sink stream.Sink, messageID string, err error) error {
	sink.Fail(messageID, err)
	sink.Close()
	return err
}

func (e *Executor) acquire(threadID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[threadID]; busy {
		return false
	}
	e.inflight[threadID] = struct{}{}
	return true
}

func (e *Executor) release(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, threadID)
}
