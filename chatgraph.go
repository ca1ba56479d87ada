// Package chatgraph provides a high-level façade over the conversation
// engine: a supervisor-routed graph of worker agents (weather, news, chat
// persona, summarizer) with per-thread checkpointing and token streaming.
// Most applications interact with this package by:
//  1. Creating a ChatGraph via New() with a chat model (optionally
//     overriding tools, checkpoint storage and logging)
//  2. Running turns with Chat (streaming) or ChatSync (buffered)
//  3. Resetting threads with ClearThread
//
// The façade delegates orchestration to graph.Executor while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a Redis checkpoint store and a
// structured logger.
package chatgraph

import (
	"context"
	"errors"

	"github.com/hupe1980/chatgraph/agent"
	"github.com/hupe1980/chatgraph/checkpoint"
	"github.com/hupe1980/chatgraph/graph"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/stream"
	"github.com/hupe1980/chatgraph/tool"
)

// Options configures the ChatGraph instance.
type Options struct {
	// WeatherTool handles weather lookups. Defaults to the OpenWeather
	// tool without an API key, which reports lookups as failed upstream.
	WeatherTool tool.Tool
	// NewsTool handles news searches, with the same default behavior.
	NewsTool tool.Tool

	// CheckpointStore persists thread state between turns. Defaults to an
	// in-memory store.
	CheckpointStore checkpoint.Store

	// MaxSteps bounds the nodes one turn may visit.
	MaxSteps int

	// PersonaInstructions overrides the chat persona's character prompt.
	PersonaInstructions string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ChatGraph is the high-level façade aggregating the graph, its nodes and
// the executor.
type ChatGraph struct {
	executor *graph.Executor
	store    checkpoint.Store
}

// New wires the standard conversation graph around the given chat model.
func New(chatModel model.Model, optFns ...func(o *Options)) (*ChatGraph, error) {
	opts := Options{
		WeatherTool:     tool.NewWeatherTool(""),
		NewsTool:        tool.NewNewsTool(""),
		CheckpointStore: checkpoint.NewInMemoryStore(),
		MaxSteps:        graph.DefaultMaxSteps,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	persona := agent.NewPersona(chatModel, func(o *agent.PersonaOptions) {
		if opts.PersonaInstructions != "" {
			o.Instructions = opts.PersonaInstructions
		}
		o.Logger = opts.Logger
	})

	g, err := graph.NewConversationGraph(
		agent.NewSupervisor(chatModel, func(o *agent.SupervisorOptions) {
			o.Logger = opts.Logger
		}),
		agent.NewWeatherReporter(chatModel, opts.WeatherTool, func(o *agent.WeatherReporterOptions) {
			o.Logger = opts.Logger
		}),
		agent.NewNewsReporter(chatModel, opts.NewsTool, func(o *agent.NewsReporterOptions) {
			o.Logger = opts.Logger
		}),
		persona,
		agent.NewSummarizer(chatModel, func(o *agent.SummarizerOptions) {
			o.Logger = opts.Logger
		}),
	)
	if err != nil {
		return nil, err
	}

	executor := graph.NewExecutor(g, opts.CheckpointStore, func(o *graph.ExecutorOptions) {
		o.MaxSteps = opts.MaxSteps
		o.Logger = opts.Logger
	})

	return &ChatGraph{executor: executor, store: opts.CheckpointStore}, nil
}

// Chat runs one turn for the thread, streaming frames to sink.
func (c *ChatGraph) Chat(ctx context.Context, threadID, content string, sink stream.Sink) error {
	return c.executor.RunTurn(ctx, threadID, content, sink)
}

// ChatSync runs one turn synchronously and returns the final frame.
func (c *ChatGraph) ChatSync(ctx context.Context, threadID, content string) (stream.Frame, error) {
	sink := stream.NewBufferSink()
	if err := c.Chat(ctx, threadID, content, sink); err != nil {
		return stream.Frame{}, err
	}
	final, ok := sink.Final()
	if !ok {
		return stream.Frame{}, errors.New("turn produced no final frame")
	}
	return final, nil
}

// ClearThread resets the thread's conversation state.
func (c *ChatGraph) ClearThread(ctx context.Context, threadID string) error {
	return c.executor.ClearThread(ctx, threadID)
}

// Executor exposes the underlying executor, e.g. for mounting the HTTP
// server.
func (c *ChatGraph) Executor() *graph.Executor { return c.executor }
