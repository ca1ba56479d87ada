package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/chatgraph/agent"
	"github.com/hupe1980/chatgraph/checkpoint"
	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/stream"
	"github.com/hupe1980/chatgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeTo(next string) model.MockTurn {
	return model.MockTurn{
		ToolCalls: []model.ToolCall{{
			ID:        "route-" + next,
			Name:      agent.RouteToolName,
			Arguments: fmt.Sprintf(`{"next": %q}`, next),
		}},
	}
}

type engineModels struct {
	supervisor *model.MockModel
	weather    *model.MockModel
	news       *model.MockModel
	persona    *model.MockModel
	summary    *model.MockModel
}

func newEngineModels() *engineModels {
	return &engineModels{
		supervisor: model.NewMockModel("supervisor"),
		weather:    model.NewMockModel("weather"),
		news:       model.NewMockModel("news"),
		persona:    model.NewMockModel("persona"),
		summary:    model.NewMockModel("summary"),
	}
}

func buildExecutor(t *testing.T, m *engineModels, weatherFn func(context.Context, map[string]any) (string, error), optFns ...func(o *ExecutorOptions)) (*Executor, checkpoint.Store) {
	t.Helper()

	if weatherFn == nil {
		weatherFn = func(context.Context, map[string]any) (string, error) {
			return `{"temperature": 31.2, "description": "clear sky"}`, nil
		}
	}
	weatherTool := tool.NewFunctionTool("get_current_weather", "stub", map[string]any{"type": "object"}, weatherFn)
	newsTool := tool.NewFunctionTool("fetch_news", "stub", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) {
			return `[{"title": "Go 1.25 released"}]`, nil
		})

	g, err := NewConversationGraph(
		agent.NewSupervisor(m.supervisor),
		agent.NewWeatherReporter(m.weather, weatherTool),
		agent.NewNewsReporter(m.news, newsTool),
		agent.NewPersona(m.persona),
		agent.NewSummarizer(m.summary),
	)
	require.NoError(t, err)

	store := checkpoint.NewInMemoryStore()
	return NewExecutor(g, store, optFns...), store
}

func TestExecutor_WeatherScenario(t *testing.T) {
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeWeather), routeTo(agent.NodeChatbot))
	m.weather.Enqueue(
		model.MockTurn{ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_current_weather", Arguments: `{"city": "Cairo"}`}}},
		model.MockTurn{Text: `{"success": true, "data": {"temperature": "31.2°C"}}`},
	)
	m.persona.Enqueue(model.MockTurn{Text: "It is a fine warm night in Cairo, 31 degrees!"})
	m.summary.Enqueue(model.MockTurn{Text: "User asked about Cairo weather."})

	exec, store := buildExecutor(t, m, nil)
	sink := stream.NewBufferSink()

	err := exec.RunTurn(context.Background(), "t1", "What's the weather in Cairo?", sink)
	require.NoError(t, err)

	final, ok := sink.Final()
	require.True(t, ok)
	assert.Equal(t, "It is a fine warm night in Cairo, 31 degrees!", final.Content)
	assert.Equal(t, []string{agent.NodeWeather, agent.NodeChatbot}, final.Metadata.InvokedAgents)
	assert.Equal(t, "User asked about Cairo weather.", final.Metadata.Summary)

	frames := sink.Frames()
	assert.True(t, frames[len(frames)-1].Done, "stream ends with the done sentinel")

	// Token deltas from the persona precede the final frame.
	var deltas int
	for _, f := range frames {
		if f.Metadata != nil && f.Metadata.Thinking {
			deltas++
			assert.Equal(t, final.ID, f.ID, "deltas and final share one message id")
		}
	}
	assert.Greater(t, deltas, 0)

	// Checkpoint: user message, weather report, persona answer.
	state, found, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, state.Messages, 3)
	assert.Equal(t, core.RoleUser, state.Messages[0].Role)
	assert.Equal(t, agent.NodeWeather, state.Messages[1].Name)
	assert.Equal(t, agent.NodeChatbot, state.Messages[2].Name)
	assert.Equal(t, core.End, state.Next)
	assert.Equal(t, []string{agent.NodeWeather, agent.NodeChatbot}, state.InvokedAgents)
}

func TestExecutor_ToolFailureIsRecoverable(t *testing.T) {
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeWeather), routeTo(agent.NodeChatbot))
	m.weather.Enqueue(
		model.MockTurn{ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_current_weather", Arguments: `{"city": "Cairo"}`}}},
		model.MockTurn{Text: "The weather service is unavailable right now."},
	)
	m.persona.Enqueue(model.MockTurn{Text: "Alas, the weather spirits are silent tonight."})
	m.summary.Enqueue(model.MockTurn{Text: "Weather lookup failed."})

	exec, store := buildExecutor(t, m, func(context.Context, map[string]any) (string, error) {
		return "", tool.NewToolError("get_current_weather", "weather api returned 502", "UPSTREAM_ERROR")
	})
	sink := stream.NewBufferSink()

	err := exec.RunTurn(context.Background(), "t1", "What's the weather in Cairo?", sink)
	require.NoError(t, err, "tool failures never surface as fatal errors")

	_, hasErr := sink.Err()
	assert.False(t, hasErr)

	final, ok := sink.Final()
	require.True(t, ok)
	assert.NotEmpty(t, final.Content)

	_, found, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, found, "turn completed, checkpoint saved")
}

func TestExecutor_RoutingErrorLeavesCheckpointUntouched(t *testing.T) {
	ctx := context.Background()

	// Seed a checkpoint from a prior successful turn.
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Text: "Greetings."})
	m.summary.Enqueue(model.MockTurn{Text: "User said hello."})

	exec, store := buildExecutor(t, m, nil)
	require.NoError(t, exec.RunTurn(ctx, "t1", "Hello", stream.NewBufferSink()))

	before, _, err := store.Load(ctx, "t1")
	require.NoError(t, err)

	// Next turn: supervisor picks an undeclared node.
	m.supervisor.Enqueue(routeTo("stock_reporter"))
	sink := stream.NewBufferSink()

	err = exec.RunTurn(ctx, "t1", "And the stock market?", sink)
	var routingErr *core.RoutingError
	require.ErrorAs(t, err, &routingErr)

	errFrame, hasErr := sink.Err()
	require.True(t, hasErr, "caller receives an explicit failure frame")
	assert.Contains(t, errFrame.Error, "routing error")

	_, ok := sink.Final()
	assert.False(t, ok, "no final frame on a fatal error")

	after, _, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed turn must not move the checkpoint")
}

func TestExecutor_StepCeilingBoundsRoutingLoops(t *testing.T) {
	m := newEngineModels()
	// Supervisor forever bounces to the weather reporter.
	for i := 0; i < 40; i++ {
		m.supervisor.Enqueue(routeTo(agent.NodeWeather))
		m.weather.Enqueue(model.MockTurn{Text: "still looking"})
	}

	exec, store := buildExecutor(t, m, nil, func(o *ExecutorOptions) {
		o.MaxSteps = 6
	})
	sink := stream.NewBufferSink()

	err := exec.RunTurn(context.Background(), "t1", "weather please", sink)
	var loopErr *core.RoutingLoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 6, loopErr.Steps)

	_, hasErr := sink.Err()
	assert.True(t, hasErr)

	_, found, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, found, "nothing checkpointed for an aborted first turn")
}

func TestExecutor_ModelErrorIsFatal(t *testing.T) {
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Err: errors.New("provider outage")})

	exec, store := buildExecutor(t, m, nil)
	sink := stream.NewBufferSink()

	err := exec.RunTurn(context.Background(), "t1", "Hello", sink)
	var nodeErr *core.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, agent.NodeChatbot, nodeErr.Node)

	_, hasErr := sink.Err()
	assert.True(t, hasErr)

	_, found, _ := store.Load(context.Background(), "t1")
	assert.False(t, found)
}

func TestExecutor_InvokedAgentsResetBetweenTurns(t *testing.T) {
	ctx := context.Background()
	m := newEngineModels()

	// Turn one goes through the weather reporter.
	m.supervisor.Enqueue(routeTo(agent.NodeWeather), routeTo(agent.NodeChatbot))
	m.weather.Enqueue(
		model.MockTurn{ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_current_weather", Arguments: `{"city": "Cairo"}`}}},
		model.MockTurn{Text: "data"},
	)
	m.persona.Enqueue(model.MockTurn{Text: "Warm."})
	m.summary.Enqueue(model.MockTurn{Text: "Weather talk."})

	exec, _ := buildExecutor(t, m, nil)
	require.NoError(t, exec.RunTurn(ctx, "t1", "Weather in Cairo?", stream.NewBufferSink()))

	// Turn two is plain chat; its metadata must not carry the old set.
	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Text: "Greetings again."})
	m.summary.Enqueue(model.MockTurn{Text: "Chatter."})

	sink := stream.NewBufferSink()
	require.NoError(t, exec.RunTurn(ctx, "t1", "Hello again", sink))

	final, ok := sink.Final()
	require.True(t, ok)
	assert.Equal(t, []string{agent.NodeChatbot}, final.Metadata.InvokedAgents)
}

func TestExecutor_RepeatVisitsUnionOnce(t *testing.T) {
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeWeather), routeTo(agent.NodeWeather), routeTo(agent.NodeChatbot))
	m.weather.Enqueue(
		model.MockTurn{Text: "first report"},
		model.MockTurn{Text: "second report"},
	)
	m.persona.Enqueue(model.MockTurn{Text: "Both reports folded in."})
	m.summary.Enqueue(model.MockTurn{Text: "Two lookups."})

	exec, _ := buildExecutor(t, m, nil)
	sink := stream.NewBufferSink()

	require.NoError(t, exec.RunTurn(context.Background(), "t1", "Check the weather twice", sink))

	final, ok := sink.Final()
	require.True(t, ok)
	assert.Equal(t, []string{agent.NodeWeather, agent.NodeChatbot}, final.Metadata.InvokedAgents)
}

func TestExecutor_InputValidation(t *testing.T) {
	exec, _ := buildExecutor(t, newEngineModels(), nil)

	err := exec.RunTurn(context.Background(), "", "Hello", stream.NewBufferSink())
	require.ErrorIs(t, err, core.ErrMissingThreadID)

	sink := stream.NewBufferSink()
	err = exec.RunTurn(context.Background(), "t1", "   ", sink)
	require.ErrorIs(t, err, core.ErrEmptyMessage)
	assert.Empty(t, sink.Frames(), "input errors are rejected before any frame is emitted")
}

func TestExecutor_ConcurrentTurnRejected(t *testing.T) {
	m := newEngineModels()

	block := make(chan struct{})
	started := make(chan struct{})
	slowTool := func(ctx context.Context, _ map[string]any) (string, error) {
		close(started)
		<-block
		return `{"temperature": 20}`, nil
	}

	m.supervisor.Enqueue(routeTo(agent.NodeWeather), routeTo(agent.NodeChatbot))
	m.weather.Enqueue(
		model.MockTurn{ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_current_weather", Arguments: `{"city": "Cairo"}`}}},
		model.MockTurn{Text: "data"},
	)
	m.persona.Enqueue(model.MockTurn{Text: "Done."})
	m.summary.Enqueue(model.MockTurn{Text: "s"})

	exec, _ := buildExecutor(t, m, slowTool)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = exec.RunTurn(context.Background(), "t1", "Weather?", stream.NewBufferSink())
	}()

	<-started
	err := exec.RunTurn(context.Background(), "t1", "Second turn", stream.NewBufferSink())
	require.ErrorIs(t, err, core.ErrTurnInFlight)

	// A different thread is not affected by t1's lock.
	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Text: "Other thread."})
	m.summary.Enqueue(model.MockTurn{Text: "s"})
	require.NoError(t, exec.RunTurn(context.Background(), "t2", "Hello", stream.NewBufferSink()))

	close(block)
	wg.Wait()
}

func TestExecutor_AbandonedStreamReleasesThread(t *testing.T) {
	m := newEngineModels()
	m.supervisor.Enqueue(routeTo(agent.NodeChatbot), routeTo(agent.NodeChatbot))
	m.persona.Enqueue(
		model.MockTurn{Text: "A rather long answer that streams many delta frames."},
		model.MockTurn{Text: "Second answer."},
	)
	m.summary.Enqueue(
		model.MockTurn{Text: "First summary."},
		model.MockTurn{Text: "Second summary."},
	)

	exec, _ := buildExecutor(t, m, nil)
	sink := stream.NewChannelSink(2)

	done := make(chan error, 1)
	go func() {
		done <- exec.RunTurn(context.Background(), "t1", "hello", sink)
	}()

	// Read two frames, then walk away mid-stream.
	<-sink.Frames()
	<-sink.Frames()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("turn never finished after the consumer stopped reading")
	}

	// The thread must accept the next turn instead of reporting it in flight.
	next := stream.NewBufferSink()
	require.NoError(t, exec.RunTurn(context.Background(), "t1", "still there?", next))
	final, ok := next.Final()
	require.True(t, ok)
	assert.Equal(t, "Second answer.", final.Content)
}

func TestExecutor_ClearThenNewTurnStartsFresh(t *testing.T) {
	ctx := context.Background()
	m := newEngineModels()

	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Text: "First conversation."})
	m.summary.Enqueue(model.MockTurn{Text: "Intro chat."})

	exec, store := buildExecutor(t, m, nil)
	require.NoError(t, exec.RunTurn(ctx, "t1", "Hello", stream.NewBufferSink()))

	require.NoError(t, exec.ClearThread(ctx, "t1"))

	m.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	m.persona.Enqueue(model.MockTurn{Text: "A fresh start."})
	m.summary.Enqueue(model.MockTurn{Text: "New conversation."})

	require.NoError(t, exec.RunTurn(ctx, "t1", "New topic", stream.NewBufferSink()))

	state, found, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, state.Messages, 2, "only the new turn's messages survive a clear")
	assert.Equal(t, "New topic", state.Messages[0].Content)
}

func TestExecutor_ClearRequiresThreadID(t *testing.T) {
	exec, _ := buildExecutor(t, newEngineModels(), nil)
	require.ErrorIs(t, exec.ClearThread(context.Background(), " "), core.ErrMissingThreadID)
}
