package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/chatgraph/agent"
	"github.com/hupe1980/chatgraph/checkpoint"
	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/graph"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/stream"
	"github.com/hupe1980/chatgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	supervisor *model.MockModel
	persona    *model.MockModel
	summary    *model.MockModel
	store      *checkpoint.InMemoryStore
	server     *Server
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	e := &testEngine{
		supervisor: model.NewMockModel("supervisor"),
		persona:    model.NewMockModel("persona"),
		summary:    model.NewMockModel("summary"),
		store:      checkpoint.NewInMemoryStore(),
	}

	weatherTool := tool.NewFunctionTool("get_current_weather", "stub", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) { return `{"temperature": 20}`, nil })
	newsTool := tool.NewFunctionTool("fetch_news", "stub", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) { return `[]`, nil })

	g, err := graph.NewConversationGraph(
		agent.NewSupervisor(e.supervisor),
		agent.NewWeatherReporter(model.NewMockModel("weather"), weatherTool),
		agent.NewNewsReporter(model.NewMockModel("news"), newsTool),
		agent.NewPersona(e.persona),
		agent.NewSummarizer(e.summary),
	)
	require.NoError(t, err)

	e.server = New(graph.NewExecutor(g, e.store))
	return e
}

func routeTo(next string) model.MockTurn {
	return model.MockTurn{
		ToolCalls: []model.ToolCall{{
			ID:        "route",
			Name:      agent.RouteToolName,
			Arguments: fmt.Sprintf(`{"next": %q}`, next),
		}},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeFrames(t *testing.T, body *bytes.Buffer) []stream.Frame {
	t.Helper()
	var frames []stream.Frame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f stream.Frame
		require.NoError(t, json.Unmarshal([]byte(line), &f), line)
		frames = append(frames, f)
	}
	return frames
}

func TestChat_StreamsNDJSON(t *testing.T) {
	e := newTestEngine(t)
	e.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	e.persona.Enqueue(model.MockTurn{Text: "Greetings, mortal."})
	e.summary.Enqueue(model.MockTurn{Text: "User said hello."})

	rec := postJSON(t, e.server.Handler(), "/api/chat", map[string]any{
		"thread_id": "t1",
		"messages":  []map[string]string{{"role": "user", "content": "Hello"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	frames := decodeFrames(t, rec.Body)
	require.NotEmpty(t, frames)
	assert.True(t, frames[len(frames)-1].Done, "stream terminates with done frame")

	var final *stream.Frame
	for i := range frames {
		if f := frames[i]; f.Metadata != nil && !f.Metadata.Thinking && f.Error == "" && !f.Done {
			final = &f
		}
	}
	require.NotNil(t, final, "exactly one final content frame")
	assert.Equal(t, "Greetings, mortal.", final.Content)
	assert.Equal(t, []string{agent.NodeChatbot}, final.Metadata.InvokedAgents)
	assert.Equal(t, "User said hello.", final.Metadata.Summary)
}

// flakyWriter fails every write after the first, like a peer that hung up
// mid-stream.
type flakyWriter struct {
	header http.Header
	status int
	writes int
}

func (w *flakyWriter) Header() http.Header { return w.header }

func (w *flakyWriter) WriteHeader(status int) { w.status = status }

func (w *flakyWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func (w *flakyWriter) Flush() {}

func TestChat_ClientDisconnectMidStreamStillCompletesTurn(t *testing.T) {
	e := newTestEngine(t)
	e.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	e.persona.Enqueue(model.MockTurn{Text: "A long streamed answer for a client that left early."})
	e.summary.Enqueue(model.MockTurn{Text: "Short chat."})

	payload, err := json.Marshal(map[string]any{
		"thread_id": "t1",
		"messages":  []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	w := &flakyWriter{header: http.Header{}}
	e.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.status)

	// The turn ran to completion and checkpointed even though the client
	// stopped accepting frames.
	state, ok, err := e.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Short chat.", state.Summary)

	// And the thread is immediately usable for the next turn.
	e.supervisor.Enqueue(routeTo(agent.NodeChatbot))
	e.persona.Enqueue(model.MockTurn{Text: "Welcome back."})
	e.summary.Enqueue(model.MockTurn{Text: "Client returned."})

	rec := postJSON(t, e.server.Handler(), "/api/chat", map[string]any{
		"thread_id": "t1",
		"messages":  []map[string]string{{"role": "user", "content": "back"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_MissingThreadID(t *testing.T) {
	e := newTestEngine(t)

	rec := postJSON(t, e.server.Handler(), "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "Hello"}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.store.Len(), "no state mutation on rejected input")
}

func TestChat_EmptyContent(t *testing.T) {
	e := newTestEngine(t)

	rec := postJSON(t, e.server.Handler(), "/api/chat", map[string]any{
		"thread_id": "t1",
		"messages":  []map[string]string{{"role": "user", "content": "  "}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_InvalidBody(t *testing.T) {
	e := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_FatalErrorStreamsErrorFrame(t *testing.T) {
	e := newTestEngine(t)
	e.supervisor.Enqueue(routeTo("stock_reporter"))

	rec := postJSON(t, e.server.Handler(), "/api/chat", map[string]any{
		"thread_id": "t1",
		"messages":  []map[string]string{{"role": "user", "content": "Stocks?"}},
	})

	// The failure arrives in-stream, not as an HTTP status.
	require.Equal(t, http.StatusOK, rec.Code)
	frames := decodeFrames(t, rec.Body)

	var sawError bool
	for _, f := range frames {
		if f.Error != "" {
			sawError = true
			assert.Contains(t, f.Error, "routing error")
		}
	}
	assert.True(t, sawError)
	assert.True(t, frames[len(frames)-1].Done)
}

func TestClear_ResetsThread(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.store.Save(context.Background(), "t1", func() core.State {
		s := core.InitialState()
		s.Messages = append(s.Messages, core.NewUserMessage("old history"))
		return s
	}()))

	rec := postJSON(t, e.server.Handler(), "/api/chat/clear", map[string]string{"thread_id": "t1"})
	require.Equal(t, http.StatusOK, rec.Code)

	state, found, err := e.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, state.Messages)
}

func TestClear_MissingThreadID(t *testing.T) {
	e := newTestEngine(t)
	rec := postJSON(t, e.server.Handler(), "/api/chat/clear", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
