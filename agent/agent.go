package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/tool"
	"github.com/kaptinlin/jsonrepair"
)

// Declared node names. These are the only values allowed in State.Next
// besides the Start and End sentinels.
const (
	NodeSupervisor = "supervisor"
	NodeWeather    = "weather_reporter"
	NodeNews       = "news_reporter"
	NodeChatbot    = "chatbot"
	NodeSummary    = "summary_agent"
)

// Node is a single executable vertex of the conversation graph. Run
// receives a snapshot of the shared state and returns the partial update it
// wants folded back in. Run must not mutate the snapshot.
type Node interface {
	// Name returns the declared node name used for routing and attribution.
	Name() string
	// Run executes the node against a state snapshot.
	Run(ctx context.Context, state core.State) (core.Delta, error)
}

// Emitter receives the accumulated assistant text so far. The executor
// installs one per turn so the persona can stream tokens to the caller.
type Emitter func(content string)

type emitterKey struct{}

// WithEmitter attaches a streaming callback to the context for the duration
// of a turn.
func WithEmitter(ctx context.Context, fn Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, fn)
}

func emitterFrom(ctx context.Context) Emitter {
	if fn, ok := ctx.Value(emitterKey{}).(Emitter); ok && fn != nil {
		return fn
	}
	return func(string) {}
}

// historyMessages converts the shared conversation log into provider
// messages. Node attribution is dropped; providers only see role and text.
func historyMessages(msgs []core.Message) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func toolDefinitions(tools []tool.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// collect drains one Generate call and returns the terminal response. The
// error channel carries at most one error; any error is fatal for the turn.
func collect(ctx context.Context, m model.Model, req model.Request) (model.Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var last model.Response
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				// Both channels may settle before the select runs, in
				// which case a buffered error must not lose the race
				// against the closed response channel.
				if errCh != nil {
					if err, ok := <-errCh; ok && err != nil {
						return model.Response{}, err
					}
				}
				return last, nil
			}
			if !resp.Partial {
				last = resp
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, err
			}
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
	}
}

// parseToolArgs decodes a tool-call argument payload. Providers sometimes
// emit sloppy JSON, so a repair pass runs before giving up; when rawKey is
// non-empty the whole payload falls back to {rawKey: payload} instead of
// failing, so a bare query string still reaches the tool.
func parseToolArgs(raw, rawKey string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			return args, nil
		}
	}

	if rawKey != "" {
		return map[string]any{rawKey: raw}, nil
	}

	return nil, fmt.Errorf("unparseable tool arguments: %q", raw)
}

// reactLoop drives a model/tool conversation until the model answers with
// plain text: model turn, execute any requested tool calls, feed the results
// back, repeat. Tool failures are folded into the transcript as error
// payloads so the model can report them in-band; only a failing model call
// aborts the loop.
func reactLoop(
	ctx context.Context,
	m model.Model,
	instructions string,
	history []model.ChatMessage,
	tools []tool.Tool,
	rawArgKey string,
	maxTurns int,
	logger logging.Logger,
) (string, error) {
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	msgs := make([]model.ChatMessage, len(history))
	copy(msgs, history)

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := collect(ctx, m, model.Request{
			Instructions: instructions,
			Messages:     msgs,
			Tools:        toolDefinitions(tools),
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		msgs = append(msgs, model.ChatMessage{Role: core.RoleAssistant, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			result, err := executeToolCall(ctx, byName, call, rawArgKey)
			if err != nil {
				// Recoverable: the model sees the failure and answers with
				// a degraded message instead of the turn aborting.
				logger.Warn("tool call failed", "tool", call.Name, "error", err)
				result = fmt.Sprintf(`{"error": %q}`, err.Error())
			} else {
				logger.Debug("tool call succeeded", "tool", call.Name)
			}
			msgs = append(msgs, model.ChatMessage{
				Role:       core.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("tool loop exceeded %d turns", maxTurns)
}

func executeToolCall(ctx context.Context, byName map[string]tool.Tool, call model.ToolCall, rawArgKey string) (string, error) {
	t, ok := byName[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	args, err := parseToolArgs(call.Arguments, rawArgKey)
	if err != nil {
		return "", err
	}
	return t.Call(ctx, args)
}
