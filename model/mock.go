package model

import (
	"context"
	"fmt"
	"sync"
)

// MockTurn scripts one Generate call of a MockModel. Exactly one of Text,
// ToolCalls or Err should be set.
type MockTurn struct {
	Text      string
	ToolCalls []ToolCall
	Err       error
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Each Generate call consumes the next scripted turn; when the script is
// exhausted it echoes the last input message.
type MockModel struct {
	info  Info
	mu    sync.Mutex
	turns []MockTurn
	// Requests records every request received, for assertions.
	Requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string, turns ...MockTurn) *MockModel {
	return &MockModel{
		info:  Info{Name: name, Provider: "mock", SupportsTools: true},
		turns: turns,
	}
}

// Enqueue appends scripted turns.
func (m *MockModel) Enqueue(turns ...MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Calls returns how many Generate calls have been made.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Generate implements Model; emits optional streaming char chunks then the
// final response for the next scripted turn.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	var turn MockTurn
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	} else {
		last := "empty request"
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Content
		}
		turn = MockTurn{Text: fmt.Sprintf("Mock response to: %s", last)}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if len(turn.ToolCalls) > 0 {
			respCh <- Response{ToolCalls: turn.ToolCalls, FinishReason: "tool_calls"}
			return
		}

		if req.Stream {
			for _, r := range turn.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{Text: turn.Text, FinishReason: "stop"}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
