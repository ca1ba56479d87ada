package core

import "github.com/google/uuid"

// Sentinel node names. Start marks turn entry, End marks termination.
// Neither is ever a member of InvokedAgents.
const (
	Start = "__start__"
	End   = "__end__"
)

// Conversation roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool marks intra-worker tool exchanges. Tool messages live only
	// inside a worker's model loop and are never appended to State.Messages.
	RoleTool = "tool"
)

// Message is a single conversation entry. Immutable once appended to a
// State; never deleted except by a full-state clear.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Name tags the producing node (e.g. "weather_reporter") so the persona
	// can attribute prior worker output. Empty for user/system messages.
	Name string `json:"name,omitempty"`
}

// NewUserMessage constructs a user-authored message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage constructs an assistant message authored by the named node.
func NewAssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name}
}

// State is the shared conversation state for one thread. It is a value
// type: nodes receive a copy and express changes as a Delta, which the
// executor folds back in via Merge. The zero value is not the initial
// state; use InitialState (Next defaults to End, not "").
type State struct {
	Messages      []Message `json:"messages"`
	Next          string    `json:"next"`
	InvokedAgents []string  `json:"invoked_agents"`
	Summary       string    `json:"summary"`
}

// InitialState returns the empty conversation state: no messages, Next=End,
// no invoked agents, empty summary. Clear resets threads to this value.
func InitialState() State {
	return State{Messages: []Message{}, Next: End, InvokedAgents: []string{}, Summary: ""}
}

// Clone returns a deep copy safe for independent mutation.
func (s State) Clone() State {
	c := State{Next: s.Next, Summary: s.Summary}
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.InvokedAgents = make([]string, len(s.InvokedAgents))
	copy(c.InvokedAgents, s.InvokedAgents)
	return c
}

// LastUserMessage returns the most recent user message, if any.
func (s State) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// TailMessages returns up to n of the most recent messages in order.
func (s State) TailMessages(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) < n {
		n = len(s.Messages)
	}
	tail := make([]Message, n)
	copy(tail, s.Messages[len(s.Messages)-n:])
	return tail
}

// NewID generates a unique identifier for messages and stream frames.
func NewID() string { return uuid.NewString() }
