package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
)

// InitialSummary is the synopsis used for a thread with no history yet; it
// is produced without a model call.
const InitialSummary = "This is the beginning of the conversation."

// summaryWindow is how many trailing messages the summarizer reads on top of
// the previous summary.
const summaryWindow = 3

const summarizerInstructions = `You are a summarization agent that maintains a concise summary of the ongoing conversation.
Focus on key points, decisions, and the overall context of the discussion.
If the conversation is just starting, simply state that this is the beginning of the conversation.

Analyze the conversation history and provide a concise summary of the key points.
The new summary must keep the important information from the previous summary, in addition to the last few messages of the conversation.
Provide ONLY the new summary, nothing else.`

// SummarizerOptions configures a Summarizer.
type SummarizerOptions struct {
	// Instructions overrides the default summarization prompt.
	Instructions string
	// Logger receives summarization outcomes. Defaults to a no-op logger.
	Logger logging.Logger
}

// Summarizer maintains the running conversation synopsis. It runs after the
// persona has answered and replaces State.Summary wholesale, reading the
// previous summary plus the last few messages.
type Summarizer struct {
	model        model.Model
	instructions string
	logger       logging.Logger
}

// NewSummarizer creates the summarization node.
func NewSummarizer(m model.Model, optFns ...func(o *SummarizerOptions)) *Summarizer {
	opts := SummarizerOptions{
		Instructions: summarizerInstructions,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Summarizer{model: m, instructions: opts.Instructions, logger: opts.Logger}
}

// Name implements Node.
func (s *Summarizer) Name() string { return NodeSummary }

// Run implements Node.
func (s *Summarizer) Run(ctx context.Context, state core.State) (core.Delta, error) {
	if len(state.Messages) == 0 {
		return core.Delta{Summary: core.SetString(InitialSummary)}, nil
	}

	previous := state.Summary
	if previous == "" {
		previous = "No summary yet."
	}

	msgs := []model.ChatMessage{{
		Role:    core.RoleSystem,
		Content: fmt.Sprintf("Current conversation summary: %s", previous),
	}}
	msgs = append(msgs, historyMessages(state.TailMessages(summaryWindow))...)

	resp, err := collect(ctx, s.model, model.Request{
		Instructions: s.instructions,
		Messages:     msgs,
	})
	if err != nil {
		return core.Delta{}, err
	}

	s.logger.Debug("summary updated", "length", len(resp.Text))

	return core.Delta{Summary: core.SetString(resp.Text)}, nil
}
