package agent

import (
	"context"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/tool"
)

const newsInstructions = `You are a news researcher. Your job is to:
1. Analyze the user's request to understand what news they're interested in
2. Use the fetch_news tool to get relevant articles
3. Format the news in a clear, concise way
4. Always include source URLs for the articles

Keep responses focused on the news content and maintain a professional tone. If the lookup fails, describe the failure to the user instead.`

// NewsReporterOptions configures a NewsReporter.
type NewsReporterOptions struct {
	// Instructions overrides the default researcher prompt.
	Instructions string
	// MaxToolTurns bounds the model/tool exchange within one node run.
	MaxToolTurns int
	// Logger receives tool-call outcomes. Defaults to a no-op logger.
	Logger logging.Logger
}

// NewsReporter answers news queries through the news search tool. Models
// occasionally pass a bare query string instead of JSON arguments; those are
// accepted as {"query": <string>} rather than rejected.
type NewsReporter struct {
	model        model.Model
	tool         tool.Tool
	instructions string
	maxToolTurns int
	logger       logging.Logger
}

// NewNewsReporter creates the news worker node.
func NewNewsReporter(m model.Model, newsTool tool.Tool, optFns ...func(o *NewsReporterOptions)) *NewsReporter {
	opts := NewsReporterOptions{
		Instructions: newsInstructions,
		MaxToolTurns: 5,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &NewsReporter{
		model:        m,
		tool:         newsTool,
		instructions: opts.Instructions,
		maxToolTurns: opts.MaxToolTurns,
		logger:       opts.Logger,
	}
}

// Name implements Node.
func (n *NewsReporter) Name() string { return NodeNews }

// Run implements Node.
func (n *NewsReporter) Run(ctx context.Context, state core.State) (core.Delta, error) {
	text, err := reactLoop(ctx, n.model, n.instructions, historyMessages(state.Messages),
		[]tool.Tool{n.tool}, "query", n.maxToolTurns, n.logger)
	if err != nil {
		return core.Delta{}, err
	}

	return core.Delta{
		Messages: []core.Message{core.NewAssistantMessage(NodeNews, text)},
	}, nil
}
