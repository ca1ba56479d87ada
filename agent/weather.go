package agent

import (
	"context"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/tool"
)

const weatherInstructions = `You're a weather reporter. Use the get_current_weather tool to look up the city the user asked about. When you receive weather data, return it in this exact JSON format: {"success": true, "data": {"temperature": "X°C", "description": "Y", "humidity": "Z%", "windSpeed": "W m/s"}, "message": "Current weather information retrieved successfully."}. If the lookup fails, describe the failure to the user instead.`

// WeatherReporterOptions configures a WeatherReporter.
type WeatherReporterOptions struct {
	// Instructions overrides the default reporter prompt.
	Instructions string
	// MaxToolTurns bounds the model/tool exchange within one node run.
	MaxToolTurns int
	// Logger receives tool-call outcomes. Defaults to a no-op logger.
	Logger logging.Logger
}

// WeatherReporter answers weather queries by driving the model through the
// weather lookup tool. Tool failures surface as a degraded assistant message
// rather than an error; only a failing model call aborts the turn.
type WeatherReporter struct {
	model        model.Model
	tool         tool.Tool
	instructions string
	maxToolTurns int
	logger       logging.Logger
}

// NewWeatherReporter creates the weather worker node.
func NewWeatherReporter(m model.Model, weatherTool tool.Tool, optFns ...func(o *WeatherReporterOptions)) *WeatherReporter {
	opts := WeatherReporterOptions{
		Instructions: weatherInstructions,
		MaxToolTurns: 5,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WeatherReporter{
		model:        m,
		tool:         weatherTool,
		instructions: opts.Instructions,
		maxToolTurns: opts.MaxToolTurns,
		logger:       opts.Logger,
	}
}

// Name implements Node.
func (w *WeatherReporter) Name() string { return NodeWeather }

// Run implements Node.
func (w *WeatherReporter) Run(ctx context.Context, state core.State) (core.Delta, error) {
	text, err := reactLoop(ctx, w.model, w.instructions, historyMessages(state.Messages),
		[]tool.Tool{w.tool}, "city", w.maxToolTurns, w.logger)
	if err != nil {
		return core.Delta{}, err
	}

	return core.Delta{
		Messages: []core.Message{core.NewAssistantMessage(NodeWeather, text)},
	}, nil
}
