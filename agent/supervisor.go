package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// RouteToolName is the function the supervisor is forced to call; its single
// argument carries the routing decision.
const RouteToolName = "route"

// DefaultMembers are the workers the supervisor may route to, in the order
// they are presented to the model.
func DefaultMembers() []string {
	return []string{NodeWeather, NodeNews, NodeChatbot}
}

const supervisorInstructions = `You are a task router. Analyze the user's request and conversation history.

Available agents:
- weather_reporter: For weather-related queries
- news_reporter: For news and current events queries
- chatbot: For general conversation and final responses

Routing rules:
1. Route to weather_reporter or news_reporter for their specific queries
2. After each specialized agent provides data, route to chatbot
3. For general conversation, route directly to chatbot
4. The chatbot will end the conversation

Multi-task handling:
- If the user asks for multiple things (e.g., "weather and news"), handle one task at a time
- Check the conversation history:
  - If weather data is missing and requested, route to weather_reporter
  - If news data is missing and requested, route to news_reporter
  - If all requested data is present, route to chatbot

Return EXACTLY one of: %s`

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Members restricts the routing decision to these worker names.
	Members []string
	// Logger receives routing decisions. Defaults to a no-op logger.
	Logger logging.Logger
}

// Supervisor is the routing node. Each step it selects exactly one member to
// run next by forcing the model into the route tool and parsing the decision
// out of the tool-call arguments.
type Supervisor struct {
	model   model.Model
	members []string
	logger  logging.Logger
}

// NewSupervisor creates the routing node backed by the given model.
func NewSupervisor(m model.Model, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		Members: DefaultMembers(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Supervisor{model: m, members: opts.Members, logger: opts.Logger}
}

// Name implements Node.
func (s *Supervisor) Name() string { return NodeSupervisor }

// Run implements Node. The returned delta carries only the Next transition;
// the executor is responsible for recording the chosen worker as invoked.
func (s *Supervisor) Run(ctx context.Context, state core.State) (core.Delta, error) {
	optionList := strings.Join(s.members, ", ")

	msgs := historyMessages(state.Messages)
	msgs = append(msgs, model.ChatMessage{
		Role:    core.RoleUser,
		Content: fmt.Sprintf("Which agent should handle the next step? Select one of: %s", optionList),
	})

	resp, err := collect(ctx, s.model, model.Request{
		Instructions: fmt.Sprintf(supervisorInstructions, optionList),
		Messages:     msgs,
		Tools: []model.ToolDefinition{{
			Name:        RouteToolName,
			Description: "Select the next role to handle the request.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"next": map[string]any{
						"type": "string",
						"enum": s.members,
					},
				},
				"required": []string{"next"},
			},
		}},
		ToolChoice: RouteToolName,
	})
	if err != nil {
		return core.Delta{}, err
	}

	decision := s.parseDecision(resp)
	if decision == "" {
		return core.Delta{}, &core.RoutingError{Reason: "no parseable routing decision"}
	}
	if !s.declared(decision) {
		return core.Delta{}, &core.RoutingError{
			Decision: decision,
			Reason:   fmt.Sprintf("must be one of: %s", optionList),
		}
	}

	s.logger.Info("routing decision", "next", decision)

	return core.Delta{Next: core.SetString(decision)}, nil
}

// parseDecision extracts the next node name from the forced tool call,
// repairing sloppy argument JSON if needed, with the plain response text as
// a last resort.
func (s *Supervisor) parseDecision(resp model.Response) string {
	for _, call := range resp.ToolCalls {
		if call.Name != RouteToolName {
			continue
		}
		if next := gjson.Get(call.Arguments, "next").String(); next != "" {
			return strings.TrimSpace(next)
		}
		if repaired, err := jsonrepair.JSONRepair(call.Arguments); err == nil {
			if next := gjson.Get(repaired, "next").String(); next != "" {
				return strings.TrimSpace(next)
			}
		}
	}

	// Some providers answer in text despite the forced tool choice.
	text := strings.Trim(strings.TrimSpace(resp.Text), `"'.`)
	for _, m := range s.members {
		if strings.EqualFold(text, m) {
			return m
		}
	}
	return ""
}

func (s *Supervisor) declared(name string) bool {
	for _, m := range s.members {
		if m == name {
			return true
		}
	}
	return false
}
