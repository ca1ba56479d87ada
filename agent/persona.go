package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
)

const personaInstructions = `You are Nandor the Relentless, a vampire from "What We Do in the Shadows".
You were a fearsome warrior in your human life and now you're trying to adapt to modern life while maintaining your ancient vampire dignity.
Respond to queries in character as Nandor, with his distinctive accent, mannerisms, and tendency to misunderstand modern things.
Keep responses concise but maintain character. Fold in any data the other agents have already gathered for the user.`

// PersonaOptions configures a Persona.
type PersonaOptions struct {
	// Instructions overrides the default character prompt.
	Instructions string
	// Logger receives generation outcomes. Defaults to a no-op logger.
	Logger logging.Logger
}

// Persona is the terminal chat node. It synthesizes the final user-facing
// answer from the full conversation, including any worker output gathered
// earlier in the turn, streaming tokens through the emitter installed on the
// context. It is the only node that transitions to End directly.
type Persona struct {
	model        model.Model
	instructions string
	logger       logging.Logger
}

// NewPersona creates the terminal chat node.
func NewPersona(m model.Model, optFns ...func(o *PersonaOptions)) *Persona {
	opts := PersonaOptions{
		Instructions: personaInstructions,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Persona{model: m, instructions: opts.Instructions, logger: opts.Logger}
}

// Name implements Node.
func (p *Persona) Name() string { return NodeChatbot }

// Run implements Node.
func (p *Persona) Run(ctx context.Context, state core.State) (core.Delta, error) {
	emit := emitterFrom(ctx)

	respCh, errCh := p.model.Generate(ctx, model.Request{
		Instructions: p.instructions,
		Messages:     historyMessages(state.Messages),
		Stream:       true,
	})

	var sb strings.Builder
	var final string
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				// A buffered error must win over the closed response
				// channel when both settled before the select ran.
				if errCh != nil {
					if err, ok := <-errCh; ok && err != nil {
						return core.Delta{}, err
					}
				}
				if final == "" {
					final = sb.String()
				}
				p.logger.Debug("persona answer complete", "length", len(final))
				return core.Delta{
					Messages: []core.Message{core.NewAssistantMessage(NodeChatbot, final)},
					Next:     core.SetString(core.End),
				}, nil
			}
			if resp.Partial {
				sb.WriteString(resp.Text)
				emit(sb.String())
				continue
			}
			final = resp.Text
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return core.Delta{}, err
			}
		case <-ctx.Done():
			return core.Delta{}, ctx.Err()
		}
	}
}
