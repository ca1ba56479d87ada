package core

// updateKind discriminates tagged field updates. The explicit tag replaces
// the value-shape sniffing the executor would otherwise need to tell "no
// update" apart from "reset to empty".
type updateKind int

const (
	kindNoChange updateKind = iota
	kindSet
	kindReset
)

// StringUpdate is a tagged update for last-write-wins string fields
// (Next, Summary). The zero value means "no change".
type StringUpdate struct {
	kind  updateKind
	value string
}

// SetString returns an update that replaces the field with v.
func SetString(v string) StringUpdate { return StringUpdate{kind: kindSet, value: v} }

// IsSet reports whether the update carries a replacement value.
func (u StringUpdate) IsSet() bool { return u.kind == kindSet }

// Value returns the replacement value; only meaningful when IsSet.
func (u StringUpdate) Value() string { return u.value }

// AgentSetUpdate is a tagged update for the invoked-agents set. The zero
// value means "no change"; Union adds names; ResetAgents clears the set.
type AgentSetUpdate struct {
	kind  updateKind
	names []string
}

// UnionAgents returns an update that unions the given worker names into the
// set. Sentinels are filtered during merge, never stored.
func UnionAgents(names ...string) AgentSetUpdate {
	return AgentSetUpdate{kind: kindSet, names: names}
}

// ResetAgents returns the explicit clear signal used at the start of a turn.
func ResetAgents() AgentSetUpdate { return AgentSetUpdate{kind: kindReset} }

// Delta is a partial state update produced by one node execution. Fields
// left at their zero value contribute nothing to the merge.
type Delta struct {
	// Messages are appended to State.Messages in order; never reordered
	// or deduplicated.
	Messages []Message
	// Next selects the node to execute after this one (last-write-wins).
	Next StringUpdate
	// InvokedAgents unions worker names into, or resets, the turn's set.
	InvokedAgents AgentSetUpdate
	// Summary replaces the running synopsis (last-write-wins).
	Summary StringUpdate
}

// Merge folds a delta into a state field-by-field using each field's
// reducer and returns the resulting state. It is a pure function: neither
// argument is mutated, and it is associative across the sequential deltas
// of a turn.
func Merge(current State, delta Delta) State {
	next := current.Clone()

	if len(delta.Messages) > 0 {
		next.Messages = append(next.Messages, delta.Messages...)
	}

	if delta.Next.IsSet() {
		next.Next = delta.Next.Value()
	}
	if next.Next == "" {
		next.Next = End
	}

	switch delta.InvokedAgents.kind {
	case kindReset:
		next.InvokedAgents = []string{}
	case kindSet:
		for _, name := range delta.InvokedAgents.names {
			if name == Start || name == End || name == "" {
				continue
			}
			if !containsString(next.InvokedAgents, name) {
				next.InvokedAgents = append(next.InvokedAgents, name)
			}
		}
	}

	if delta.Summary.IsSet() {
		next.Summary = delta.Summary.Value()
	}

	return next
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
