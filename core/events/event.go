package events

import "chainsim/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
	Event() types.Event
}

// Emitter broadcasts committed events to downstream subscribers such as
// metrics or test recorders.
type Emitter interface {
	Emit(types.Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(types.Event) {}

// Recorder keeps every emitted event in order.
type Recorder struct {
	Events []types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(ev types.Event) {
	r.Events = append(r.Events, ev)
}

// Build converts structured events into chain events preserving order.
func Build(evs ...Event) []types.Event {
	out := make([]types.Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Event())
	}
	return out
}
