package workflow

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a permitted transition should actually fire
type GuardFunc func(ctx context.Context) bool

// Machine tracks the current state of one invoice workflow and validates transitions
type Machine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the target state if a transition is
	// permitted and its guard (if any) passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}

// Builder assembles the transition table before any machine is built
type Builder struct {
	transitions map[State]map[Trigger][]transition
}

// Configuration adds transitions for one source state
type Configuration struct {
	builder *Builder
	from    State
}

type transition struct {
	to    State
	guard GuardFunc
}

// NewBuilder creates an empty state machine builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger][]transition)}
}

// Configure returns the configuration for transitions out of the given state
func (b *Builder) Configure(state State) Configuration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger][]transition)
	}
	return Configuration{builder: b, from: state}
}

// Permit allows a trigger to transition to the target state unconditionally
func (c Configuration) Permit(trigger Trigger, to State) Configuration {
	return c.PermitIf(trigger, to, nil)
}

// PermitIf allows a trigger to transition to the target state when the guard passes.
// Multiple transitions for the same trigger are tried in registration order.
func (c Configuration) PermitIf(trigger Trigger, to State, guard GuardFunc) Configuration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	c.builder.transitions[c.from][trigger] = append(c.builder.transitions[c.from][trigger], transition{to: to, guard: guard})
	return c
}

// Build creates an independent machine starting at the given state.
// Machines built from the same builder share the (immutable) transition table
// but track state separately.
func (b *Builder) Build(initial State) Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}
	return &machine{current: initial, transitions: b.transitions}
}

type machine struct {
	current     State
	transitions map[State]map[Trigger][]transition
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.transitions[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.transitions[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	table := m.transitions[m.current]
	triggers := make([]Trigger, 0, len(table))
	for trigger := range table {
		triggers = append(triggers, trigger)
	}
	return triggers
}
