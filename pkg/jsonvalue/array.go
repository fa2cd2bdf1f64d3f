package jsonvalue

import (
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Array is a [sm.StateMachine] accepting a JSON array `[ v, v, ... ]` whose
// elements are matched by valueMachine.
type Array struct {
	chain *composite.Chain
}

// NewArray returns an [Array] machine whose elements are matched by
// valueMachine.
func NewArray(valueMachine sm.StateMachine) *Array {
	sep := composite.NewChain(acceptor.Whitespace(0), acceptor.NewPhrase(","), acceptor.Whitespace(0))
	elements := composite.NewLoop(valueMachine, sep, 0, 0)
	return &Array{chain: composite.NewChain(
		acceptor.NewPhrase("["),
		acceptor.Whitespace(0),
		elements,
		acceptor.Whitespace(0),
		acceptor.NewPhrase("]"),
	)}
}

func (a *Array) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, cs := range a.chain.NewStepper(state) {
		out = append(out, &arrayStepper{inner: cs})
	}
	return out
}

func (a *Array) Edges(s sm.StateID) []sm.Edge   { return a.chain.Edges(s) }
func (a *Array) StartState() sm.StateID         { return a.chain.StartState() }
func (a *Array) EndStates() map[sm.StateID]bool { return a.chain.EndStates() }
func (a *Array) IsOptional() bool               { return false }
func (a *Array) CaseSensitive() bool            { return a.chain.CaseSensitive() }

type arrayStepper struct {
	inner sm.Stepper
}

func (s *arrayStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *arrayStepper) State() sm.StateID             { return s.inner.State() }
func (s *arrayStepper) Clone() sm.Stepper             { return &arrayStepper{inner: s.inner.Clone()} }

func (s *arrayStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &arrayStepper{inner: n})
	}
	return out
}

// CurrentValue returns the raw consumed text and a []any of the elements
// parsed so far.
func (s *arrayStepper) CurrentValue() (string, any) {
	raw, v := s.inner.CurrentValue()
	parts, _ := v.([]any)
	var elements []any
	if len(parts) >= 3 {
		if es, ok := parts[2].([]any); ok {
			elements = es
		}
	}
	if elements == nil {
		elements = []any{}
	}
	return raw, elements
}

func (s *arrayStepper) HasReachedAcceptState() bool { return s.inner.HasReachedAcceptState() }
func (s *arrayStepper) CanAcceptMoreInput() bool    { return s.inner.CanAcceptMoreInput() }
func (s *arrayStepper) IsWithinValue() bool         { return s.inner.IsWithinValue() }
func (s *arrayStepper) Remaining() string           { return s.inner.Remaining() }
func (s *arrayStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*arrayStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *arrayStepper) HashKey() string { return "arr|" + s.inner.HashKey() }
