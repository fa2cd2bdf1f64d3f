package composite

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Any is a [sm.StateMachine] that tries every alternative machine and keeps
// every branch that accepts any part of the token — the nondeterministic
// dispatch node used both by a bare JSON value (object vs array vs string
// vs number vs boolean vs null) and by schema anyOf/oneOf compilation. Any
// surviving branch that reaches its own accept state makes the Any stepper
// accepting too.
type Any struct {
	Alternatives []sm.StateMachine
}

// NewAny returns an [Any] machine dispatching across alternatives.
func NewAny(alternatives ...sm.StateMachine) *Any {
	return &Any{Alternatives: alternatives}
}

func (a *Any) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, len(a.Alternatives))
	for _, alt := range a.Alternatives {
		for _, s := range alt.NewStepper(nil) {
			out = append(out, &anyStepper{inner: s})
		}
	}
	return out
}

func (a *Any) Edges(sm.StateID) []sm.Edge     { return nil }
func (a *Any) StartState() sm.StateID         { return sm.StateID("0") }
func (a *Any) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (a *Any) IsOptional() bool {
	for _, alt := range a.Alternatives {
		if alt.IsOptional() {
			return true
		}
	}
	return false
}
func (a *Any) CaseSensitive() bool {
	for _, alt := range a.Alternatives {
		if !alt.CaseSensitive() {
			return false
		}
	}
	return true
}

type anyStepper struct {
	inner sm.Stepper
}

func (s *anyStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *anyStepper) State() sm.StateID             { return s.inner.State() }
func (s *anyStepper) Clone() sm.Stepper             { return &anyStepper{inner: s.inner.Clone()} }

func (s *anyStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &anyStepper{inner: n})
	}
	return out
}

func (s *anyStepper) CurrentValue() (string, any)       { return s.inner.CurrentValue() }
func (s *anyStepper) HasReachedAcceptState() bool       { return s.inner.HasReachedAcceptState() }
func (s *anyStepper) CanAcceptMoreInput() bool          { return s.inner.CanAcceptMoreInput() }
func (s *anyStepper) IsWithinValue() bool               { return s.inner.IsWithinValue() }
func (s *anyStepper) Remaining() string                 { return s.inner.Remaining() }
func (s *anyStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*anyStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *anyStepper) HashKey() string { return "any|" + s.inner.HashKey() }

// Unwrap returns the underlying branch stepper, for callers (e.g. the JSON
// value acceptor) that need to know which alternative actually matched.
func Unwrap(s sm.Stepper) sm.Stepper {
	if a, ok := s.(*anyStepper); ok {
		return a.inner
	}
	return s
}
