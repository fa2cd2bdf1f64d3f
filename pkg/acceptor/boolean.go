package acceptor

import (
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Boolean is a [sm.StateMachine] accepting the literal `true` or `false`,
// built directly from two [Phrase] alternatives rather than a bespoke
// graph, since that's exactly what it is.
type Boolean struct {
	any *composite.Any
}

// NewBoolean returns a [Boolean] machine.
func NewBoolean() *Boolean {
	return &Boolean{any: composite.NewAny(NewPhrase("true"), NewPhrase("false"))}
}

func (b *Boolean) NewStepper(state *sm.StateID) []sm.Stepper { return b.any.NewStepper(state) }
func (b *Boolean) Edges(s sm.StateID) []sm.Edge               { return b.any.Edges(s) }
func (b *Boolean) StartState() sm.StateID                     { return b.any.StartState() }
func (b *Boolean) EndStates() map[sm.StateID]bool              { return b.any.EndStates() }
func (b *Boolean) IsOptional() bool                            { return false }
func (b *Boolean) CaseSensitive() bool                         { return true }

// BooleanValue extracts a bool from a stepper produced by [Boolean], for
// callers that want a native bool rather than the raw "true"/"false" text.
func BooleanValue(s sm.Stepper) (bool, bool) {
	inner := composite.Unwrap(s)
	raw, _ := inner.CurrentValue()
	switch raw {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
