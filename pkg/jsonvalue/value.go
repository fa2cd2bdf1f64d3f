package jsonvalue

import (
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Value is a [sm.StateMachine] dispatching across every untyped JSON value
// shape: object, array, string, number, boolean, or null. Object and Array
// recurse back into Value for their members/elements, so the dispatcher is
// built as a mutable wrapper (valueMachine) whose alternatives are filled in
// after construction — Go has no forward-reference literals, so this is the
// idiomatic way to build a machine that is its own descendant, the same way
// the original ties $ref cycles through a visited map at compile time
// instead of eagerly recursing.
type valueMachine struct {
	dispatch *composite.Any
}

// NewValue returns a [sm.StateMachine] accepting any bare JSON value.
func NewValue() sm.StateMachine {
	v := &valueMachine{}
	v.dispatch = composite.NewAny(
		NewObject(v),
		NewArray(v),
		acceptor.NewString(),
		acceptor.NewNumber(),
		acceptor.NewBoolean(),
		acceptor.NewPhrase("null"),
	)
	return v
}

func (v *valueMachine) NewStepper(state *sm.StateID) []sm.Stepper { return v.dispatch.NewStepper(state) }
func (v *valueMachine) Edges(s sm.StateID) []sm.Edge              { return v.dispatch.Edges(s) }
func (v *valueMachine) StartState() sm.StateID                    { return v.dispatch.StartState() }
func (v *valueMachine) EndStates() map[sm.StateID]bool            { return v.dispatch.EndStates() }
func (v *valueMachine) IsOptional() bool                          { return false }
func (v *valueMachine) CaseSensitive() bool                       { return v.dispatch.CaseSensitive() }
