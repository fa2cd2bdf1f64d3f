package schema

import sm "github.com/kestrelsoft/pse/pkg/statemachine"

// refMachine ties a $ref cycle the same way [jsonvalue]'s Value dispatcher
// ties its own Object/Array self-reference: the wrapper is cached and
// handed back immediately, before the referenced schema has finished
// compiling, so a schema that refers to itself (directly, or through a
// chain of $refs) gets a stable handle. target is assigned exactly once,
// after the recursive compile call for the referenced schema returns —
// nothing invokes target's methods until Consume-time, by which point
// compilation has always finished.
type refMachine struct {
	target sm.StateMachine
}

func (r *refMachine) NewStepper(state *sm.StateID) []sm.Stepper { return r.target.NewStepper(state) }
func (r *refMachine) Edges(s sm.StateID) []sm.Edge              { return r.target.Edges(s) }
func (r *refMachine) StartState() sm.StateID                    { return r.target.StartState() }
func (r *refMachine) EndStates() map[sm.StateID]bool            { return r.target.EndStates() }
func (r *refMachine) IsOptional() bool                          { return r.target.IsOptional() }
func (r *refMachine) CaseSensitive() bool                        { return r.target.CaseSensitive() }
