package jsonvalue

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Object is a [sm.StateMachine] accepting a JSON object `{ "k": v, ... }`
// with generic (schema-less) member values matched by valueMachine. Member
// order is preserved in [Object.Value] using an ordered map rather than a
// plain Go map, since Go map iteration order is randomised and a structured
// decoder that re-emits JSON should not silently reorder keys.
type Object struct {
	chain *composite.Chain
}

// NewObject returns an [Object] machine whose members' values are matched
// by valueMachine — typically [NewValue]() for schema-less JSON, or a
// specific schema-compiled machine when called from package schema.
func NewObject(valueMachine sm.StateMachine) *Object {
	member := NewKeyValue(valueMachine)
	sep := composite.NewChain(acceptor.Whitespace(0), acceptor.NewPhrase(","), acceptor.Whitespace(0))
	members := composite.NewLoop(member, sep, 0, 0)
	return &Object{chain: composite.NewChain(
		acceptor.NewPhrase("{"),
		acceptor.Whitespace(0),
		members,
		acceptor.Whitespace(0),
		acceptor.NewPhrase("}"),
	)}
}

func (o *Object) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, cs := range o.chain.NewStepper(state) {
		out = append(out, &objectStepper{inner: cs})
	}
	return out
}

func (o *Object) Edges(s sm.StateID) []sm.Edge     { return o.chain.Edges(s) }
func (o *Object) StartState() sm.StateID           { return o.chain.StartState() }
func (o *Object) EndStates() map[sm.StateID]bool   { return o.chain.EndStates() }
func (o *Object) IsOptional() bool                 { return false }
func (o *Object) CaseSensitive() bool              { return o.chain.CaseSensitive() }

type objectStepper struct {
	inner sm.Stepper
}

func (s *objectStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *objectStepper) State() sm.StateID             { return s.inner.State() }
func (s *objectStepper) Clone() sm.Stepper             { return &objectStepper{inner: s.inner.Clone()} }

func (s *objectStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &objectStepper{inner: n})
	}
	return out
}

// CurrentValue returns the raw consumed text and an *orderedmap.OrderedMap
// of the members parsed so far (possibly empty, possibly with a final
// partially-parsed value).
func (s *objectStepper) CurrentValue() (string, any) {
	raw, v := s.inner.CurrentValue()
	parts, _ := v.([]any)
	result := orderedmap.New[string, any]()
	if len(parts) >= 3 {
		if members, ok := parts[2].([]any); ok {
			for _, m := range members {
				if kv, ok := m.(KV); ok && kv.Key != "" {
					result.Set(kv.Key, kv.Value)
				}
			}
		}
	}
	return raw, result
}

func (s *objectStepper) HasReachedAcceptState() bool { return s.inner.HasReachedAcceptState() }
func (s *objectStepper) CanAcceptMoreInput() bool    { return s.inner.CanAcceptMoreInput() }
func (s *objectStepper) IsWithinValue() bool         { return s.inner.IsWithinValue() }
func (s *objectStepper) Remaining() string           { return s.inner.Remaining() }
func (s *objectStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*objectStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *objectStepper) HashKey() string { return "obj|" + s.inner.HashKey() }
