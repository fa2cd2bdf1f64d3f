package schema

import (
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	"github.com/kestrelsoft/pse/pkg/jsonvalue"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// compileArray builds a [sm.StateMachine] accepting a JSON array whose
// element shape comes from the "items" sub-schema (a bare JSON value when
// absent) and whose repetition count is gated by minItems/maxItems — the
// same minItems/maxItems gating [jsonvalue.NewArray] always disables by
// passing 0/0 to its [composite.Loop].
type ArraySchema struct {
	chain *composite.Chain
}

func (c *compiler) compileArray(schema map[string]any, path string) (sm.StateMachine, error) {
	var elem sm.StateMachine
	if items, ok := schema["items"]; ok {
		m, err := c.compile(items, path+"/items")
		if err != nil {
			return nil, err
		}
		elem = m
	} else {
		elem = jsonvalue.NewValue()
	}
	min, _ := asInt(schema["minItems"])
	max, _ := asInt(schema["maxItems"])
	sep := composite.NewChain(acceptor.Whitespace(0), acceptor.NewPhrase(","), acceptor.Whitespace(0))
	elements := composite.NewLoop(elem, sep, min, max)
	return &ArraySchema{chain: composite.NewChain(
		acceptor.NewPhrase("["),
		acceptor.Whitespace(0),
		elements,
		acceptor.Whitespace(0),
		acceptor.NewPhrase("]"),
	)}, nil
}

func (a *ArraySchema) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, cs := range a.chain.NewStepper(state) {
		out = append(out, &arraySchemaStepper{inner: cs})
	}
	return out
}

func (a *ArraySchema) Edges(s sm.StateID) []sm.Edge   { return a.chain.Edges(s) }
func (a *ArraySchema) StartState() sm.StateID         { return a.chain.StartState() }
func (a *ArraySchema) EndStates() map[sm.StateID]bool { return a.chain.EndStates() }
func (a *ArraySchema) IsOptional() bool               { return false }
func (a *ArraySchema) CaseSensitive() bool            { return a.chain.CaseSensitive() }

type arraySchemaStepper struct {
	inner sm.Stepper
}

func (s *arraySchemaStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *arraySchemaStepper) State() sm.StateID             { return s.inner.State() }
func (s *arraySchemaStepper) Clone() sm.Stepper {
	return &arraySchemaStepper{inner: s.inner.Clone()}
}

func (s *arraySchemaStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &arraySchemaStepper{inner: n})
	}
	return out
}

func (s *arraySchemaStepper) CurrentValue() (string, any) {
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

func (s *arraySchemaStepper) HasReachedAcceptState() bool { return s.inner.HasReachedAcceptState() }
func (s *arraySchemaStepper) CanAcceptMoreInput() bool    { return s.inner.CanAcceptMoreInput() }
func (s *arraySchemaStepper) IsWithinValue() bool         { return s.inner.IsWithinValue() }
func (s *arraySchemaStepper) Remaining() string           { return s.inner.Remaining() }
func (s *arraySchemaStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*arraySchemaStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *arraySchemaStepper) HashKey() string { return "arrschema|" + s.inner.HashKey() }
