package schema

import (
	"fmt"
	"math"

	"github.com/kestrelsoft/pse/pkg/acceptor"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

type numberConstraints struct {
	integer                    bool
	hasMin, hasMax             bool
	min, max                   float64
	exclusiveMin, exclusiveMax bool
	hasMultiple                bool
	multipleOf                 float64
}

func (c *compiler) compileNumber(schema map[string]any, integer bool) (sm.StateMachine, error) {
	nc := &numberConstraints{integer: integer}
	if v, ok := asFloat(schema["minimum"]); ok {
		nc.min, nc.hasMin = v, true
	}
	if v, ok := asFloat(schema["maximum"]); ok {
		nc.max, nc.hasMax = v, true
	}
	if v, ok := asFloat(schema["exclusiveMinimum"]); ok {
		nc.min, nc.hasMin, nc.exclusiveMin = v, true, true
	}
	if v, ok := asFloat(schema["exclusiveMaximum"]); ok {
		nc.max, nc.hasMax, nc.exclusiveMax = v, true, true
	}
	if v, ok := asFloat(schema["multipleOf"]); ok {
		if v == 0 {
			return nil, fmt.Errorf("%w: multipleOf must be non-zero", ErrInvalidSchema)
		}
		nc.multipleOf, nc.hasMultiple = v, true
	}
	return &NumberSchema{inner: acceptor.NewNumber(), c: nc}, nil
}

// NumberSchema wraps [acceptor.Number]: it forbids a fractional or exponent
// part from ever becoming part of the accepted value when the declared type
// is "integer" (filtering out any branch whose value is no longer an
// int64), and checks minimum/maximum/multipleOf once the value reaches an
// accept state — range keywords aren't prefix-decidable in general (more
// digits can still arrive), so they're enforced as a completion gate rather
// than incremental pruning.
type NumberSchema struct {
	inner *acceptor.Number
	c     *numberConstraints
}

func (n *NumberSchema) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, s := range n.inner.NewStepper(state) {
		out = append(out, &numberSchemaStepper{inner: s, c: n.c})
	}
	return out
}

func (n *NumberSchema) Edges(s sm.StateID) []sm.Edge   { return n.inner.Edges(s) }
func (n *NumberSchema) StartState() sm.StateID         { return n.inner.StartState() }
func (n *NumberSchema) EndStates() map[sm.StateID]bool { return n.inner.EndStates() }
func (n *NumberSchema) IsOptional() bool               { return n.inner.IsOptional() }
func (n *NumberSchema) CaseSensitive() bool            { return n.inner.CaseSensitive() }

type numberSchemaStepper struct {
	inner sm.Stepper
	c     *numberConstraints
}

func (s *numberSchemaStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *numberSchemaStepper) State() sm.StateID             { return s.inner.State() }
func (s *numberSchemaStepper) Clone() sm.Stepper {
	return &numberSchemaStepper{inner: s.inner.Clone(), c: s.c}
}

func (s *numberSchemaStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		if s.c.integer {
			if _, v := n.CurrentValue(); !isIntegral(v) {
				continue
			}
		}
		out = append(out, &numberSchemaStepper{inner: n, c: s.c})
	}
	return out
}

func isIntegral(v any) bool {
	_, ok := v.(int64)
	return ok
}

func (s *numberSchemaStepper) CurrentValue() (string, any) { return s.inner.CurrentValue() }

func (s *numberSchemaStepper) HasReachedAcceptState() bool {
	return s.inner.HasReachedAcceptState() && s.c.withinRange(s.inner)
}

func (c *numberConstraints) withinRange(inner sm.Stepper) bool {
	_, value := inner.CurrentValue()
	f, ok := asFloat(value)
	if !ok {
		return false
	}
	if c.hasMin {
		if c.exclusiveMin && f <= c.min {
			return false
		}
		if !c.exclusiveMin && f < c.min {
			return false
		}
	}
	if c.hasMax {
		if c.exclusiveMax && f >= c.max {
			return false
		}
		if !c.exclusiveMax && f > c.max {
			return false
		}
	}
	if c.hasMultiple {
		q := f / c.multipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			return false
		}
	}
	return true
}

func (s *numberSchemaStepper) CanAcceptMoreInput() bool { return s.inner.CanAcceptMoreInput() }
func (s *numberSchemaStepper) IsWithinValue() bool      { return s.inner.IsWithinValue() }
func (s *numberSchemaStepper) Remaining() string        { return s.inner.Remaining() }
func (s *numberSchemaStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*numberSchemaStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *numberSchemaStepper) HashKey() string { return "numschema|" + s.inner.HashKey() }
