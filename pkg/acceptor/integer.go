package acceptor

import (
	"strconv"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Integer is a [Character]-derived machine that accepts a run of one or more
// ASCII digits and materialises it as an int64 rather than a raw string.
// Leading zeros ("01" is syntactically rejected by JSON's number grammar but
// is accepted here as a permissive leaf) always disappear in the int64
// value; DropLeadingZeros is not consulted, so setting it to false keeps
// no zeros.
type Integer struct {
	*Character
	DropLeadingZeros bool
}

// NewInteger returns an [Integer] machine requiring at least one digit and
// at most limit digits (0 for unlimited).
func NewInteger(limit int) *Integer {
	return &Integer{Character: Digits(1, limit), DropLeadingZeros: true}
}

func (i *Integer) NewStepper(state *sm.StateID) []sm.Stepper {
	st := sm.StateID("0")
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&integerStepper{characterStepper: characterStepper{BaseStepper: sm.NewBaseStepper(i, st)}}}
}

type integerStepper struct {
	characterStepper
}

func (s *integerStepper) machine() *Integer { return s.StateMachine().(*Integer) }

func (s *integerStepper) Clone() sm.Stepper {
	return &integerStepper{characterStepper: characterStepper{BaseStepper: s.CloneBase(), count: s.count}}
}

func (s *integerStepper) Consume(token string) []sm.Stepper {
	base := &s.characterStepper
	nexts := base.Consume(token)
	out := make([]sm.Stepper, 0, len(nexts))
	for _, n := range nexts {
		cs := n.(*characterStepper)
		out = append(out, &integerStepper{characterStepper: *cs})
	}
	return out
}

func (s *integerStepper) CurrentValue() (string, any) {
	raw := s.RawConsumed()
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw, raw
	}
	return raw, v
}

func (s *integerStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*integerStepper)
	return ok && o.RawConsumed() == s.RawConsumed()
}

func (s *integerStepper) HashKey() string { return s.BaseHashKey("integer") }
