// Package composite implements the C2 composite acceptors: sequential
// chains, bounded/unbounded loops, lazy delimiter waiting, and delimiter
// encapsulation. Each wraps one or more inner [sm.StateMachine] values and
// drives them through [sm.AdvanceAllBasic] rather than duplicating the
// merge-by-equality logic itself.
package composite

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Chain is a [sm.StateMachine] that accepts its sub-machines strictly in
// sequence: machines[0] must reach an accept state before machines[1] may
// begin, and so on. The chain itself reaches an accept state only once
// every sub-machine has.
type Chain struct {
	machines []sm.StateMachine
}

// NewChain returns a [Chain] over machines, accepted in order.
func NewChain(machines ...sm.StateMachine) *Chain {
	return &Chain{machines: machines}
}

func (c *Chain) NewStepper(state *sm.StateID) []sm.Stepper {
	idx := 0
	if state != nil {
		if n, ok := parseIndex(*state); ok {
			idx = n
		}
	}
	if idx >= len(c.machines) {
		return []sm.Stepper{&chainStepper{BaseStepper: sm.NewBaseStepper(c, sm.EndState), index: idx}}
	}
	out := make([]sm.Stepper, 0, 1)
	for _, inner := range c.machines[idx].NewStepper(nil) {
		out = append(out, &chainStepper{
			BaseStepper: sm.NewBaseStepper(c, sm.StateID(itoa(idx))),
			index:       idx,
			inner:       []sm.Stepper{inner},
		})
	}
	return out
}

func (c *Chain) Edges(sm.StateID) []sm.Edge { return nil }
func (c *Chain) StartState() sm.StateID     { return sm.StateID("0") }
func (c *Chain) EndStates() map[sm.StateID]bool {
	return map[sm.StateID]bool{sm.StateID(itoa(len(c.machines))): true}
}
func (c *Chain) IsOptional() bool { return len(c.machines) == 0 }
func (c *Chain) CaseSensitive() bool {
	for _, m := range c.machines {
		if !m.CaseSensitive() {
			return false
		}
	}
	return true
}

type chainStepper struct {
	sm.BaseStepper
	index int
	inner []sm.Stepper
}

func (s *chainStepper) machine() *Chain { return s.StateMachine().(*Chain) }

func (s *chainStepper) Clone() sm.Stepper {
	innerClone := make([]sm.Stepper, len(s.inner))
	for i, in := range s.inner {
		innerClone[i] = in.Clone()
	}
	return &chainStepper{BaseStepper: s.CloneBase(), index: s.index, inner: innerClone}
}

func (s *chainStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	if s.index >= len(m.machines) {
		return nil
	}
	advanced := sm.AdvanceAllBasic(s.inner, token)
	out := make([]sm.Stepper, 0, len(advanced))
	for _, a := range advanced {
		consumed := token
		if rem := a.Remaining(); rem != "" {
			consumed = token[:len(token)-len(rem)]
		}
		out = append(out, s.advanceStage(s.index, a, consumed)...)
	}
	return out
}

// advanceStage expands one already-advanced inner stepper a (driven on
// consumed, a substring of the original token) into the resulting
// chain-level stepper(s). When a left a nonempty Remaining(), that suffix
// never belonged to this link at all — it is cascaded into however many
// further links are needed to use it up, within this same Consume call, the
// same way a real tokenizer's single token can span several grammar
// elements at once.
func (s *chainStepper) advanceStage(index int, a sm.Stepper, consumed string) []sm.Stepper {
	m := s.machine()
	remaining := a.Remaining()
	var out []sm.Stepper

	if !a.HasReachedAcceptState() {
		next := &chainStepper{BaseStepper: s.CloneBase(), index: index, inner: []sm.Stepper{a}}
		next.AppendRaw(consumed)
		return []sm.Stepper{next}
	}

	// This sub-machine is done; either advance to the next link or, if it
	// can still accept more input too (optional trailing content), keep
	// both branches alive — the same accept-but-can-continue nondeterminism
	// every acceptor here exhibits.
	if a.CanAcceptMoreInput() && remaining == "" {
		stay := &chainStepper{BaseStepper: s.CloneBase(), index: index, inner: []sm.Stepper{a}}
		stay.AppendRaw(consumed)
		out = append(out, stay)
	}

	if index+1 >= len(m.machines) {
		next := &chainStepper{BaseStepper: s.CloneBase(), index: index + 1}
		next.AppendRaw(consumed)
		next.SetState(sm.EndState)
		next.SetRemaining(remaining)
		out = append(out, next)
		return out
	}

	for _, ninner := range m.machines[index+1].NewStepper(nil) {
		if remaining == "" {
			next := &chainStepper{
				BaseStepper: s.CloneBase(),
				index:       index + 1,
				inner:       []sm.Stepper{ninner},
			}
			next.AppendRaw(consumed)
			next.SetState(sm.StateID(itoa(index + 1)))
			out = append(out, next)
			continue
		}
		for _, advancedNext := range ninner.Consume(remaining) {
			nextConsumed := consumed + remaining
			if rem := advancedNext.Remaining(); rem != "" {
				nextConsumed = consumed + remaining[:len(remaining)-len(rem)]
			}
			out = append(out, s.advanceStage(index+1, advancedNext, nextConsumed)...)
		}
	}
	return out
}

func (s *chainStepper) CurrentValue() (string, any) {
	raw := s.RawConsumed()
	values := make([]any, 0, len(s.inner))
	for _, in := range s.inner {
		_, v := in.CurrentValue()
		values = append(values, v)
	}
	if len(values) == 1 {
		return raw, values[0]
	}
	return raw, values
}

func (s *chainStepper) HasReachedAcceptState() bool {
	return s.index >= len(s.machine().machines)
}

func (s *chainStepper) CanAcceptMoreInput() bool {
	if s.index < len(s.machine().machines) {
		return true
	}
	return false
}

func (s *chainStepper) IsWithinValue() bool {
	for _, in := range s.inner {
		if in.IsWithinValue() {
			return true
		}
	}
	return false
}

func (s *chainStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*chainStepper)
	if !ok || o.index != s.index || o.RawConsumed() != s.RawConsumed() || len(o.inner) != len(s.inner) {
		return false
	}
	for i := range s.inner {
		if !s.inner[i].Equal(o.inner[i]) {
			return false
		}
	}
	return true
}

func (s *chainStepper) HashKey() string {
	key := s.BaseHashKey("chain") + "|" + itoa(s.index)
	for _, in := range s.inner {
		key += "|" + in.HashKey()
	}
	return key
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func parseIndex(s sm.StateID) (int, bool) {
	str := string(s)
	if str == "" {
		return 0, false
	}
	n := 0
	for _, c := range str {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
