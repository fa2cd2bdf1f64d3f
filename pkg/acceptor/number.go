package acceptor

import (
	"strconv"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Number states, following the original grammar's layout: an optional
// leading sign, a mandatory integer part, an optional fractional part, and
// an optional exponent (itself an 'e'/'E', an optional sign, then digits).
const (
	numStart    sm.StateID = "0" // optional '-'
	numInteger  sm.StateID = "1" // one or more digits
	numFraction sm.StateID = "2" // '.' + digits, an end state
	numExpLead  sm.StateID = "3" // 'e'/'E', also an end state (pre-exponent)
	numExpSign  sm.StateID = "4" // optional '+'/'-'
	numExpDigit sm.StateID = "5" // one or more exponent digits
)

// Number is a [sm.StateMachine] accepting a JSON-style number literal:
// `-?[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`, materialised as a float64 (or an
// int64 when no fractional/exponent part was present, mirroring how the
// original distinguishes an Integer leaf from a Number leaf by shape rather
// than by declared schema type).
type Number struct{}

// NewNumber returns a [Number] machine.
func NewNumber() *Number { return &Number{} }

func (n *Number) NewStepper(state *sm.StateID) []sm.Stepper {
	st := numStart
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&numberStepper{BaseStepper: sm.NewBaseStepper(n, st)}}
}

func (n *Number) Edges(sm.StateID) []sm.Edge { return nil }
func (n *Number) StartState() sm.StateID     { return numStart }
func (n *Number) EndStates() map[sm.StateID]bool {
	return map[sm.StateID]bool{numFraction: true, numExpLead: true, numExpDigit: true}
}
func (n *Number) IsOptional() bool    { return false }
func (n *Number) CaseSensitive() bool { return true }

// numAcceptingStates are the states from which a Number stepper is already
// willing to stop, even though it might also extend further given more
// input (accept-but-can-continue, same as every other acceptor here).
var numAcceptingStates = map[sm.StateID]bool{
	numInteger: true, numFraction: true, numExpLead: true, numExpDigit: true,
}

type numberStepper struct {
	sm.BaseStepper
}

func (s *numberStepper) Clone() sm.Stepper {
	return &numberStepper{BaseStepper: s.CloneBase()}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// done returns a stepper identical to s but with remaining recorded as
// whatever of token this state could not use — used whenever the current
// state is already accepting and the token doesn't extend the number
// further, so an enclosing Chain/Loop can try the remainder against
// whatever comes next.
func (s *numberStepper) done(token string) []sm.Stepper {
	if !numAcceptingStates[s.State()] {
		return nil
	}
	next := &numberStepper{BaseStepper: s.CloneBase()}
	next.SetRemaining(token)
	return []sm.Stepper{next}
}

func (s *numberStepper) Consume(token string) []sm.Stepper {
	state := s.State()
	if token == "" {
		return nil
	}

	consumeRun := func(pred func(byte) bool, from int) int {
		n := from
		for n < len(token) && pred(token[n]) {
			n++
		}
		return n
	}

	switch state {
	case numStart:
		i := 0
		if token[0] == '-' {
			i = 1
		}
		end := consumeRun(isDigit, i)
		if end == i {
			return nil
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:end])
		next.SetState(numInteger)
		out := []sm.Stepper{next}
		if end < len(token) {
			out = append(out, next.Consume(token[end:])...)
		}
		return out

	case numInteger:
		if token[0] == '.' {
			end := consumeRun(isDigit, 1)
			if end <= 1 {
				return s.done(token)
			}
			next := &numberStepper{BaseStepper: s.CloneBase()}
			next.AppendRaw(token[:end])
			next.SetState(numFraction)
			out := []sm.Stepper{next}
			if end < len(token) {
				out = append(out, next.Consume(token[end:])...)
			}
			return out
		}
		if token[0] == 'e' || token[0] == 'E' {
			return consumeExponentStart(s, token)
		}
		end := consumeRun(isDigit, 0)
		if end == 0 {
			return s.done(token)
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:end])
		next.SetState(numInteger)
		out := []sm.Stepper{next}
		if end < len(token) {
			out = append(out, next.Consume(token[end:])...)
		}
		return out

	case numFraction:
		if token[0] == 'e' || token[0] == 'E' {
			return consumeExponentStart(s, token)
		}
		end := consumeRun(isDigit, 0)
		if end == 0 {
			return s.done(token)
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:end])
		next.SetState(numFraction)
		out := []sm.Stepper{next}
		if end < len(token) {
			out = append(out, next.Consume(token[end:])...)
		}
		return out

	case numExpLead:
		return consumeExponentSign(s, token)

	case numExpSign:
		end := consumeRun(isDigit, 0)
		if end == 0 {
			return nil
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:end])
		next.SetState(numExpDigit)
		out := []sm.Stepper{next}
		if end < len(token) {
			out = append(out, next.Consume(token[end:])...)
		}
		return out

	case numExpDigit:
		end := consumeRun(isDigit, 0)
		if end == 0 {
			return s.done(token)
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:end])
		next.SetState(numExpDigit)
		out := []sm.Stepper{next}
		if end < len(token) {
			out = append(out, next.Consume(token[end:])...)
		}
		return out
	}
	return nil
}

func consumeExponentStart(s *numberStepper, token string) []sm.Stepper {
	// 'e'/'E' only makes sense to consume from an already-accepting state;
	// if there's nothing after it this token contributes just the letter.
	next := &numberStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token[:1])
	next.SetState(numExpLead)
	out := []sm.Stepper{next}
	if len(token) > 1 {
		out = append(out, consumeExponentSign(next, token[1:])...)
	}
	return out
}

func consumeExponentSign(s *numberStepper, token string) []sm.Stepper {
	if token == "" {
		return nil
	}
	i := 0
	if token[0] == '+' || token[0] == '-' {
		i = 1
	}
	end := i
	for end < len(token) && isDigit(token[end]) {
		end++
	}
	if end == i {
		if i == 0 {
			// Not a sign and not a digit: the exponent never started, so the
			// whole attempt to extend past 'e'/'E' fails. The caller already
			// has the numExpLead-state stepper as an accepting fallback.
			return nil
		}
		next := &numberStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:1])
		next.SetState(numExpSign)
		return []sm.Stepper{next}
	}
	next := &numberStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token[:end])
	next.SetState(numExpDigit)
	out := []sm.Stepper{next}
	if end < len(token) {
		out = append(out, next.Consume(token[end:])...)
	}
	return out
}

func (s *numberStepper) CurrentValue() (string, any) {
	raw := s.RawConsumed()
	if s.State() == numInteger {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return raw, v
		}
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return raw, v
	}
	return raw, raw
}

func (s *numberStepper) HasReachedAcceptState() bool {
	if numAcceptingStates[s.State()] {
		return true
	}
	return s.BaseStepper.HasReachedAcceptState()
}

func (s *numberStepper) CanAcceptMoreInput() bool {
	return s.State() != sm.EndState
}

func (s *numberStepper) IsWithinValue() bool { return s.RawConsumed() != "" }

func (s *numberStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*numberStepper)
	return ok && o.State() == s.State() && o.RawConsumed() == s.RawConsumed()
}

func (s *numberStepper) HashKey() string { return s.BaseHashKey("number") }
