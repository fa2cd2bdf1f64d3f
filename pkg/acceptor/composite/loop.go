package composite

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Loop is a [sm.StateMachine] that repeats inner zero-or-more (or, with
// MinRepeats/MaxRepeats, a bounded number of) times. Optionally a Separator
// machine is consumed between repetitions (e.g. `,` between JSON array
// elements) — when Separator is nil, repetitions are back-to-back.
type Loop struct {
	Inner       sm.StateMachine
	Separator   sm.StateMachine
	MinRepeats  int
	MaxRepeats  int // 0 means unbounded
}

// NewLoop returns a [Loop] repeating inner at least min and at most max
// times (max of 0 meaning unbounded), separated by sep (nil for none).
func NewLoop(inner sm.StateMachine, sep sm.StateMachine, min, max int) *Loop {
	return &Loop{Inner: inner, Separator: sep, MinRepeats: min, MaxRepeats: max}
}

func (l *Loop) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, inner := range l.Inner.NewStepper(nil) {
		out = append(out, &loopStepper{
			BaseStepper: sm.NewBaseStepper(l, sm.StateID("body")),
			inner:       []sm.Stepper{inner},
			repeats:     0,
		})
	}
	if l.MinRepeats == 0 {
		// Zero repetitions is itself already a valid completion.
		out = append(out, &loopStepper{
			BaseStepper: sm.NewBaseStepper(l, sm.EndState),
			repeats:     0,
		})
	}
	return out
}

func (l *Loop) Edges(sm.StateID) []sm.Edge     { return nil }
func (l *Loop) StartState() sm.StateID         { return sm.StateID("body") }
func (l *Loop) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (l *Loop) IsOptional() bool               { return l.MinRepeats == 0 }
func (l *Loop) CaseSensitive() bool            { return l.Inner.CaseSensitive() }

type loopStepper struct {
	sm.BaseStepper
	inner       []sm.Stepper // nil when waiting for a separator
	waitingSep  []sm.Stepper
	repeats     int
	completed   []any // values of repetitions already finished, oldest first
}

func (s *loopStepper) machine() *Loop { return s.StateMachine().(*Loop) }

func (s *loopStepper) Clone() sm.Stepper {
	next := &loopStepper{BaseStepper: s.CloneBase(), repeats: s.repeats, completed: append([]any(nil), s.completed...)}
	for _, in := range s.inner {
		next.inner = append(next.inner, in.Clone())
	}
	for _, in := range s.waitingSep {
		next.waitingSep = append(next.waitingSep, in.Clone())
	}
	return next
}

func (s *loopStepper) Consume(token string) []sm.Stepper {
	if len(s.waitingSep) > 0 {
		advanced := sm.AdvanceAllBasic(s.waitingSep, token)
		var out []sm.Stepper
		for _, a := range advanced {
			consumed := token
			if rem := a.Remaining(); rem != "" {
				consumed = token[:len(token)-len(rem)]
			}
			out = append(out, s.advanceSep(a, consumed)...)
		}
		return out
	}

	if len(s.inner) == 0 {
		return nil
	}
	advanced := sm.AdvanceAllBasic(s.inner, token)
	var out []sm.Stepper
	for _, a := range advanced {
		consumed := token
		if rem := a.Remaining(); rem != "" {
			consumed = token[:len(token)-len(rem)]
		}
		out = append(out, s.advanceBody(a, consumed, s.repeats)...)
	}
	return out
}

// advanceSep handles a separator stepper a that has just consumed consumed
// (a prefix of the triggering token). Any leftover (a.Remaining()) never
// belonged to the separator — it is cascaded straight into the next
// repetition of Inner.
func (s *loopStepper) advanceSep(a sm.Stepper, consumed string) []sm.Stepper {
	m := s.machine()
	remaining := a.Remaining()
	var out []sm.Stepper

	if a.HasReachedAcceptState() {
		for _, inner := range m.Inner.NewStepper(nil) {
			if remaining == "" {
				next := &loopStepper{BaseStepper: s.CloneBase(), inner: []sm.Stepper{inner}, repeats: s.repeats, completed: append([]any(nil), s.completed...)}
				next.SetState(sm.StateID("body"))
				next.AppendRaw(consumed)
				out = append(out, next)
				continue
			}
			for _, advancedInner := range inner.Consume(remaining) {
				innerConsumed := remaining
				if rem := advancedInner.Remaining(); rem != "" {
					innerConsumed = remaining[:len(remaining)-len(rem)]
				}
				base := &loopStepper{BaseStepper: s.CloneBase(), repeats: s.repeats, completed: append([]any(nil), s.completed...)}
				out = append(out, base.advanceBody(advancedInner, consumed+innerConsumed, s.repeats)...)
			}
		}
	}
	if a.CanAcceptMoreInput() {
		next := &loopStepper{BaseStepper: s.CloneBase(), waitingSep: []sm.Stepper{a}, repeats: s.repeats, completed: append([]any(nil), s.completed...)}
		next.AppendRaw(consumed)
		next.SetRemaining(remaining)
		out = append(out, next)
	}
	return out
}

// advanceBody handles an Inner stepper a that has just consumed consumed.
// Leftover (a.Remaining()) is cascaded into the separator, or directly into
// the next repetition of Inner when there is none, within this same
// Consume call — otherwise a single real token spanning the end of one
// repetition and the start of the next would be dropped.
func (s *loopStepper) advanceBody(a sm.Stepper, consumed string, repeatsBefore int) []sm.Stepper {
	m := s.machine()
	remaining := a.Remaining()
	var out []sm.Stepper

	if !a.HasReachedAcceptState() {
		next := &loopStepper{BaseStepper: s.CloneBase(), inner: []sm.Stepper{a}, repeats: repeatsBefore, completed: append([]any(nil), s.completed...)}
		next.AppendRaw(consumed)
		next.SetRemaining(remaining)
		return []sm.Stepper{next}
	}

	repeats := repeatsBefore + 1
	_, aValue := a.CurrentValue()
	advancedCompleted := append(append([]any(nil), s.completed...), aValue)

	if a.CanAcceptMoreInput() {
		stay := &loopStepper{BaseStepper: s.CloneBase(), inner: []sm.Stepper{a}, repeats: repeatsBefore, completed: append([]any(nil), s.completed...)}
		stay.AppendRaw(consumed)
		stay.SetRemaining(remaining)
		out = append(out, stay)
	}

	if m.MaxRepeats == 0 || repeats < m.MaxRepeats {
		switch {
		case remaining == "":
			if m.Separator != nil {
				next := &loopStepper{
					BaseStepper: s.CloneBase(),
					waitingSep:  m.Separator.NewStepper(nil),
					repeats:     repeats,
					completed:   append([]any(nil), advancedCompleted...),
				}
				next.AppendRaw(consumed)
				out = append(out, next)
			} else {
				for _, inner := range m.Inner.NewStepper(nil) {
					next := &loopStepper{BaseStepper: s.CloneBase(), inner: []sm.Stepper{inner}, repeats: repeats, completed: append([]any(nil), advancedCompleted...)}
					next.AppendRaw(consumed)
					out = append(out, next)
				}
			}
		case m.Separator != nil:
			for _, sep := range m.Separator.NewStepper(nil) {
				for _, advancedSep := range sep.Consume(remaining) {
					sepConsumed := remaining
					if rem := advancedSep.Remaining(); rem != "" {
						sepConsumed = remaining[:len(remaining)-len(rem)]
					}
					next := &loopStepper{BaseStepper: s.CloneBase(), repeats: repeats, completed: append([]any(nil), advancedCompleted...)}
					next.AppendRaw(consumed)
					out = append(out, next.advanceSep(advancedSep, sepConsumed)...)
				}
			}
		default:
			for _, inner := range m.Inner.NewStepper(nil) {
				for _, advancedInner := range inner.Consume(remaining) {
					innerConsumed := remaining
					if rem := advancedInner.Remaining(); rem != "" {
						innerConsumed = remaining[:len(remaining)-len(rem)]
					}
					next := &loopStepper{BaseStepper: s.CloneBase(), repeats: repeats, completed: append([]any(nil), advancedCompleted...)}
					next.AppendRaw(consumed)
					out = append(out, next.advanceBody(advancedInner, innerConsumed, repeats)...)
				}
			}
		}
	}

	if repeats >= m.MinRepeats {
		done := &loopStepper{BaseStepper: s.CloneBase(), repeats: repeats, completed: append([]any(nil), advancedCompleted...)}
		done.SetState(sm.EndState)
		done.AppendRaw(consumed)
		done.SetRemaining(remaining)
		out = append(out, done)
	}
	return out
}

func (s *loopStepper) CurrentValue() (string, any) {
	raw := s.RawConsumed()
	values := append([]any(nil), s.completed...)
	for _, in := range s.inner {
		if _, v := in.CurrentValue(); v != nil {
			values = append(values, v)
		}
	}
	return raw, values
}

func (s *loopStepper) HasReachedAcceptState() bool {
	return s.State() == sm.EndState || s.repeats >= s.machine().MinRepeats
}

func (s *loopStepper) CanAcceptMoreInput() bool {
	m := s.machine()
	return m.MaxRepeats == 0 || s.repeats < m.MaxRepeats || len(s.inner) > 0 || len(s.waitingSep) > 0
}

func (s *loopStepper) IsWithinValue() bool {
	for _, in := range s.inner {
		if in.IsWithinValue() {
			return true
		}
	}
	return false
}

func (s *loopStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*loopStepper)
	if !ok || o.repeats != s.repeats || o.RawConsumed() != s.RawConsumed() || o.State() != s.State() {
		return false
	}
	if len(o.inner) != len(s.inner) || len(o.waitingSep) != len(s.waitingSep) {
		return false
	}
	for i := range s.inner {
		if !s.inner[i].Equal(o.inner[i]) {
			return false
		}
	}
	return true
}

func (s *loopStepper) HashKey() string {
	key := s.BaseHashKey("loop") + "|" + itoa(s.repeats)
	for _, in := range s.inner {
		key += "|i:" + in.HashKey()
	}
	for _, in := range s.waitingSep {
		key += "|s:" + in.HashKey()
	}
	return key
}
