package composite

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// WaitFor is a [sm.StateMachine] that discards arbitrary input until its
// inner machine becomes viable, then delegates to it — used to let a model
// "think out loud" in free text before an enclosed structured value begins
// (e.g. prose before a fenced JSON block).
//
// AllowBreak controls whether accumulation may continue once the inner
// machine has started matching but a token breaks that match: true keeps
// discarding (treating the partial match as a false start), false commits
// to the inner branch once started. MinLengthBeforeTrigger delays
// considering the inner machine at all until at least that many bytes have
// been discarded, mirroring the original's buffer_length knob used to avoid
// matching a delimiter that appears too early to be meaningful.
type WaitFor struct {
	Inner                  sm.StateMachine
	AllowBreak             bool
	MinLengthBeforeTrigger int
}

// NewWaitFor returns a [WaitFor] machine wrapping inner.
func NewWaitFor(inner sm.StateMachine, allowBreak bool, minLen int) *WaitFor {
	return &WaitFor{Inner: inner, AllowBreak: allowBreak, MinLengthBeforeTrigger: minLen}
}

func (w *WaitFor) NewStepper(state *sm.StateID) []sm.Stepper {
	return []sm.Stepper{&waitForStepper{BaseStepper: sm.NewBaseStepper(w, sm.StateID("0"))}}
}

func (w *WaitFor) Edges(sm.StateID) []sm.Edge     { return nil }
func (w *WaitFor) StartState() sm.StateID         { return sm.StateID("0") }
func (w *WaitFor) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (w *WaitFor) IsOptional() bool               { return false }
func (w *WaitFor) CaseSensitive() bool            { return w.Inner.CaseSensitive() }

type waitForStepper struct {
	sm.BaseStepper
	beforeTrigger string
	triggered     []sm.Stepper // non-nil once the inner machine has started
}

func (s *waitForStepper) machine() *WaitFor { return s.StateMachine().(*WaitFor) }

func (s *waitForStepper) Clone() sm.Stepper {
	next := &waitForStepper{BaseStepper: s.CloneBase(), beforeTrigger: s.beforeTrigger}
	for _, t := range s.triggered {
		next.triggered = append(next.triggered, t.Clone())
	}
	return next
}

func (s *waitForStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	var out []sm.Stepper

	if s.triggered != nil {
		advanced := sm.AdvanceAllBasic(s.triggered, token)
		for _, a := range advanced {
			consumed := token
			remaining := a.Remaining()
			if remaining != "" {
				consumed = token[:len(token)-len(remaining)]
			}
			next := &waitForStepper{BaseStepper: s.CloneBase(), beforeTrigger: s.beforeTrigger, triggered: []sm.Stepper{a}}
			next.AppendRaw(consumed)
			if a.HasReachedAcceptState() {
				next.SetState(sm.EndState)
				next.SetRemaining(remaining)
			}
			out = append(out, next)
		}
		if len(out) > 0 {
			return out
		}
		if !m.AllowBreak {
			return nil
		}
		// Fall through: the inner match broke and breaking is allowed, so
		// resume discarding from scratch.
	}

	discarding := &waitForStepper{
		BaseStepper:   s.CloneBase(),
		beforeTrigger: s.beforeTrigger + token,
	}
	out = append(out, discarding)

	if len(s.beforeTrigger) >= m.MinLengthBeforeTrigger {
		for _, inner := range m.Inner.NewStepper(nil) {
			if started := inner.Consume(token); len(started) > 0 {
				for _, a := range started {
					triggeredStep := &waitForStepper{
						BaseStepper:   s.CloneBase(),
						beforeTrigger: s.beforeTrigger,
						triggered:     []sm.Stepper{a},
					}
					if a.HasReachedAcceptState() {
						triggeredStep.SetState(sm.EndState)
						triggeredStep.SetRemaining(a.Remaining())
					}
					out = append(out, triggeredStep)
				}
			}
		}
	}
	return out
}

func (s *waitForStepper) CurrentValue() (string, any) {
	if s.triggered != nil {
		_, v := s.triggered[0].CurrentValue()
		return s.beforeTrigger, v
	}
	return s.beforeTrigger, nil
}

func (s *waitForStepper) HasReachedAcceptState() bool {
	if s.triggered == nil {
		return false
	}
	return s.triggered[0].HasReachedAcceptState()
}

func (s *waitForStepper) CanAcceptMoreInput() bool { return true }

func (s *waitForStepper) IsWithinValue() bool {
	return s.triggered != nil && s.triggered[0].IsWithinValue()
}

func (s *waitForStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*waitForStepper)
	if !ok || o.beforeTrigger != s.beforeTrigger {
		return false
	}
	if (s.triggered == nil) != (o.triggered == nil) {
		return false
	}
	if s.triggered != nil && !s.triggered[0].Equal(o.triggered[0]) {
		return false
	}
	return true
}

func (s *waitForStepper) HashKey() string {
	key := s.BaseHashKey("waitfor") + "|" + s.beforeTrigger
	if s.triggered != nil {
		key += "|t:" + s.triggered[0].HashKey()
	}
	return key
}
