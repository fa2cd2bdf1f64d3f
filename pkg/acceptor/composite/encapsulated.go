package composite

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Encapsulated wraps inner between an opening and closing delimiter phrase,
// e.g. a JSON value between ```json and ``` fences. It is built from the
// same three-state shape as the original: wait for Open, run Inner, then
// require Close — expressed here directly as a [Chain] of
// [WaitFor](Open)/Inner/Close rather than reimplementing chaining, since
// Chain already provides exactly that sequencing.
type Encapsulated struct {
	chain *Chain
	Open  string
	Close string
}

// NewEncapsulated returns an [Encapsulated] machine requiring open before
// inner and close after it. minBufferLength delays considering the opening
// delimiter until that many bytes have been seen (see [WaitFor]).
func NewEncapsulated(open string, inner sm.StateMachine, close string, minBufferLength int) *Encapsulated {
	openPhrase := phraseMachine(open)
	closePhrase := phraseMachine(close)
	wait := NewWaitFor(openPhrase, true, minBufferLength)
	return &Encapsulated{
		chain: NewChain(wait, inner, closePhrase),
		Open:  open,
		Close: close,
	}
}

// phraseMachine builds an exact-match machine for a delimiter string without
// importing package acceptor, which would create an import cycle since
// acceptor itself imports composite.
func phraseMachine(text string) sm.StateMachine {
	return &literalPhrase{text: text}
}

// literalPhrase is a minimal case-sensitive exact-match machine, kept
// private to this file so Encapsulated has no hard dependency on package
// acceptor; production callers normally build Encapsulated with
// acceptor.NewPhrase directly via [NewEncapsulatedWith].
type literalPhrase struct{ text string }

func (p *literalPhrase) NewStepper(state *sm.StateID) []sm.Stepper {
	st := sm.StateID("0")
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&literalPhraseStepper{BaseStepper: sm.NewBaseStepper(p, st)}}
}
func (p *literalPhrase) Edges(sm.StateID) []sm.Edge     { return nil }
func (p *literalPhrase) StartState() sm.StateID         { return sm.StateID("0") }
func (p *literalPhrase) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (p *literalPhrase) IsOptional() bool               { return p.text == "" }
func (p *literalPhrase) CaseSensitive() bool            { return true }

type literalPhraseStepper struct{ sm.BaseStepper }

func (s *literalPhraseStepper) Clone() sm.Stepper {
	return &literalPhraseStepper{BaseStepper: s.CloneBase()}
}
func (s *literalPhraseStepper) Consume(token string) []sm.Stepper {
	text := s.StateMachine().(*literalPhrase).text
	already := s.RawConsumed()
	remaining := text[len(already):]
	n := 0
	for n < len(token) && n < len(remaining) && token[n] == remaining[n] {
		n++
	}
	if n == 0 {
		return nil
	}
	if n < len(token) && n < len(remaining) {
		return nil
	}
	next := &literalPhraseStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token[:n])
	next.SetRemaining(token[n:])
	if len(next.RawConsumed()) == len(text) {
		next.SetState(sm.EndState)
	}
	return []sm.Stepper{next}
}
func (s *literalPhraseStepper) CurrentValue() (string, any) { return s.RawConsumed(), s.RawConsumed() }
func (s *literalPhraseStepper) CanAcceptMoreInput() bool {
	return len(s.RawConsumed()) < len(s.StateMachine().(*literalPhrase).text)
}
func (s *literalPhraseStepper) IsWithinValue() bool { return s.RawConsumed() != "" }
func (s *literalPhraseStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*literalPhraseStepper)
	return ok && o.RawConsumed() == s.RawConsumed()
}
func (s *literalPhraseStepper) HashKey() string { return s.BaseHashKey("literal-phrase") }

// NewEncapsulatedWith builds an [Encapsulated] machine from explicit
// open/inner/close sub-machines, for callers (e.g. package schema) that
// already have an acceptor.Phrase for the delimiters and want to reuse it
// rather than go through the string-only [NewEncapsulated] constructor.
func NewEncapsulatedWith(open sm.StateMachine, inner sm.StateMachine, close sm.StateMachine, minBufferLength int) *Encapsulated {
	wait := NewWaitFor(open, true, minBufferLength)
	return &Encapsulated{chain: NewChain(wait, inner, close)}
}

func (e *Encapsulated) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, cs := range e.chain.NewStepper(state) {
		out = append(out, &encapsulatedStepper{inner: cs})
	}
	return out
}

func (e *Encapsulated) Edges(s sm.StateID) []sm.Edge     { return e.chain.Edges(s) }
func (e *Encapsulated) StartState() sm.StateID           { return e.chain.StartState() }
func (e *Encapsulated) EndStates() map[sm.StateID]bool   { return e.chain.EndStates() }
func (e *Encapsulated) IsOptional() bool                 { return false }
func (e *Encapsulated) CaseSensitive() bool               { return e.chain.CaseSensitive() }

// encapsulatedStepper delegates everything to the wrapped Chain stepper; it
// exists as a distinct type so GetTokenSafeOutput can be attached without
// polluting Chain's own API with delimiter-stripping semantics that only
// make sense for Encapsulated.
type encapsulatedStepper struct {
	inner sm.Stepper
}

func (s *encapsulatedStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *encapsulatedStepper) State() sm.StateID             { return s.inner.State() }
func (s *encapsulatedStepper) Clone() sm.Stepper {
	return &encapsulatedStepper{inner: s.inner.Clone()}
}
func (s *encapsulatedStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &encapsulatedStepper{inner: n})
	}
	return out
}
func (s *encapsulatedStepper) CurrentValue() (string, any)  { return s.inner.CurrentValue() }
func (s *encapsulatedStepper) HasReachedAcceptState() bool  { return s.inner.HasReachedAcceptState() }
func (s *encapsulatedStepper) CanAcceptMoreInput() bool     { return s.inner.CanAcceptMoreInput() }
func (s *encapsulatedStepper) IsWithinValue() bool          { return s.inner.IsWithinValue() }
func (s *encapsulatedStepper) Remaining() string            { return s.inner.Remaining() }
func (s *encapsulatedStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*encapsulatedStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *encapsulatedStepper) HashKey() string { return "enc|" + s.inner.HashKey() }

// GetTokenSafeOutput returns the raw text consumed so far with any trailing
// partial match of the closing delimiter (or leading partial match of the
// opening one) stripped, so a streaming caller can safely surface it as
// "confirmed" output without risking a delimiter fragment leaking into the
// displayed value. It tries decreasing-length prefix/suffix matches against
// Open/Close, exactly as the original's get_token_safe_output does.
func (e *Encapsulated) GetTokenSafeOutput(raw string) string {
	out := raw
	for n := len(e.Close) - 1; n > 0; n-- {
		if n > len(out) {
			continue
		}
		if out[len(out)-n:] == e.Close[:n] {
			out = out[:len(out)-n]
			break
		}
	}
	for n := len(e.Open) - 1; n > 0; n-- {
		if n > len(out) {
			continue
		}
		if out[:n] == e.Open[len(e.Open)-n:] {
			out = out[n:]
			break
		}
	}
	return out
}
