// Package grammar bridges the acceptor core to a real language interpreter,
// so a schema can embed a fenced code block (```python, ```bash, ...) whose
// contents are accepted only when the interpreter itself would accept them —
// rather than reimplementing a parser for each language.
//
// A [Grammar] is a character-sink [sm.StateMachine]: its stepper has no
// internal structure of its own, it just accumulates raw source and asks a
// [Validator] whether the accumulated text is (lenient) and is fully
// (strict) a valid program. It is meant to sit as the Inner machine of a
// [composite.Encapsulated], the same way any other value acceptor would.
package grammar

import (
	"context"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Verdict is the result of validating a source string.
type Verdict struct {
	// Accept reports whether source is valid under the requested strictness.
	Accept bool

	// Message carries the interpreter's diagnostic, if any, for logging —
	// never surfaced as a Go error since a rejected program is an expected,
	// not exceptional, outcome.
	Message string
}

// Validator checks whether source is a valid program in some language.
// strict=false ("lenient") must treat an incomplete-but-not-yet-wrong
// program (e.g. a dangling "if x:" block with its body not yet typed) as
// accepted, so the engine can keep streaming; strict=true is the final
// check run once the closing fence has been seen, and must reject anything
// that is not a complete, syntactically valid program.
//
// The returned error is reserved for validator infrastructure failures
// (interpreter not found, process timeout) — a syntactically invalid
// program is reported via Verdict.Accept=false, not an error.
type Validator interface {
	Validate(ctx context.Context, source string, strict bool) (Verdict, error)
}

// Grammar is a [sm.StateMachine] wrapping a named [Validator] as a
// character-sink acceptor, for use as the Inner machine of a
// [composite.Encapsulated] fence.
type Grammar struct {
	// Name labels the grammar in logs (e.g. "python", "bash").
	Name string

	validator Validator
	ctx       context.Context
}

// New returns a [Grammar] named name, delegating validation to v. ctx is
// threaded through to every [Validator.Validate] call (e.g. to carry a
// per-request deadline); callers not using a broader context may pass
// context.Background().
func New(name string, v Validator, ctx context.Context) *Grammar {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Grammar{Name: name, validator: v, ctx: ctx}
}

func (g *Grammar) NewStepper(state *sm.StateID) []sm.Stepper {
	st := sm.StateID("0")
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&grammarStepper{BaseStepper: sm.NewBaseStepper(g, st)}}
}

func (g *Grammar) Edges(sm.StateID) []sm.Edge     { return nil }
func (g *Grammar) StartState() sm.StateID         { return sm.StateID("0") }
func (g *Grammar) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (g *Grammar) IsOptional() bool               { return false }
func (g *Grammar) CaseSensitive() bool            { return true }

type grammarStepper struct {
	sm.BaseStepper
}

func (s *grammarStepper) machine() *Grammar { return s.StateMachine().(*Grammar) }

func (s *grammarStepper) Clone() sm.Stepper {
	return &grammarStepper{BaseStepper: s.CloneBase()}
}

// Consume appends token and asks the validator's lenient mode whether the
// resulting source is still a valid-so-far program ("should_start_step" in
// spec terms). A lenient rejection kills the branch outright.
func (s *grammarStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	candidate := s.RawConsumed() + token

	verdict, err := m.validator.Validate(m.ctx, candidate, false)
	if err != nil || !verdict.Accept {
		return nil
	}

	next := &grammarStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token)
	return []sm.Stepper{next}
}

func (s *grammarStepper) CurrentValue() (string, any) {
	return s.RawConsumed(), s.RawConsumed()
}

// HasReachedAcceptState runs the validator's strict mode against the
// accumulated source ("should_complete_step"): this is what lets an
// enclosing Chain decide the closing fence delimiter may now be tried.
func (s *grammarStepper) HasReachedAcceptState() bool {
	if s.RawConsumed() == "" {
		return false
	}
	m := s.machine()
	verdict, err := m.validator.Validate(m.ctx, s.RawConsumed(), true)
	return err == nil && verdict.Accept
}

func (s *grammarStepper) CanAcceptMoreInput() bool { return true }

func (s *grammarStepper) IsWithinValue() bool { return s.RawConsumed() != "" }

func (s *grammarStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*grammarStepper)
	return ok && o.RawConsumed() == s.RawConsumed()
}

func (s *grammarStepper) HashKey() string {
	return s.BaseHashKey("grammar")
}
