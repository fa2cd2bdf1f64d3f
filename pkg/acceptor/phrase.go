// Package acceptor implements the primitive state machines (C1 in the
// engine's component map): exact phrases, character classes, whitespace
// runs, and the numeric/string leaf acceptors used throughout pkg/jsonvalue
// and pkg/schema.
package acceptor

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Phrase is a [sm.StateMachine] that accepts exactly one fixed string,
// consumed incrementally across however many tokens a sampler happens to
// produce. Matching is case-sensitive unless built with [NewPhraseFold].
type Phrase struct {
	text          string
	caseSensitive bool
}

// NewPhrase returns a [Phrase] machine matching text exactly.
func NewPhrase(text string) *Phrase {
	return &Phrase{text: text, caseSensitive: true}
}

// NewPhraseFold returns a [Phrase] machine matching text case-insensitively.
func NewPhraseFold(text string) *Phrase {
	return &Phrase{text: text, caseSensitive: false}
}

func (p *Phrase) NewStepper(state *sm.StateID) []sm.Stepper {
	st := sm.StateID("0")
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&phraseStepper{BaseStepper: sm.NewBaseStepper(p, st)}}
}

func (p *Phrase) Edges(sm.StateID) []sm.Edge     { return nil }
func (p *Phrase) StartState() sm.StateID         { return sm.StateID("0") }
func (p *Phrase) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (p *Phrase) IsOptional() bool               { return p.text == "" }
func (p *Phrase) CaseSensitive() bool            { return p.caseSensitive }

// Text returns the phrase this machine matches.
func (p *Phrase) Text() string { return p.text }

type phraseStepper struct {
	sm.BaseStepper
}

func (s *phraseStepper) machine() *Phrase { return s.StateMachine().(*Phrase) }

func (s *phraseStepper) Clone() sm.Stepper {
	return &phraseStepper{BaseStepper: s.CloneBase()}
}

// matchLength returns the length of the longest prefix of token that equals
// the corresponding slice of the remaining phrase text, honoring case
// sensitivity.
func matchLength(a, b string, caseSensitive bool) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ca, cb := a[i], b[i]
		if !caseSensitive {
			ca = foldByte(ca)
			cb = foldByte(cb)
		}
		if ca != cb {
			return i
		}
	}
	return n
}

func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func (s *phraseStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	already := s.RawConsumed()
	remaining := m.text[len(already):]
	if remaining == "" || token == "" {
		return nil
	}
	n := matchLength(token, remaining, m.caseSensitive)
	if n == 0 {
		return nil
	}
	if n < len(token) && n < len(remaining) {
		// The next character genuinely diverges from the phrase (as opposed
		// to the token simply running out mid-phrase); it can never be part
		// of this phrase, so the whole token is rejected.
		return nil
	}
	next := &phraseStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token[:n])
	next.SetRemaining(token[n:])
	if len(next.RawConsumed()) == len(m.text) {
		next.SetState(sm.EndState)
	}
	return []sm.Stepper{next}
}

func (s *phraseStepper) CurrentValue() (string, any) {
	return s.RawConsumed(), s.RawConsumed()
}

func (s *phraseStepper) CanAcceptMoreInput() bool {
	return len(s.RawConsumed()) < len(s.machine().text)
}

func (s *phraseStepper) IsWithinValue() bool {
	return s.RawConsumed() != "" && s.CanAcceptMoreInput()
}

func (s *phraseStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*phraseStepper)
	return ok && o.machine().text == s.machine().text && o.RawConsumed() == s.RawConsumed()
}

func (s *phraseStepper) HashKey() string {
	return s.BaseHashKey("phrase:" + s.machine().text)
}

// ValidPrefix reports whether prefix is a prefix of this phrase, honoring
// its case sensitivity — a cheap viability check that needs no stepper.
func (p *Phrase) ValidPrefix(prefix string) bool {
	if len(prefix) > len(p.text) {
		return false
	}
	return matchLength(prefix, p.text, p.caseSensitive) == len(prefix)
}
