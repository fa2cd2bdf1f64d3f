package acceptor

import (
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Character is a [sm.StateMachine] that greedily accepts a run of runes
// drawn from (or excluded from) a character set, bounded by CharMin and
// CharLimit. Rune-based sets are used instead of Go strings so multi-byte
// code points are handled correctly — unlike Python's str/set of
// single-character strings, a Go byte range would split UTF-8 sequences.
type Character struct {
	// Allowed, when non-nil, is the exhaustive set of permitted runes. A nil
	// Allowed set means "any rune not explicitly disallowed".
	Allowed map[rune]bool

	// Disallowed excludes runes even when Allowed is nil (any-character
	// mode) or when Allowed also permits them (Disallowed wins).
	Disallowed map[rune]bool

	// CharMin is the minimum number of runes that must be consumed before
	// the stepper is considered to have reached an accept state.
	CharMin int

	// CharLimit caps how many runes may be consumed; 0 means unlimited.
	CharLimit int

	caseSensitive bool
}

// NewCharacter returns a [Character] machine restricted to allowed, with at
// least min and at most limit runes (limit of 0 meaning unlimited).
func NewCharacter(allowed []rune, min, limit int) *Character {
	c := &Character{CharMin: min, CharLimit: limit, caseSensitive: true}
	if allowed != nil {
		c.Allowed = make(map[rune]bool, len(allowed))
		for _, r := range allowed {
			c.Allowed[r] = true
		}
	}
	return c
}

// NewAnyCharacter returns a [Character] machine accepting any rune except
// those in disallowed, with at least min and at most limit runes.
func NewAnyCharacter(disallowed []rune, min, limit int) *Character {
	c := &Character{CharMin: min, CharLimit: limit, caseSensitive: true}
	if disallowed != nil {
		c.Disallowed = make(map[rune]bool, len(disallowed))
		for _, r := range disallowed {
			c.Disallowed[r] = true
		}
	}
	return c
}

func (c *Character) accepts(r rune) bool {
	if c.Disallowed != nil && c.Disallowed[r] {
		return false
	}
	if c.Allowed != nil {
		return c.Allowed[r]
	}
	return true
}

func (c *Character) NewStepper(state *sm.StateID) []sm.Stepper {
	st := sm.StateID("0")
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&characterStepper{BaseStepper: sm.NewBaseStepper(c, st)}}
}

func (c *Character) Edges(sm.StateID) []sm.Edge     { return nil }
func (c *Character) StartState() sm.StateID         { return sm.StateID("0") }
func (c *Character) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (c *Character) IsOptional() bool               { return c.CharMin == 0 }
func (c *Character) CaseSensitive() bool             { return c.caseSensitive }

type characterStepper struct {
	sm.BaseStepper
	count int
}

func (s *characterStepper) machine() *Character {
	if i, ok := s.StateMachine().(*Integer); ok {
		return i.Character
	}
	return s.StateMachine().(*Character)
}

func (s *characterStepper) Clone() sm.Stepper {
	return &characterStepper{BaseStepper: s.CloneBase(), count: s.count}
}

func (s *characterStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	runes := []rune(token)
	taken := 0
	for _, r := range runes {
		if m.CharLimit > 0 && s.count+taken >= m.CharLimit {
			break
		}
		if !m.accepts(r) {
			break
		}
		taken++
	}
	if taken == 0 {
		return nil
	}
	consumedRunes := string(runes[:taken])
	next := &characterStepper{BaseStepper: s.CloneBase(), count: s.count + taken}
	next.AppendRaw(consumedRunes)
	next.SetRemaining(token[len(consumedRunes):])
	if next.count >= m.CharMin {
		next.SetState(sm.EndState)
	}
	return []sm.Stepper{next}
}

func (s *characterStepper) CurrentValue() (string, any) {
	return s.RawConsumed(), s.RawConsumed()
}

func (s *characterStepper) CanAcceptMoreInput() bool {
	m := s.machine()
	return m.CharLimit == 0 || s.count < m.CharLimit
}

func (s *characterStepper) IsWithinValue() bool { return s.count > 0 }

func (s *characterStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*characterStepper)
	return ok && o.RawConsumed() == s.RawConsumed() && o.count == s.count
}

func (s *characterStepper) HashKey() string {
	return s.BaseHashKey("character")
}

// Whitespace returns a [Character] machine matching runs of JSON
// insignificant whitespace, at most maxLen runes (0 for unlimited), optional
// by default (min 0) since JSON delimiters typically allow zero whitespace.
func Whitespace(maxLen int) *Character {
	return NewCharacter([]rune{' ', '\t', '\n', '\r'}, 0, maxLen)
}

// Digits returns a [Character] machine matching a run of ASCII digits, at
// least min and at most limit digits.
func Digits(min, limit int) *Character {
	runes := make([]rune, 0, 10)
	for r := '0'; r <= '9'; r++ {
		runes = append(runes, r)
	}
	return NewCharacter(runes, min, limit)
}
