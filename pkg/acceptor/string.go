package acceptor

import (
	"strconv"
	"strings"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// String states, named after the original grammar's terms.
const (
	stringStart    sm.StateID = "0" // expecting the opening quote
	stringContents sm.StateID = "1" // inside the string body
	stringEscaped  sm.StateID = "2" // just consumed a backslash
	stringHexCode  sm.StateID = "3" // collecting a \uXXXX escape's hex digits
)

// isInvalidStringByte reports bytes that may never appear unescaped inside a
// JSON string: control characters, the quote, and the backslash itself.
func isInvalidStringByte(b byte) bool {
	return b < 0x20 || b == '"' || b == '\\'
}

var validEscapeChars = map[byte]bool{
	'"': true, '\\': true, '/': true, 'b': true, 'f': true,
	'n': true, 'r': true, 't': true, 'u': true,
}

// String is a [sm.StateMachine] accepting a complete JSON string literal,
// including its surrounding quotes and escape sequences, and materialising
// the unescaped Go string as its value.
type String struct{}

// NewString returns a [String] machine.
func NewString() *String { return &String{} }

func (j *String) NewStepper(state *sm.StateID) []sm.Stepper {
	st := stringStart
	if state != nil {
		st = *state
	}
	return []sm.Stepper{&stringStepper{BaseStepper: sm.NewBaseStepper(j, st)}}
}

func (j *String) Edges(sm.StateID) []sm.Edge         { return nil }
func (j *String) StartState() sm.StateID             { return stringStart }
func (j *String) EndStates() map[sm.StateID]bool     { return map[sm.StateID]bool{} }
func (j *String) IsOptional() bool                   { return false }
func (j *String) CaseSensitive() bool                { return true }

type stringStepper struct {
	sm.BaseStepper
	hexDigits int
}

func (s *stringStepper) Clone() sm.Stepper {
	return &stringStepper{BaseStepper: s.CloneBase(), hexDigits: s.hexDigits}
}

func ishex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func (s *stringStepper) Consume(token string) []sm.Stepper {
	if token == "" {
		return nil
	}
	switch s.State() {
	case stringStart:
		if token[0] != '"' {
			return nil
		}
		next := &stringStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:1])
		next.SetState(stringContents)
		if len(token) > 1 {
			return next.Consume(token[1:])
		}
		return []sm.Stepper{next}

	case stringContents:
		i := 0
		for i < len(token) && !isInvalidStringByte(token[i]) {
			i++
		}
		if i > 0 {
			next := &stringStepper{BaseStepper: s.CloneBase()}
			next.AppendRaw(token[:i])
			next.SetState(stringContents)
			if i < len(token) {
				return next.Consume(token[i:])
			}
			return []sm.Stepper{next}
		}
		switch token[0] {
		case '"':
			next := &stringStepper{BaseStepper: s.CloneBase()}
			next.AppendRaw(token[:1])
			next.SetState(sm.EndState)
			next.SetRemaining(token[1:])
			return []sm.Stepper{next}
		case '\\':
			next := &stringStepper{BaseStepper: s.CloneBase()}
			next.AppendRaw(token[:1])
			next.SetState(stringEscaped)
			if len(token) > 1 {
				return next.Consume(token[1:])
			}
			return []sm.Stepper{next}
		}
		return nil

	case stringEscaped:
		if !validEscapeChars[token[0]] {
			return nil
		}
		next := &stringStepper{BaseStepper: s.CloneBase()}
		next.AppendRaw(token[:1])
		if token[0] == 'u' {
			next.SetState(stringHexCode)
			next.hexDigits = 0
		} else {
			next.SetState(stringContents)
		}
		if len(token) > 1 {
			return next.Consume(token[1:])
		}
		return []sm.Stepper{next}

	case stringHexCode:
		i := 0
		for i < len(token) && s.hexDigits+i < 4 && ishex(token[i]) {
			i++
		}
		if i == 0 {
			return nil
		}
		next := &stringStepper{BaseStepper: s.CloneBase(), hexDigits: s.hexDigits + i}
		next.AppendRaw(token[:i])
		if next.hexDigits == 4 {
			next.SetState(stringContents)
		} else {
			next.SetState(stringHexCode)
		}
		if i < len(token) {
			return next.Consume(token[i:])
		}
		return []sm.Stepper{next}
	}
	return nil
}

func (s *stringStepper) CurrentValue() (string, any) {
	raw := s.RawConsumed()
	if s.State() == sm.EndState {
		if v, err := strconv.Unquote(raw); err == nil {
			return raw, v
		}
	}
	// Partial string: return the unescaped-so-far body without quotes.
	body := strings.TrimPrefix(raw, `"`)
	return raw, body
}

func (s *stringStepper) CanAcceptMoreInput() bool { return s.State() != sm.EndState }

func (s *stringStepper) IsWithinValue() bool {
	return s.State() == stringContents || s.State() == stringEscaped || s.State() == stringHexCode
}

func (s *stringStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*stringStepper)
	return ok && o.State() == s.State() && o.RawConsumed() == s.RawConsumed() && o.hexDigits == s.hexDigits
}

func (s *stringStepper) HashKey() string { return s.BaseHashKey("string") }
