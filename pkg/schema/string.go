package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kestrelsoft/pse/pkg/acceptor"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

type stringConstraints struct {
	hasMin, hasMax        bool
	minLength, maxLength  int
	prefixPattern         *regexp.Regexp
	fullPattern           *regexp.Regexp
	format                string
}

func (c *compiler) compileString(schema map[string]any) (sm.StateMachine, error) {
	sc := &stringConstraints{}
	if v, ok := asInt(schema["minLength"]); ok {
		sc.minLength, sc.hasMin = v, true
	}
	if v, ok := asInt(schema["maxLength"]); ok {
		sc.maxLength, sc.hasMax = v, true
	}
	if p, ok := schema["pattern"].(string); ok {
		full, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidSchema, p, err)
		}
		sc.fullPattern = full
		// Go's RE2 engine has no notion of "could this still match given more
		// input" — only whole-string matching. The prefix viability check
		// here is a heuristic approximation: strip a trailing unescaped '$'
		// (if present) and allow anything after, so a partial body that is
		// still a legal prefix of some eventual match isn't rejected
		// mid-parse. It is not exact for every pattern shape (lookaheads,
		// internal anchors), but it prunes the common case: literal prefixes
		// and character-class runs that have already diverged.
		stripped := p
		if strings.HasSuffix(stripped, "$") && !strings.HasSuffix(stripped, `\$`) {
			stripped = stripped[:len(stripped)-1]
		}
		if prefixRe, err := regexp.Compile(`(?s)\A(?:` + stripped + `).*\z`); err == nil {
			sc.prefixPattern = prefixRe
		}
	}
	if f, ok := schema["format"].(string); ok {
		if _, known := formatValidators[f]; !known {
			return nil, fmt.Errorf("%w: format %q", ErrUnsupported, f)
		}
		sc.format = f
	}
	return &StringSchema{inner: acceptor.NewString(), c: sc}, nil
}

// StringSchema wraps [acceptor.String], pruning branches whose accumulated
// body is no longer a viable prefix for pattern (when set), and checking
// minLength/maxLength/format once the string is complete.
type StringSchema struct {
	inner *acceptor.String
	c     *stringConstraints
}

func (s *StringSchema) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, st := range s.inner.NewStepper(state) {
		out = append(out, &stringSchemaStepper{inner: st, c: s.c})
	}
	return out
}

func (s *StringSchema) Edges(id sm.StateID) []sm.Edge  { return s.inner.Edges(id) }
func (s *StringSchema) StartState() sm.StateID         { return s.inner.StartState() }
func (s *StringSchema) EndStates() map[sm.StateID]bool { return s.inner.EndStates() }
func (s *StringSchema) IsOptional() bool               { return s.inner.IsOptional() }
func (s *StringSchema) CaseSensitive() bool            { return s.inner.CaseSensitive() }

type stringSchemaStepper struct {
	inner sm.Stepper
	c     *stringConstraints
}

func (s *stringSchemaStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *stringSchemaStepper) State() sm.StateID             { return s.inner.State() }
func (s *stringSchemaStepper) Clone() sm.Stepper {
	return &stringSchemaStepper{inner: s.inner.Clone(), c: s.c}
}

func (s *stringSchemaStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		if s.c.prefixPattern != nil && !n.HasReachedAcceptState() {
			_, body := n.CurrentValue()
			if text, ok := body.(string); ok && !s.c.prefixPattern.MatchString(text) {
				continue
			}
		}
		if s.c.hasMax {
			_, body := n.CurrentValue()
			if text, ok := body.(string); ok && len([]rune(text)) > s.c.maxLength {
				continue
			}
		}
		out = append(out, &stringSchemaStepper{inner: n, c: s.c})
	}
	return out
}

func (s *stringSchemaStepper) CurrentValue() (string, any) { return s.inner.CurrentValue() }

func (s *stringSchemaStepper) HasReachedAcceptState() bool {
	if !s.inner.HasReachedAcceptState() {
		return false
	}
	_, v := s.inner.CurrentValue()
	text, ok := v.(string)
	if !ok {
		return false
	}
	n := len([]rune(text))
	if s.c.hasMin && n < s.c.minLength {
		return false
	}
	if s.c.hasMax && n > s.c.maxLength {
		return false
	}
	if s.c.fullPattern != nil && !s.c.fullPattern.MatchString(text) {
		return false
	}
	if s.c.format != "" && !formatValidators[s.c.format](text) {
		return false
	}
	return true
}

func (s *stringSchemaStepper) CanAcceptMoreInput() bool { return s.inner.CanAcceptMoreInput() }
func (s *stringSchemaStepper) IsWithinValue() bool      { return s.inner.IsWithinValue() }
func (s *stringSchemaStepper) Remaining() string        { return s.inner.Remaining() }
func (s *stringSchemaStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*stringSchemaStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *stringSchemaStepper) HashKey() string { return "strschema|" + s.inner.HashKey() }
