package vocab_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"

	"github.com/kestrelsoft/pse/pkg/vocab"
	vocabmock "github.com/kestrelsoft/pse/pkg/vocab/mock"
)

// cappedMachine is [advance_test.go]'s fakeMachine plus a maxChunk limit:
// some real acceptors (a subprocess-backed grammar validator with a fixed
// argument size, for instance) can only consume so much text in a single
// Consume call, so an oversized sampler token must be healed down into
// vocabulary-aligned pieces even though the underlying characters all match.
type cappedMachine struct {
	phrase   string
	maxChunk int
}

func (m *cappedMachine) NewStepper(state *sm.StateID) []sm.Stepper {
	return []sm.Stepper{&cappedStepper{BaseStepper: sm.NewBaseStepper(m, sm.StateID("0"))}}
}
func (m *cappedMachine) Edges(sm.StateID) []sm.Edge     { return nil }
func (m *cappedMachine) StartState() sm.StateID         { return sm.StateID("0") }
func (m *cappedMachine) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (m *cappedMachine) IsOptional() bool               { return false }
func (m *cappedMachine) CaseSensitive() bool            { return true }

type cappedStepper struct {
	sm.BaseStepper
}

func (s *cappedStepper) machine() *cappedMachine { return s.StateMachine().(*cappedMachine) }

func (s *cappedStepper) Clone() sm.Stepper {
	return &cappedStepper{BaseStepper: s.CloneBase()}
}

func (s *cappedStepper) Consume(token string) []sm.Stepper {
	m := s.machine()
	if len(token) > m.maxChunk {
		return nil
	}
	want := m.phrase[len(s.RawConsumed()):]
	n := 0
	for n < len(token) && n < len(want) && token[n] == want[n] {
		n++
	}
	if n == 0 {
		return nil
	}
	next := &cappedStepper{BaseStepper: s.CloneBase()}
	next.AppendRaw(token[:n])
	if next.RawConsumed() == m.phrase {
		next.SetState(sm.EndState)
	}
	return []sm.Stepper{next}
}

func (s *cappedStepper) CurrentValue() (string, any) { return s.RawConsumed(), s.RawConsumed() }
func (s *cappedStepper) CanAcceptMoreInput() bool    { return !s.HasReachedAcceptState() }
func (s *cappedStepper) IsWithinValue() bool         { return s.RawConsumed() != "" }
func (s *cappedStepper) Equal(other sm.Stepper) bool { return s.HashKey() == other.HashKey() }
func (s *cappedStepper) HashKey() string             { return s.BaseHashKey("capped") }

func TestBuildMask_DirectlyAcceptableTokenNeedsNoHealing(t *testing.T) {
	m := &cappedMachine{phrase: "true", maxChunk: 8}
	steppers := m.NewStepper(nil)
	tok := vocabmock.New("true")
	v := vocab.NewVocabulary(tok)
	id, ok := v.ID("true")
	require.True(t, ok)

	mask := vocab.BuildMask(steppers, v)
	assert.True(t, mask.Valid[id])
	assert.NotContains(t, mask.Healing, id)
}

func TestBuildMask_OversizedTokenHealsIntoRealPieces(t *testing.T) {
	m := &cappedMachine{phrase: "true", maxChunk: 2}
	steppers := m.NewStepper(nil)
	tok := vocabmock.New("true", "tr", "ue")
	v := vocab.NewVocabulary(tok)

	idTrue, ok := v.ID("true")
	require.True(t, ok)
	idTr, ok := v.ID("tr")
	require.True(t, ok)
	idUe, ok := v.ID("ue")
	require.True(t, ok)

	mask := vocab.BuildMask(steppers, v)
	assert.True(t, mask.Valid[idTrue])
	require.Contains(t, mask.Healing, idTrue)
	assert.Equal(t, []int32{idTr, idUe}, mask.Healing[idTrue])
}

func TestBuildMask_UnreachableTokenStaysInvalid(t *testing.T) {
	m := &cappedMachine{phrase: "true", maxChunk: 8}
	steppers := m.NewStepper(nil)
	tok := vocabmock.New("false")
	v := vocab.NewVocabulary(tok)
	id, ok := v.ID("false")
	require.True(t, ok)

	mask := vocab.BuildMask(steppers, v)
	assert.False(t, mask.Valid[id])
	assert.NotContains(t, mask.Healing, id)
}

func TestBuildMask_EmptyStepperSetRejectsEverything(t *testing.T) {
	tok := vocabmock.New("true")
	v := vocab.NewVocabulary(tok)
	mask := vocab.BuildMask(nil, v)
	assert.Empty(t, mask.Valid)
	assert.Empty(t, mask.Healing)
}

func TestMask_Apply_SuppressesInvalidAndFoldsHealedScore(t *testing.T) {
	m := &cappedMachine{phrase: "true", maxChunk: 2}
	steppers := m.NewStepper(nil)
	tok := vocabmock.New("true", "tr", "ue", "false")
	v := vocab.NewVocabulary(tok)

	idTrue, _ := v.ID("true")
	idTr, _ := v.ID("tr")
	idFalse, _ := v.ID("false")

	mask := vocab.BuildMask(steppers, v)
	scores := map[int32]float64{
		idTrue:  -1.0,
		idTr:    -2.0,
		idFalse: -0.1,
	}
	mask.Apply(scores)

	assert.Equal(t, vocab.NegInf, scores[idFalse])
	// The healed id stays sampleable with its own score, so Sample can still
	// pick it and expand it.
	assert.Equal(t, -1.0, scores[idTrue])

	// idTr (head of the healing expansion) absorbs idTrue's score via
	// log-sum-exp: log(exp(-2.0) + exp(-1.0)).
	expected := -2.0 + math.Log1p(math.Exp(-1.0-(-2.0)))
	assert.InDelta(t, expected, scores[idTr], 1e-9)
}
