package jsonvalue_test

import (
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/pkg/jsonvalue"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

func accept(t *testing.T, machine sm.StateMachine, text string) []sm.Stepper {
	t.Helper()
	steppers := machine.NewStepper(nil)
	steppers = sm.AdvanceAllBasic(steppers, text)
	require.NotEmpty(t, steppers, "expected at least one surviving stepper for %q", text)
	return steppers
}

func TestValue_AcceptsEveryShape(t *testing.T) {
	cases := []string{`"hi"`, `42`, `true`, `null`, `[1,2,3]`, `{"a":1}`}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			v := jsonvalue.NewValue()
			steppers := accept(t, v, c)
			var accepted bool
			for _, s := range steppers {
				if s.HasReachedAcceptState() {
					accepted = true
				}
			}
			assert.True(t, accepted, "no accepting branch for %q", c)
		})
	}
}

func longestAccepting(steppers []sm.Stepper) sm.Stepper {
	var best sm.Stepper
	var bestLen int
	for _, s := range steppers {
		if !s.HasReachedAcceptState() {
			continue
		}
		raw, _ := s.CurrentValue()
		if best == nil || len(raw) > bestLen {
			best = s
			bestLen = len(raw)
		}
	}
	return best
}

func TestObject_ParsesMembersInOrder(t *testing.T) {
	o := jsonvalue.NewObject(jsonvalue.NewValue())
	steppers := accept(t, o, `{"a": 1, "b": 2}`)

	final := longestAccepting(steppers)
	require.NotNil(t, final)

	_, v := final.CurrentValue()
	om, ok := v.(*orderedmap.OrderedMap[string, any])
	require.True(t, ok)
	assert.Equal(t, 2, om.Len())

	keys := make([]string, 0, 2)
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestArray_ParsesElements(t *testing.T) {
	a := jsonvalue.NewArray(jsonvalue.NewValue())
	steppers := accept(t, a, `[1, 2, 3]`)

	final := longestAccepting(steppers)
	require.NotNil(t, final)
	_, v := final.CurrentValue()
	elems, ok := v.([]any)
	require.True(t, ok)
	assert.Len(t, elems, 3)
}

func TestObject_RejectsTrailingComma(t *testing.T) {
	o := jsonvalue.NewObject(jsonvalue.NewValue())
	steppers := o.NewStepper(nil)
	steppers = sm.AdvanceAllBasic(steppers, `{"a": 1,}`)
	for _, s := range steppers {
		assert.False(t, s.HasReachedAcceptState())
	}
}
