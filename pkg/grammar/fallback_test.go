package grammar_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/internal/resilience"
	"github.com/kestrelsoft/pse/pkg/grammar"
)

// erroringValidator always fails with infrastructure error err, regardless
// of source — standing in for an interpreter that is missing or hangs.
type erroringValidator struct {
	err error
}

func (v *erroringValidator) Validate(context.Context, string, bool) (grammar.Verdict, error) {
	return grammar.Verdict{}, v.err
}

var errNoInterpreter = errors.New("interpreter not found")

func TestFallbackValidator_PrimarySucceeds(t *testing.T) {
	fv := grammar.NewFallbackValidator("primary", &fakeValidator{maxLen: 100}, resilience.FallbackConfig{})
	fv.AddFallback("secondary", &erroringValidator{err: errNoInterpreter})

	v, err := fv.Validate(context.Background(), "x=1;", true)
	require.NoError(t, err)
	assert.True(t, v.Accept)
}

func TestFallbackValidator_FallsThroughOnPrimaryError(t *testing.T) {
	fv := grammar.NewFallbackValidator("primary", &erroringValidator{err: errNoInterpreter}, resilience.FallbackConfig{})
	fv.AddFallback("secondary", &fakeValidator{maxLen: 100})

	v, err := fv.Validate(context.Background(), "x=1;", true)
	require.NoError(t, err, "the healthy fallback should serve the request")
	assert.True(t, v.Accept)
}

func TestFallbackValidator_AllFail(t *testing.T) {
	fv := grammar.NewFallbackValidator("primary", &erroringValidator{err: errNoInterpreter}, resilience.FallbackConfig{})
	fv.AddFallback("secondary", &erroringValidator{err: errNoInterpreter})

	_, err := fv.Validate(context.Background(), "x=1;", true)
	assert.ErrorIs(t, err, resilience.ErrAllFailed)
}
