package grammar_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/pkg/grammar"
)

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on PATH")
	}
}

func TestPythonValidator_AcceptsCompleteProgram(t *testing.T) {
	requirePython3(t)
	v := grammar.NewPythonValidator("")
	verdict, err := v.Validate(context.Background(), "print('hi')\n", true)
	require.NoError(t, err)
	assert.True(t, verdict.Accept)
}

func TestPythonValidator_LenientAcceptsIncompleteBlock(t *testing.T) {
	requirePython3(t)
	v := grammar.NewPythonValidator("")
	verdict, err := v.Validate(context.Background(), "if True:\n", false)
	require.NoError(t, err)
	assert.True(t, verdict.Accept, "dangling block body should be lenient-acceptable")
}

func TestPythonValidator_StrictRejectsIncompleteBlock(t *testing.T) {
	requirePython3(t)
	v := grammar.NewPythonValidator("")
	verdict, err := v.Validate(context.Background(), "if True:\n", true)
	require.NoError(t, err)
	assert.False(t, verdict.Accept)
}

func TestPythonValidator_RejectsSyntaxError(t *testing.T) {
	requirePython3(t)
	v := grammar.NewPythonValidator("")
	verdict, err := v.Validate(context.Background(), "def def\n", false)
	require.NoError(t, err)
	assert.False(t, verdict.Accept)
}

func TestPythonValidator_MissingInterpreterIsAnError(t *testing.T) {
	v := grammar.NewPythonValidator("/nonexistent/python3-binary")
	_, err := v.Validate(context.Background(), "1\n", false)
	assert.Error(t, err)
}
