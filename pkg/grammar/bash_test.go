package grammar_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/pkg/grammar"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available on PATH")
	}
}

func TestBashValidator_AcceptsValidScript(t *testing.T) {
	requireBash(t)
	v := grammar.NewBashValidator("")
	verdict, err := v.Validate(context.Background(), "echo hello\n", true)
	require.NoError(t, err)
	assert.True(t, verdict.Accept)
}

func TestBashValidator_RejectsUnmatchedQuote(t *testing.T) {
	requireBash(t)
	v := grammar.NewBashValidator("")
	verdict, err := v.Validate(context.Background(), `echo "unterminated`, false)
	require.NoError(t, err)
	assert.False(t, verdict.Accept)
}

func TestBashValidator_MissingInterpreterIsAnError(t *testing.T) {
	v := grammar.NewBashValidator("/nonexistent/bash-binary")
	_, err := v.Validate(context.Background(), "echo hi\n", false)
	assert.Error(t, err)
}
