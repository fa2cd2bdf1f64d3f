package grammar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// pythonLenientScript uses the standard library's codeop module — the same
// module Python's own REPL uses to tell "needs more input" apart from "this
// is actually wrong" — so an unfinished block (e.g. "if x:" with no body
// yet) is accepted rather than rejected while the model is still streaming.
const pythonLenientScript = `
import codeop, sys
src = sys.stdin.read()
try:
    codeop.compile_command(src, "<pse>", "exec")
except (SyntaxError, ValueError, OverflowError):
    sys.exit(1)
sys.exit(0)
`

// pythonStrictScript requires a complete, successfully compiling program.
const pythonStrictScript = `
import sys
src = sys.stdin.read()
try:
    compile(src, "<pse>", "exec")
except (SyntaxError, ValueError, OverflowError):
    sys.exit(1)
sys.exit(0)
`

// PythonValidator shells out to a python3 interpreter to validate Python
// source against the [Validator] contract (lenient/strict, accept or
// reject). No Python AST/grammar is reimplemented in Go — the interpreter
// itself is the source of truth, the same way [grammar.Grammar] leaves all
// language semantics to the [Validator] it wraps.
type PythonValidator struct {
	// Interpreter is the python3 executable to invoke. Defaults to "python3".
	Interpreter string
}

// NewPythonValidator returns a [PythonValidator] using interpreter, or
// "python3" if interpreter is empty.
func NewPythonValidator(interpreter string) *PythonValidator {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &PythonValidator{Interpreter: interpreter}
}

func (p *PythonValidator) Validate(ctx context.Context, source string, strict bool) (Verdict, error) {
	script := pythonLenientScript
	if strict {
		script = pythonStrictScript
	}

	cmd := exec.CommandContext(ctx, p.Interpreter, "-c", script)
	cmd.Stdin = strings.NewReader(source)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Verdict{Accept: true}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit status 1 from the scripts above means "not valid Python",
		// an expected outcome, not an infrastructure failure.
		return Verdict{Accept: false, Message: strings.TrimSpace(stderr.String())}, nil
	}

	return Verdict{}, fmt.Errorf("grammar: python3 invocation failed: %w", err)
}
