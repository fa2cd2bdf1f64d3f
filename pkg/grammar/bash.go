package grammar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// BashValidator shells out to `bash -n`, which parses a script without
// executing it. Unlike Python's codeop, bash has no public "is this merely
// incomplete" API — `bash -n` on a dangling `if [ -z "$x" ]; then` reports
// the same "unexpected EOF" error whether the caller meant to keep typing or
// genuinely stopped short. Lenient and strict mode are therefore identical
// here; this asymmetry with [PythonValidator] is intentional, not an
// oversight.
type BashValidator struct {
	// Interpreter is the bash executable to invoke. Defaults to "bash".
	Interpreter string
}

// NewBashValidator returns a [BashValidator] using interpreter, or "bash" if
// interpreter is empty.
func NewBashValidator(interpreter string) *BashValidator {
	if interpreter == "" {
		interpreter = "bash"
	}
	return &BashValidator{Interpreter: interpreter}
}

func (b *BashValidator) Validate(ctx context.Context, source string, _ bool) (Verdict, error) {
	cmd := exec.CommandContext(ctx, b.Interpreter, "-n")
	cmd.Stdin = strings.NewReader(source)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Verdict{Accept: true}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Verdict{Accept: false, Message: strings.TrimSpace(stderr.String())}, nil
	}

	return Verdict{}, fmt.Errorf("grammar: bash invocation failed: %w", err)
}
