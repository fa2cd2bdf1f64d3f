package grammar

import (
	"context"

	"github.com/kestrelsoft/pse/internal/resilience"
)

// BreakingValidator wraps an inner [Validator] with a
// [resilience.CircuitBreaker]: repeated infrastructure failures (interpreter
// missing, process hangs) trip the breaker so the engine stops paying the
// process-spawn cost on every token once a backend is clearly unhealthy,
// instead rejecting immediately with [resilience.ErrCircuitOpen].
type BreakingValidator struct {
	inner   Validator
	breaker *resilience.CircuitBreaker
}

// NewBreakingValidator wraps inner with a circuit breaker named name.
func NewBreakingValidator(name string, inner Validator, cfg resilience.CircuitBreakerConfig) *BreakingValidator {
	cfg.Name = name
	return &BreakingValidator{inner: inner, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Validate runs inner.Validate through the circuit breaker. A breaker-open
// rejection is reported as a non-accepting [Verdict] with the breaker's
// error returned alongside it, so callers treat it the same as any other
// validator error: reject rather than crash.
func (v *BreakingValidator) Validate(ctx context.Context, source string, strict bool) (Verdict, error) {
	var verdict Verdict
	err := v.breaker.Execute(func() error {
		var innerErr error
		verdict, innerErr = v.inner.Validate(ctx, source, strict)
		return innerErr
	})
	if err != nil {
		return Verdict{Accept: false, Message: err.Error()}, err
	}
	return verdict, nil
}
