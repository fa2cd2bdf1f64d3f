package grammar

import (
	"context"

	"github.com/kestrelsoft/pse/internal/resilience"
)

// FallbackValidator tries a primary [Validator] and, when it fails (not when
// it merely rejects the source — a syntactically bad program is not a
// fallback trigger), falls through to one or more secondary validators in
// registration order. Typical use: a primary interpreter resolved from
// $PATH with a fallback pinned to an absolute path, so a misconfigured
// environment degrades to a slower-but-working check instead of failing
// every token.
type FallbackValidator struct {
	group *resilience.FallbackGroup[Validator]
}

// NewFallbackValidator wraps primary (registered under primaryName) in a
// [resilience.FallbackGroup]. Use [FallbackValidator.AddFallback] to
// register additional validators.
func NewFallbackValidator(primaryName string, primary Validator, cfg resilience.FallbackConfig) *FallbackValidator {
	return &FallbackValidator{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another validator, tried only once every
// higher-priority entry has failed or tripped its circuit breaker.
func (v *FallbackValidator) AddFallback(name string, fallback Validator) {
	v.group.AddFallback(name, fallback)
}

// Validate implements [Validator] by delegating to the underlying
// [resilience.FallbackGroup].
func (v *FallbackValidator) Validate(ctx context.Context, source string, strict bool) (Verdict, error) {
	return resilience.ExecuteWithResult(v.group, func(inner Validator) (Verdict, error) {
		return inner.Validate(ctx, source, strict)
	})
}

var _ Validator = (*FallbackValidator)(nil)
