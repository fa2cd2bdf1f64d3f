package engine

import "errors"

// ErrNotConfigured is returned by [Engine.ProcessLogits], [Engine.Sample],
// [Engine.ConsumeTokens] and [Engine.Output] when called before a schema has
// been compiled.
var ErrNotConfigured = errors.New("engine: Configure must be called before use")

// ErrStalled is returned by [Engine.Sample] when no candidate id — neither
// the sampler's original choice nor any defensive re-sample — is accepted
// by the live stepper set. This mirrors a "total dead set": the caller
// observes it via the returned error (rather than discovering it
// later through [Engine.HasReachedAcceptState]) since Sample is specifically
// where a bad choice would otherwise silently commit.
var ErrStalled = errors.New("engine: sampler produced no acceptable token")
