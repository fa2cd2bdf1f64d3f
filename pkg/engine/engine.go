// Package engine implements the C8 façade: the single entry point a
// generation loop drives, tying together a compiled schema (C5), an
// optional set of grammar-block alternatives (C6), and vocabulary masking
// and token healing (C7) into one object a caller configures once and then
// feeds logits and sampled tokens to, one step at a time.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelsoft/pse/internal/observe"
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	"github.com/kestrelsoft/pse/pkg/grammar"
	"github.com/kestrelsoft/pse/pkg/schema"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
	"github.com/kestrelsoft/pse/pkg/vocab"
)

// grammarSpec is a grammar branch registered via [WithGrammar], waiting for
// [Engine.Configure] to wrap it in a fence and union it in.
type grammarSpec struct {
	name      string
	validator grammar.Validator
	open      string
	close     string
}

// grammarBranch is a grammarSpec after Configure has built its fence,
// retained so [Engine.Output] can recognise which alternative matched by
// its literal open/close delimiters.
type grammarBranch struct {
	name  string
	open  string
	close string
}

// Output is the result of [Engine.Output]: any scratchpad text captured
// before or around the structured span, plus the structured value itself —
// a parsed JSON value for a schema branch, or the accumulated source text
// for a grammar branch.
type Output struct {
	Buffer string
	Value  any
}

// Engine is the C8 façade: a compiled schema (and optional grammar
// alternatives), the live stepper set walking it, and the ephemeral
// healing map produced by the most recently run [Engine.ProcessLogits].
//
// Engine is NOT safe for concurrent use — unlike most types in this module,
// which are explicitly documented as concurrency-safe, a single Engine's
// ProcessLogits/Sample/ConsumeTokens form one single-threaded cooperative
// cycle: parallelism is achieved across engines (one per
// request), never within one. This includes [Engine.Reset], which takes no
// lock either.
type Engine struct {
	tokenizer  vocab.Tokenizer
	vocabulary *vocab.Vocabulary

	delimitersOpen, delimitersClose string
	bufferLength                    int
	multiToken                      bool
	pendingGrammars                 []grammarSpec
	metrics                         *observe.Metrics

	machine   sm.StateMachine
	schemaEnc *composite.Encapsulated
	grammars  []grammarBranch

	steppers        []sm.Stepper
	healing         map[int32][]int32
	lastStepperCount int64
}

// Option configures an [Engine] during construction, mirroring the
// the package's other functional-option constructors.
type Option func(*Engine)

// WithDelimiters wraps the compiled schema in an open/close fence (e.g.
// "```json\n" / "\n```"). Without
// this option the schema is matched directly against the start of input,
// with no scratchpad and no fence stripping.
func WithDelimiters(open, close string) Option {
	return func(e *Engine) {
		e.delimitersOpen = open
		e.delimitersClose = close
	}
}

// WithBufferLength sets how many scratchpad bytes must be emitted before
// the opening delimiter is considered (mirrors the `buffer_length` config key)
// (0 = structured output may begin immediately; >0 = that many bytes of
// free text are required first). Negative values are clamped to 0 at
// [Engine.Configure] time — see DESIGN.md for why this module does not
// implement the stricter "-1 forbids any scratchpad at all" reading.
// Has no effect without [WithDelimiters].
func WithBufferLength(n int) Option {
	return func(e *Engine) { e.bufferLength = n }
}

// WithGrammar registers a named grammar alternative: at [Engine.Configure] time it is wrapped
// in its own open/close fence and unioned alongside the schema branch, so a
// generation can satisfy either the schema or one of its grammar blocks.
func WithGrammar(name string, validator grammar.Validator, open, close string) Option {
	return func(e *Engine) {
		e.pendingGrammars = append(e.pendingGrammars, grammarSpec{
			name: name, validator: validator, open: open, close: close,
		})
	}
}

// WithMultiTokenSampling enables the token-healing rewrite in
// [Engine.Sample] (mirrors the `multi_token_sampling` config key). Off by
// default: a sampled id with a healing expansion is still returned as the
// single, un-rewritten id.
func WithMultiTokenSampling(enabled bool) Option {
	return func(e *Engine) { e.multiToken = enabled }
}

// WithObserver attaches metrics — every stage records against m instead of
// the engine running unobserved. The engine starts no trace spans.
func WithObserver(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an unconfigured Engine bound to tokenizer. Call [Engine.Configure]
// before driving it.
func New(tokenizer vocab.Tokenizer, opts ...Option) *Engine {
	e := &Engine{
		tokenizer:  tokenizer,
		vocabulary: vocab.NewVocabulary(tokenizer),
		healing:    map[int32][]int32{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Configure compiles source, optionally wraps it in a delimiter
// fence and unions in any registered grammar branches, then resets the live
// stepper set. Compile errors are sentinel errors from package schema,
// surfaced synchronously rather than deferred to the next call.
func (e *Engine) Configure(ctx context.Context, source schema.Source) error {
	start := time.Now()
	compiled, err := schema.Compile(source)
	if e.metrics != nil {
		e.metrics.CompileDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordEngineError(ctx, "configure", "schema_compile")
		}
		return fmt.Errorf("engine: compile schema: %w", err)
	}

	var top sm.StateMachine = compiled
	e.schemaEnc = nil
	if e.delimitersOpen != "" || e.delimitersClose != "" {
		minLen := e.bufferLength
		if minLen < 0 {
			minLen = 0
		}
		enc := composite.NewEncapsulatedWith(
			acceptor.NewPhrase(e.delimitersOpen), compiled, acceptor.NewPhrase(e.delimitersClose), minLen,
		)
		e.schemaEnc = enc
		top = enc
	}

	alternatives := []sm.StateMachine{top}
	e.grammars = e.grammars[:0]
	for _, g := range e.pendingGrammars {
		inner := grammar.New(g.name, g.validator, ctx)
		enc := composite.NewEncapsulatedWith(
			acceptor.NewPhrase(g.open), inner, acceptor.NewPhrase(g.close), 0,
		)
		alternatives = append(alternatives, enc)
		e.grammars = append(e.grammars, grammarBranch{name: g.name, open: g.open, close: g.close})
	}

	if len(alternatives) == 1 {
		e.machine = alternatives[0]
	} else {
		e.machine = composite.NewAny(alternatives...)
	}

	e.Reset(ctx)
	return nil
}

// ProcessLogits computes the C7 mask+healing map against the current live
// stepper set and rewrites scores in place: invalid ids are suppressed to
// [vocab.NegInf], and healed ids fold their score into their expansion's
// head id. It is pure with respect to engine state except for caching the
// healing map [Engine.Sample] consults next.
func (e *Engine) ProcessLogits(ctx context.Context, scores map[int32]float64) (map[int32]float64, error) {
	if e.machine == nil {
		return nil, ErrNotConfigured
	}
	start := time.Now()
	mask := vocab.BuildMask(e.steppers, e.vocabulary)
	mask.Apply(scores)
	e.healing = mask.Healing
	if e.metrics != nil {
		e.metrics.ProcessLogitsDuration.Record(ctx, time.Since(start).Seconds())
	}
	return scores, nil
}

// Sample delegates sampling to sampler, then validates the choice against
// the healing map cached by the most recent [Engine.ProcessLogits]: a
// healed id expands to its constituent shorter ids (only when
// [WithMultiTokenSampling] is enabled), otherwise the bare id is returned.
// If the result doesn't actually decode to something the live steppers
// accept, the id is masked to −∞ and the sampler retried.
func (e *Engine) Sample(ctx context.Context, logprobs map[int32]float64, sampler func(map[int32]float64) int32) ([]int32, error) {
	if e.machine == nil {
		return nil, ErrNotConfigured
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.SampleDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	working := make(map[int32]float64, len(logprobs))
	for k, v := range logprobs {
		working[k] = v
	}

	for attempts := 0; attempts <= len(working); attempts++ {
		id := sampler(working)
		ids := []int32{id}
		healed := false
		if e.multiToken {
			if expansion, ok := e.healing[id]; ok && len(expansion) > 0 {
				ids = expansion
				healed = true
			}
		}

		text := e.tokenizer.Decode(ids)
		if len(sm.AdvanceAllBasic(e.steppers, text)) > 0 {
			if healed && e.metrics != nil {
				e.metrics.RecordTokenHealed(ctx)
			}
			return ids, nil
		}

		working[id] = vocab.NegInf
	}
	if e.metrics != nil {
		e.metrics.RecordEngineError(ctx, "sample", "stalled")
	}
	return nil, ErrStalled
}

// ConsumeTokens decodes ids and advances the live stepper set, merging
// branches as usual. Reaching a dead set (no live steppers survive) is
// non-fatal — it is logged, not returned as an error — and observable
// afterwards via [Engine.HasReachedAcceptState].
func (e *Engine) ConsumeTokens(ctx context.Context, ids []int32) error {
	if e.machine == nil {
		return ErrNotConfigured
	}
	text := e.tokenizer.Decode(ids)
	e.steppers = sm.AdvanceAllBasic(e.steppers, text)
	e.healing = nil
	e.recordStepperCount(ctx)

	if e.metrics != nil {
		for range ids {
			e.metrics.RecordTokenConsumed(ctx)
		}
	}
	if len(e.steppers) == 0 {
		observe.Logger(ctx).Debug("engine stalled", "reason", "no live steppers after consume", "text", text)
	}
	return nil
}

// Output inspects the best candidate among the live steppers (the first to
// have reached an accept state, or otherwise whichever has consumed the
// most raw text) and splits its raw text into scratchpad and structured
// value. The structured value is derived by re-parsing the token-safe body
// text rather than walking CurrentValue's nested value — see DESIGN.md:
// composite.Chain only keeps the most recently active link's value once the
// chain advances past it, so a fully-closed delimiter fence loses its inner
// value there; reparsing the raw text sidesteps that without reaching into
// shared composite internals.
func (e *Engine) Output() (Output, error) {
	if e.machine == nil {
		return Output{}, ErrNotConfigured
	}
	s := e.bestStepper()
	if s == nil {
		return Output{}, nil
	}
	raw, _ := s.CurrentValue()
	return e.splitOutput(raw), nil
}

// GetLabeledOutput walks a top-level structured object output and returns
// its string-valued (or string-rendered) members keyed by their own
// property names — e.g. a {thinking, answer} schema yields
// {"thinking": "...", "answer": "..."}, useful for prompts that want a
// scratchpad field alongside the final answer without re-parsing JSON.
func (e *Engine) GetLabeledOutput() map[string]string {
	out, err := e.Output()
	if err != nil {
		return nil
	}
	obj, ok := out.Value.(map[string]any)
	if !ok {
		return nil
	}
	labeled := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			labeled[k] = s
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			labeled[k] = string(b)
		}
	}
	return labeled
}

// Reset discards the live stepper set and rebuilds it from the compiled
// machine's start state. Like the rest of Engine it takes no lock, so it is
// not safe to call concurrently with an in-flight
// ProcessLogits/Sample/ConsumeTokens cycle.
func (e *Engine) Reset(ctx context.Context) {
	if e.machine == nil {
		e.steppers = nil
		return
	}
	e.steppers = e.machine.NewStepper(nil)
	e.healing = nil
	e.recordStepperCount(ctx)
}

// HasReachedAcceptState reports whether any live stepper currently sits in
// an accept state.
func (e *Engine) HasReachedAcceptState() bool {
	for _, s := range e.steppers {
		if s.HasReachedAcceptState() {
			return true
		}
	}
	return false
}

func (e *Engine) recordStepperCount(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	n := int64(len(e.steppers))
	if delta := n - e.lastStepperCount; delta != 0 {
		e.metrics.ActiveSteppers.Add(ctx, delta)
	}
	e.lastStepperCount = n
}

// bestStepper returns the first live stepper already in an accept state,
// or else the one with the longest raw text consumed so far — a best-effort
// choice for a caller inspecting a still-in-progress generation.
func (e *Engine) bestStepper() sm.Stepper {
	var best sm.Stepper
	var bestRaw string
	for _, s := range e.steppers {
		if s.HasReachedAcceptState() {
			return s
		}
		raw, _ := s.CurrentValue()
		if best == nil || len(raw) > len(bestRaw) {
			best, bestRaw = s, raw
		}
	}
	return best
}

// splitOutput separates raw into scratchpad and structured value according
// to whichever branch's delimiters raw's leading text matches.
func (e *Engine) splitOutput(raw string) Output {
	if e.schemaEnc != nil {
		if body, buffer, ok := splitFence(raw, e.delimitersOpen, e.delimitersClose); ok {
			return Output{Buffer: buffer, Value: parseStructured(body)}
		}
		return Output{Buffer: raw}
	}
	for _, g := range e.grammars {
		if body, buffer, ok := splitFence(raw, g.open, g.close); ok {
			return Output{Buffer: buffer, Value: body}
		}
	}
	return Output{Value: parseStructured(raw)}
}

// splitFence locates open in raw (scratchpad is whatever precedes it),
// strips open from the front and close from the back, and reports whether
// open was found at all.
func splitFence(raw, open, close string) (body, buffer string, ok bool) {
	idx := strings.Index(raw, open)
	if idx < 0 {
		return "", raw, false
	}
	buffer = raw[:idx]
	body = raw[idx+len(open):]
	body = strings.TrimSuffix(body, close)
	return body, buffer, true
}

// parseStructured parses body as JSON, falling back to the raw string for
// grammar branches that never produce JSON (e.g. a Python source block).
func parseStructured(body string) any {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err == nil {
		return v
	}
	return body
}
