package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/pkg/engine"
	"github.com/kestrelsoft/pse/pkg/grammar"
	"github.com/kestrelsoft/pse/pkg/vocab"
	vocabmock "github.com/kestrelsoft/pse/pkg/vocab/mock"
)

// feedChunks drives ConsumeTokens once per chunk, mirroring a real
// generation loop that samples (and so decodes) one piece at a time rather
// than handing the whole output to the engine in one call. Several of the
// scenarios below depend on this: a WaitFor-gated delimiter only triggers
// when a token itself begins matching it, and a grammar stepper has no
// inherent stopping boundary within a single Consume call, so chunking at
// the natural scratchpad/open/body/close boundaries is what actually
// exercises those machines realistically.
func feedChunks(t *testing.T, e *engine.Engine, tok *vocabmock.Tokenizer, chunks ...string) {
	t.Helper()
	ctx := context.Background()
	for _, c := range chunks {
		require.NoError(t, e.ConsumeTokens(ctx, tok.Encode(c, false)))
	}
}

func TestEngine_S1_SimpleJSONObject(t *testing.T) {
	ctx := context.Background()
	tok := vocabmock.New()
	e := engine.New(tok)
	require.NoError(t, e.Configure(ctx, map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "number"}},
		"required":   []any{"value"},
	}))

	feedChunks(t, e, tok, `{"value": 9.11}`)

	assert.True(t, e.HasReachedAcceptState())
	out, err := e.Output()
	require.NoError(t, err)
	obj, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 9.11, obj["value"])
}

func TestEngine_S2_FencedJSONWithScratchpad(t *testing.T) {
	ctx := context.Background()
	tok := vocabmock.New()
	e := engine.New(tok, engine.WithDelimiters("```json\n", "\n```"), engine.WithBufferLength(0))
	require.NoError(t, e.Configure(ctx, map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		"required":   []any{"x"},
	}))

	feedChunks(t, e, tok,
		"Sure, here is: ",
		"```json\n",
		`{"x":1}`,
		"\n```",
	)

	assert.True(t, e.HasReachedAcceptState())
	out, err := e.Output()
	require.NoError(t, err)
	assert.Equal(t, "Sure, here is: ", out.Buffer)
	obj, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["x"])
}

func TestEngine_S3_EnumTokenHealing(t *testing.T) {
	ctx := context.Background()
	tok := vocabmock.New(`"re`, `d"`, `"red"`, `"red"extra`, `"green"`, `"blue"`)
	e := engine.New(tok)
	require.NoError(t, e.Configure(ctx, map[string]any{
		"type": "string",
		"enum": []any{"red", "green", "blue"},
	}))

	feedChunks(t, e, tok, `"re`)

	v := vocab.NewVocabulary(tok)
	idRed, ok := v.ID(`"red"`)
	require.True(t, ok)
	idOversized, ok := v.ID(`"red"extra`)
	require.True(t, ok)
	idGreen, ok := v.ID(`"green"`)
	require.True(t, ok)
	idBlue, ok := v.ID(`"blue"`)
	require.True(t, ok)
	idClose, ok := v.ID(`d"`)
	require.True(t, ok)

	scores := map[int32]float64{
		idRed:       -1,
		idOversized: -1,
		idGreen:     -1,
		idBlue:      -1,
		idClose:     -1,
	}
	out, err := e.ProcessLogits(ctx, scores)
	require.NoError(t, err)

	assert.NotEqual(t, vocab.NegInf, out[idClose], `d" is the only live continuation of "re`)
	assert.Equal(t, vocab.NegInf, out[idRed], `whole-token "red" no longer matches after "re was already consumed`)
	assert.Equal(t, vocab.NegInf, out[idOversized])
	assert.Equal(t, vocab.NegInf, out[idGreen])
	assert.Equal(t, vocab.NegInf, out[idBlue])
}

func TestEngine_S4_RecursiveUISchema(t *testing.T) {
	uiSchema := map[string]any{
		"$defs": map[string]any{
			"node": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":     map[string]any{"type": "string"},
					"label":    map[string]any{"type": "string"},
					"children": map[string]any{"type": "array", "maxItems": 1, "items": map[string]any{"$ref": "#/$defs/node"}},
				},
				"required": []any{"type"},
			},
		},
		"$ref": "#/$defs/node",
	}

	t.Run("nested node within maxItems accepts", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok)
		require.NoError(t, e.Configure(ctx, uiSchema))

		feedChunks(t, e, tok, `{"type":"div","children":[{"type":"button","label":"Click"}]}`)
		assert.True(t, e.HasReachedAcceptState())
	})

	t.Run("children beyond maxItems rejects", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok)
		require.NoError(t, e.Configure(ctx, uiSchema))

		feedChunks(t, e, tok,
			`{"type":"div","children":[{"type":"button"},{"type":"button"}]}`,
		)
		assert.False(t, e.HasReachedAcceptState())
	})
}

// fenceRejectingValidator rejects any candidate that has leaked a closing
// fence marker, and in strict mode additionally rejects a specific "bad"
// marker — standing in for a real grammar's syntax check the way
// [grammar.grammar_test.go]'s fakeValidator does.
type fenceRejectingValidator struct{}

func (fenceRejectingValidator) Validate(_ context.Context, source string, strict bool) (grammar.Verdict, error) {
	if contains(source, "```") {
		return grammar.Verdict{Accept: false}, nil
	}
	if strict && contains(source, "def def") {
		return grammar.Verdict{Accept: false}, nil
	}
	return grammar.Verdict{Accept: true}, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestEngine_S5_PythonGrammarBlock(t *testing.T) {
	schemaSrc := map[string]any{"type": "string", "enum": []any{"n/a"}}

	t.Run("well formed body accepts", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok, engine.WithGrammar("python", fenceRejectingValidator{}, "```python\n", "```"))
		require.NoError(t, e.Configure(ctx, schemaSrc))

		feedChunks(t, e, tok, "```python\n", "print('hi')\n", "```")
		assert.True(t, e.HasReachedAcceptState())
	})

	t.Run("body failing strict check does not accept", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok, engine.WithGrammar("python", fenceRejectingValidator{}, "```python\n", "```"))
		require.NoError(t, e.Configure(ctx, schemaSrc))

		feedChunks(t, e, tok, "```python\n", "def def\n", "```")
		assert.False(t, e.HasReachedAcceptState())
	})
}

func TestEngine_S6_NumericBounds(t *testing.T) {
	schemaSrc := map[string]any{"type": "number", "minimum": 10, "maximum": 20}

	t.Run("in range accepts", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok)
		require.NoError(t, e.Configure(ctx, schemaSrc))
		feedChunks(t, e, tok, "15")
		assert.True(t, e.HasReachedAcceptState())
	})

	t.Run("out of range rejects", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok)
		require.NoError(t, e.Configure(ctx, schemaSrc))
		feedChunks(t, e, tok, "25")
		assert.False(t, e.HasReachedAcceptState())
	})

	t.Run("bound only checked once the number is complete", func(t *testing.T) {
		ctx := context.Background()
		tok := vocabmock.New()
		e := engine.New(tok)
		require.NoError(t, e.Configure(ctx, schemaSrc))

		feedChunks(t, e, tok, "1")
		assert.False(t, e.HasReachedAcceptState(), `"1" alone is below the minimum and incomplete`)

		feedChunks(t, e, tok, "5")
		assert.True(t, e.HasReachedAcceptState(), `"1"+"5" completes to 15, which is in range`)
	})
}

// TestEngine_S7_MaskedTokenTriggersDefensiveResample exercises the wiring
// between ProcessLogits' mask and Sample's defensive re-sample: a sampler
// that proposes an id with no live continuation must not be trusted
// verbatim, and Sample is expected to retry until it lands on one the live
// stepper set actually accepts. No id here has a healing expansion; token
// healing (an oversized id decomposing into several smaller real ids) is
// covered against [vocab.BuildMask] directly in pkg/vocab/mask_test.go.
func TestEngine_S7_MaskedTokenTriggersDefensiveResample(t *testing.T) {
	ctx := context.Background()
	tok := vocabmock.New("true", "false", "tXue")
	e := engine.New(tok, engine.WithMultiTokenSampling(true))
	require.NoError(t, e.Configure(ctx, map[string]any{"type": "boolean"}))

	v := vocab.NewVocabulary(tok)
	idTrue, ok := v.ID("true")
	require.True(t, ok)
	idFalse, ok := v.ID("false")
	require.True(t, ok)
	idBogus, ok := v.ID("tXue")
	require.True(t, ok)

	scores := map[int32]float64{idTrue: -1, idFalse: -5, idBogus: -0.01}
	out, err := e.ProcessLogits(ctx, scores)
	require.NoError(t, err)
	assert.Equal(t, vocab.NegInf, out[idBogus], `"tXue" matches neither "true" nor "false" and has no valid decomposition`)
	assert.NotEqual(t, vocab.NegInf, out[idTrue])

	calls := 0
	sampler := func(map[int32]float64) int32 {
		calls++
		if calls == 1 {
			return idBogus
		}
		return idTrue
	}
	ids, err := e.Sample(ctx, out, sampler)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "the bogus id must be rejected once before the sampler retries")
	assert.Equal(t, "true", tok.Decode(ids))

	require.NoError(t, e.ConsumeTokens(ctx, ids))
	assert.True(t, e.HasReachedAcceptState())
}
