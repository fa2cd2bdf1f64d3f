// Package jsonvalue implements the C4 JSON value acceptors: object, array,
// key-value pair, and the top-level dispatch over every JSON value shape.
// Each is built by composing the C1/C2 primitive and composite acceptors
// rather than hand-rolling a fresh graph walker, mirroring how the original
// defines object/array/key-value purely in terms of Phrase/Whitespace/Chain
// sub-machines.
package jsonvalue

import (
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// KV is a parsed object member: a string key and its (possibly still
// partial) value.
type KV struct {
	Key   string
	Value any
}

// KeyValue is a [sm.StateMachine] accepting `"key" : value`, with
// insignificant whitespace permitted around the colon, where value is
// matched by valueMachine (typically a [Value] for a generic member, or a
// schema-compiled machine for a known property name).
type KeyValue struct {
	chain *composite.Chain
}

// NewKeyValue returns a [KeyValue] machine for members whose value must
// match valueMachine.
func NewKeyValue(valueMachine sm.StateMachine) *KeyValue {
	return &KeyValue{chain: composite.NewChain(
		acceptor.NewString(),
		acceptor.Whitespace(0),
		acceptor.NewPhrase(":"),
		acceptor.Whitespace(0),
		valueMachine,
	)}
}

func (k *KeyValue) NewStepper(state *sm.StateID) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, cs := range k.chain.NewStepper(state) {
		out = append(out, &keyValueStepper{inner: cs})
	}
	return out
}

func (k *KeyValue) Edges(s sm.StateID) []sm.Edge     { return k.chain.Edges(s) }
func (k *KeyValue) StartState() sm.StateID           { return k.chain.StartState() }
func (k *KeyValue) EndStates() map[sm.StateID]bool   { return k.chain.EndStates() }
func (k *KeyValue) IsOptional() bool                 { return false }
func (k *KeyValue) CaseSensitive() bool              { return k.chain.CaseSensitive() }

type keyValueStepper struct {
	inner sm.Stepper
}

func (s *keyValueStepper) StateMachine() sm.StateMachine { return s.inner.StateMachine() }
func (s *keyValueStepper) State() sm.StateID             { return s.inner.State() }
func (s *keyValueStepper) Clone() sm.Stepper             { return &keyValueStepper{inner: s.inner.Clone()} }

func (s *keyValueStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, n := range s.inner.Consume(token) {
		out = append(out, &keyValueStepper{inner: n})
	}
	return out
}

// CurrentValue returns the raw consumed text and a [KV]. The key is only
// populated once the inner String sub-machine has reached its own accept
// state; until then Key is the best-effort partial string content so a
// caller inspecting a mid-parse stepper still sees progress.
func (s *keyValueStepper) CurrentValue() (string, any) {
	raw, v := s.inner.CurrentValue()
	parts, _ := v.([]any)
	kv := KV{}
	if len(parts) > 0 {
		if key, ok := parts[0].(string); ok {
			kv.Key = key
		}
	}
	if len(parts) == 5 {
		kv.Value = parts[4]
	}
	return raw, kv
}

func (s *keyValueStepper) HasReachedAcceptState() bool { return s.inner.HasReachedAcceptState() }
func (s *keyValueStepper) CanAcceptMoreInput() bool    { return s.inner.CanAcceptMoreInput() }
func (s *keyValueStepper) IsWithinValue() bool         { return s.inner.IsWithinValue() }
func (s *keyValueStepper) Remaining() string           { return s.inner.Remaining() }
func (s *keyValueStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*keyValueStepper)
	return ok && s.inner.Equal(o.inner)
}
func (s *keyValueStepper) HashKey() string { return "kv|" + s.inner.HashKey() }
