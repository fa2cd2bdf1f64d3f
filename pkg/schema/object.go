package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	"github.com/kestrelsoft/pse/pkg/jsonvalue"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Object stages. Unlike [jsonvalue.Object] (whose members are a
// schema-less [composite.Loop] over a single generic member shape),
// ObjectSchema's candidate set at each member boundary depends on which
// properties have already been seen, which [composite.Loop] can't express
// — its Inner machine is fixed across every repetition. So ObjectSchema
// drives its own small stage machine instead, rebuilding the candidate set
// every time it re-enters the member-or-close decision point.
const (
	objOpen         sm.StateID = "open"
	objBeforeMember sm.StateID = "beforeMember"
	objMemberOrEnd  sm.StateID = "memberOrEnd"
	objAfterMember  sm.StateID = "afterMember"
	objCloseOrSep   sm.StateID = "closeOrSep"
)

const (
	tagClose = "}"
	tagComma = ","
	tagExtra = "" // additionalProperties member, key not known in advance
)

type objectProperty struct {
	name     string
	quoted   string
	machine  sm.StateMachine
	required bool
}

// ObjectSchema is a [sm.StateMachine] accepting a JSON object whose members
// must match the declared properties by name (each with its own compiled
// value schema), offering "}" only once every required property has been
// seen and "," only while candidates — a not-yet-seen declared property, or
// an additional member when allowed — remain.
type ObjectSchema struct {
	properties        []objectProperty
	required          map[string]bool
	additionalAllowed bool
	additional        sm.StateMachine
}

func (c *compiler) compileObject(schema map[string]any, path string) (sm.StateMachine, error) {
	propsRaw, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	if reqs, ok := schema["required"].([]any); ok {
		for _, r := range reqs {
			name, ok := r.(string)
			if !ok {
				continue
			}
			required[name] = true
		}
	}
	for name := range required {
		if _, ok := propsRaw[name]; !ok {
			return nil, fmt.Errorf("%w: required property %q at %s is not declared in properties", ErrInvalidSchema, name, path)
		}
	}

	props := make([]objectProperty, 0, len(propsRaw))
	for name, sub := range propsRaw {
		m, err := c.compile(sub, path+"/properties/"+name)
		if err != nil {
			return nil, err
		}
		quoted, err := jsonQuote(name)
		if err != nil {
			return nil, fmt.Errorf("%w: property name %q: %v", ErrInvalidSchema, name, err)
		}
		props = append(props, objectProperty{name: name, quoted: quoted, machine: m, required: required[name]})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].name < props[j].name })

	o := &ObjectSchema{properties: props, required: required, additionalAllowed: true}
	if ap, ok := schema["additionalProperties"]; ok {
		switch v := ap.(type) {
		case bool:
			o.additionalAllowed = v
		default:
			m, err := c.compile(v, path+"/additionalProperties")
			if err != nil {
				return nil, err
			}
			o.additionalAllowed = true
			o.additional = m
		}
	}
	return o, nil
}

func jsonQuote(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (o *ObjectSchema) NewStepper(state *sm.StateID) []sm.Stepper {
	st := objOpen
	if state != nil {
		st = *state
	}
	s := &objectSchemaStepper{
		schema: o,
		stage:  st,
		seen:   map[string]bool{},
		values: orderedmap.New[string, any](),
		sub:    acceptor.NewPhrase("{").NewStepper(nil),
	}
	return []sm.Stepper{s}
}

func (o *ObjectSchema) Edges(sm.StateID) []sm.Edge     { return nil }
func (o *ObjectSchema) StartState() sm.StateID         { return objOpen }
func (o *ObjectSchema) EndStates() map[sm.StateID]bool { return map[sm.StateID]bool{} }
func (o *ObjectSchema) IsOptional() bool               { return false }
func (o *ObjectSchema) CaseSensitive() bool            { return true }

// unseenProperties returns every declared property not yet in seen.
func (o *ObjectSchema) unseenProperties(seen map[string]bool) []objectProperty {
	out := make([]objectProperty, 0, len(o.properties))
	for _, p := range o.properties {
		if !seen[p.name] {
			out = append(out, p)
		}
	}
	return out
}

func (o *ObjectSchema) requiredSatisfied(seen map[string]bool) bool {
	for name := range o.required {
		if !seen[name] {
			return false
		}
	}
	return true
}

// taggedStepper carries a label alongside an inner stepper, used both to
// identify which declared property a member candidate corresponds to
// (tag = property name, tagExtra for additionalProperties) and to
// distinguish the "," vs "}" candidates at a close-or-separator decision
// point (tagComma / tagClose).
type taggedStepper struct {
	sm.Stepper
	tag string
}

func (t *taggedStepper) Clone() sm.Stepper {
	return &taggedStepper{Stepper: t.Stepper.Clone(), tag: t.tag}
}

func (t *taggedStepper) Consume(token string) []sm.Stepper {
	out := make([]sm.Stepper, 0, 1)
	for _, s := range t.Stepper.Consume(token) {
		out = append(out, &taggedStepper{Stepper: s, tag: t.tag})
	}
	return out
}

type objectSchemaStepper struct {
	schema *ObjectSchema
	stage  sm.StateID
	sub    []sm.Stepper
	seen   map[string]bool
	values *orderedmap.OrderedMap[string, any]
	raw    string
	rem    string

	// closeAllowed carries whether "}" may ever be offered the next time
	// objMemberOrEnd is entered from the whitespace run now in progress. It
	// is true coming straight from "{" (an empty object is legal when there
	// are no required properties) and false coming from a ",", since a
	// trailing comma before "}" is never legal JSON regardless of which
	// properties have been seen.
	closeAllowed bool
}

func cloneSeen(seen map[string]bool) map[string]bool {
	out := make(map[string]bool, len(seen))
	for k, v := range seen {
		out[k] = v
	}
	return out
}

func cloneValues(values *orderedmap.OrderedMap[string, any]) *orderedmap.OrderedMap[string, any] {
	out := orderedmap.New[string, any]()
	for pair := values.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func (s *objectSchemaStepper) StateMachine() sm.StateMachine { return s.schema }
func (s *objectSchemaStepper) State() sm.StateID             { return s.stage }

func (s *objectSchemaStepper) Clone() sm.Stepper {
	next := &objectSchemaStepper{
		schema:       s.schema,
		stage:        s.stage,
		seen:         cloneSeen(s.seen),
		values:       cloneValues(s.values),
		raw:          s.raw,
		closeAllowed: s.closeAllowed,
	}
	for _, sub := range s.sub {
		next.sub = append(next.sub, sub.Clone())
	}
	return next
}

// keyCandidates builds one tagged stepper per not-yet-seen declared
// property, plus one for additionalProperties when allowed.
func (s *objectSchemaStepper) keyCandidates() []sm.Stepper {
	var out []sm.Stepper
	for _, p := range s.schema.unseenProperties(s.seen) {
		chain := composite.NewChain(
			acceptor.NewPhrase(p.quoted),
			acceptor.Whitespace(0),
			acceptor.NewPhrase(":"),
			acceptor.Whitespace(0),
			p.machine,
		)
		for _, cs := range chain.NewStepper(nil) {
			out = append(out, &taggedStepper{Stepper: cs, tag: p.name})
		}
	}
	if s.schema.additionalAllowed {
		valueMachine := s.schema.additional
		if valueMachine == nil {
			valueMachine = jsonvalue.NewValue()
		}
		kv := jsonvalue.NewKeyValue(valueMachine)
		for _, cs := range kv.NewStepper(nil) {
			out = append(out, &taggedStepper{Stepper: cs, tag: tagExtra})
		}
	}
	return out
}

func (s *objectSchemaStepper) closeOrSepCandidates(allowClose bool) []sm.Stepper {
	var out []sm.Stepper
	if s.schema.additionalAllowed || len(s.schema.unseenProperties(s.seen)) > 0 {
		for _, cs := range acceptor.NewPhrase(",").NewStepper(nil) {
			out = append(out, &taggedStepper{Stepper: cs, tag: tagComma})
		}
	}
	if allowClose {
		for _, cs := range acceptor.NewPhrase("}").NewStepper(nil) {
			out = append(out, &taggedStepper{Stepper: cs, tag: tagClose})
		}
	}
	return out
}

func (s *objectSchemaStepper) withStage(stage sm.StateID, sub []sm.Stepper, consumed string, closeAllowed bool) *objectSchemaStepper {
	next := &objectSchemaStepper{
		schema:       s.schema,
		stage:        stage,
		seen:         cloneSeen(s.seen),
		values:       cloneValues(s.values),
		raw:          s.raw + consumed,
		sub:          sub,
		closeAllowed: closeAllowed,
	}
	return next
}

// enter builds the candidate sub-steppers for stage and either parks there
// (remaining == "") or immediately feeds remaining into them, cascading as
// many further stage transitions as a single Consume call's token spans.
// closeAllowed is only consulted once objMemberOrEnd is reached, but is
// threaded through every intermediate whitespace stage so it survives until
// then — see the closeAllowed field doc.
func (s *objectSchemaStepper) enter(stage sm.StateID, consumed, remaining string, closeAllowed bool) []sm.Stepper {
	next := s.withStage(stage, nil, consumed, closeAllowed)
	next.sub = next.candidatesFor(stage)
	if remaining == "" {
		return []sm.Stepper{next}
	}
	return next.Consume(remaining)
}

func (s *objectSchemaStepper) candidatesFor(stage sm.StateID) []sm.Stepper {
	switch stage {
	case objBeforeMember:
		return acceptor.Whitespace(0).NewStepper(nil)
	case objMemberOrEnd:
		candidates := s.keyCandidates()
		if s.closeAllowed && s.schema.requiredSatisfied(s.seen) {
			for _, cs := range acceptor.NewPhrase("}").NewStepper(nil) {
				candidates = append(candidates, &taggedStepper{Stepper: cs, tag: tagClose})
			}
		}
		return candidates
	case objAfterMember:
		return acceptor.Whitespace(0).NewStepper(nil)
	case objCloseOrSep:
		return s.closeOrSepCandidates(s.schema.requiredSatisfied(s.seen))
	}
	return nil
}

func (s *objectSchemaStepper) Consume(token string) []sm.Stepper {
	if token == "" || s.stage == sm.EndState {
		return nil
	}
	advanced := sm.AdvanceAllBasic(s.sub, token)
	var out []sm.Stepper
	for _, a := range advanced {
		consumed := token
		if rem := a.Remaining(); rem != "" {
			consumed = token[:len(token)-len(rem)]
		}
		out = append(out, s.onAdvance(a, consumed)...)
	}
	return out
}

func (s *objectSchemaStepper) onAdvance(a sm.Stepper, consumed string) []sm.Stepper {
	remaining := a.Remaining()
	switch s.stage {
	case objOpen:
		if !a.HasReachedAcceptState() {
			return []sm.Stepper{s.withStage(objOpen, []sm.Stepper{a}, consumed, s.closeAllowed)}
		}
		// Right after "{": an empty object is legal when nothing is
		// required, so close is allowed once objMemberOrEnd is reached.
		return s.enter(objBeforeMember, consumed, remaining, true)

	case objBeforeMember:
		var out []sm.Stepper
		if a.CanAcceptMoreInput() {
			out = append(out, s.withStage(objBeforeMember, []sm.Stepper{a}, consumed, s.closeAllowed))
		}
		if a.HasReachedAcceptState() {
			out = append(out, s.enter(objMemberOrEnd, consumed, remaining, s.closeAllowed)...)
		}
		return out

	case objMemberOrEnd:
		if !a.HasReachedAcceptState() {
			return []sm.Stepper{s.withStage(objMemberOrEnd, []sm.Stepper{a}, consumed, s.closeAllowed)}
		}
		return s.resolveMemberOrClose(a, consumed, remaining)

	case objAfterMember:
		var out []sm.Stepper
		if a.CanAcceptMoreInput() {
			out = append(out, s.withStage(objAfterMember, []sm.Stepper{a}, consumed, s.closeAllowed))
		}
		if a.HasReachedAcceptState() {
			out = append(out, s.enter(objCloseOrSep, consumed, remaining, s.closeAllowed)...)
		}
		return out

	case objCloseOrSep:
		if !a.HasReachedAcceptState() {
			return []sm.Stepper{s.withStage(objCloseOrSep, []sm.Stepper{a}, consumed, s.closeAllowed)}
		}
		return s.resolveCloseOrSep(a, consumed, remaining)
	}
	return nil
}

func (s *objectSchemaStepper) resolveMemberOrClose(a sm.Stepper, consumed, remaining string) []sm.Stepper {
	tagged, ok := a.(*taggedStepper)
	if !ok {
		return nil
	}
	if tagged.tag == tagClose {
		done := s.withStage(sm.EndState, nil, consumed, false)
		done.rem = remaining
		return []sm.Stepper{done}
	}
	next := s.withStage(objAfterMember, nil, consumed, false)
	next.recordMember(tagged)
	return next.enter(objAfterMember, "", remaining, false)
}

func (s *objectSchemaStepper) resolveCloseOrSep(a sm.Stepper, consumed, remaining string) []sm.Stepper {
	tagged, ok := a.(*taggedStepper)
	if !ok {
		return nil
	}
	if tagged.tag == tagClose {
		done := s.withStage(sm.EndState, nil, consumed, false)
		done.rem = remaining
		return []sm.Stepper{done}
	}
	// A "," was just consumed: the member that follows can never be the
	// object's last, so "}" must not be offered once objMemberOrEnd is
	// reached next, even if every required property is already seen.
	return s.enter(objBeforeMember, consumed, remaining, false)
}

// recordMember stores the (key, value) pair a taggedStepper just completed
// into s's accumulated members, marking a declared property as seen so it
// is excluded from future member candidate sets.
func (s *objectSchemaStepper) recordMember(tagged *taggedStepper) {
	if tagged.tag != tagExtra {
		_, v := tagged.Stepper.CurrentValue()
		parts, _ := v.([]any)
		var val any
		if len(parts) == 5 {
			val = parts[4]
		}
		s.values.Set(tagged.tag, val)
		s.seen[tagged.tag] = true
		return
	}
	_, v := tagged.Stepper.CurrentValue()
	if kv, ok := v.(jsonvalue.KV); ok && kv.Key != "" {
		s.values.Set(kv.Key, kv.Value)
	}
}

func (s *objectSchemaStepper) CurrentValue() (string, any) { return s.raw, s.values }

func (s *objectSchemaStepper) HasReachedAcceptState() bool { return s.stage == sm.EndState }

func (s *objectSchemaStepper) CanAcceptMoreInput() bool { return s.stage != sm.EndState }

func (s *objectSchemaStepper) IsWithinValue() bool { return s.raw != "" && s.stage != sm.EndState }

func (s *objectSchemaStepper) Remaining() string { return s.rem }

func (s *objectSchemaStepper) Equal(other sm.Stepper) bool {
	o, ok := other.(*objectSchemaStepper)
	if !ok || o.stage != s.stage || o.raw != s.raw || o.closeAllowed != s.closeAllowed || len(o.sub) != len(s.sub) {
		return false
	}
	for i := range s.sub {
		if !s.sub[i].Equal(o.sub[i]) {
			return false
		}
	}
	return true
}

func (s *objectSchemaStepper) HashKey() string {
	names := make([]string, 0, len(s.seen))
	for k := range s.seen {
		names = append(names, k)
	}
	sort.Strings(names)
	key := fmt.Sprintf("objschema|%s|%s|%v|%v", s.stage, s.raw, names, s.closeAllowed)
	for _, sub := range s.sub {
		key += "|" + sub.HashKey()
	}
	return key
}
