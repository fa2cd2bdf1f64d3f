// Package schema compiles a JSON Schema document into the C5 layer: a
// [sm.StateMachine] built entirely out of the C1/C2/C4 acceptors that
// accepts exactly the JSON token streams satisfying the schema. $ref cycles
// are tied the same way [jsonvalue]'s Value dispatcher ties its own
// self-reference — a mutable wrapper assigned after the recursive compile
// call returns — and allOf/anyOf/oneOf/type dispatch follow the original
// grammar's own compiler rather than a general-purpose JSON Schema library,
// since the output here has to be a steppable acceptor graph, not a
// validator function.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kestrelsoft/pse/pkg/jsonvalue"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Source is anything [Compile] accepts: a decoded schema document
// (map[string]any), raw JSON text (string or []byte), or a []Source union —
// compiled as an implicit anyOf over its members, for callers composing
// several candidate schemas without wrapping them in an object themselves.
type Source any

// Compile resolves source into a [sm.StateMachine]. $defs/definitions are
// gathered up front so $ref can resolve forward or backward references
// regardless of where in the document they're declared.
func Compile(source Source) (sm.StateMachine, error) {
	var doc any = source
	if union, ok := source.([]Source); ok {
		alts := make([]any, len(union))
		for i, s := range union {
			alts[i] = s
		}
		doc = map[string]any{"anyOf": alts}
	}
	// A bare top-level "true"/"false" schema has no object to gather $defs
	// from, so it bypasses toMap and goes straight to compile's own bool
	// handling rather than being rejected as "not an object".
	if b, ok := doc.(bool); ok {
		return newCompiler(map[string]any{}).compile(b, "#")
	}
	root, err := toMap(doc)
	if err != nil {
		return nil, err
	}
	c := newCompiler(root)
	return c.compile(root, "#")
}

type compiler struct {
	root  map[string]any
	defs  map[string]any
	cache map[string]*refMachine
}

func newCompiler(root map[string]any) *compiler {
	defs := map[string]any{}
	for _, key := range []string{"$defs", "definitions"} {
		if m, ok := root[key].(map[string]any); ok {
			for k, v := range m {
				defs[k] = v
			}
		}
	}
	return &compiler{root: root, defs: defs, cache: map[string]*refMachine{}}
}

// compile dispatches on doc, which may be a nested schema already decoded
// as map[string]any, raw JSON text, or (rarely, at a nested position) a
// bare JSON Schema boolean (true accepts anything, false accepts nothing).
func (c *compiler) compile(doc any, path string) (sm.StateMachine, error) {
	if b, ok := doc.(bool); ok {
		if b {
			return jsonvalue.NewValue(), nil
		}
		return nil, fmt.Errorf("%w: schema \"false\" at %s accepts no value", ErrUnsupported, path)
	}

	schema, err := toMap(doc)
	if err != nil {
		return nil, err
	}

	if ref, ok := schema["$ref"].(string); ok {
		return c.resolveRef(ref)
	}
	if subs, ok := schema["allOf"].([]any); ok {
		merged, err := mergeAllOf(schema, subs)
		if err != nil {
			return nil, err
		}
		return c.compile(merged, path)
	}
	if subs, ok := schema["anyOf"].([]any); ok {
		return c.compileUnion(subs, path+"/anyOf")
	}
	if subs, ok := schema["oneOf"].([]any); ok {
		// oneOf's exclusivity (exactly one alternative, not "at least one")
		// can't be enforced incrementally before the value is complete, so
		// it compiles identically to anyOf — a pragmatic relaxation, not a
		// rejection of the keyword.
		return c.compileUnion(subs, path+"/oneOf")
	}
	if _, ok := schema["not"]; ok {
		return nil, fmt.Errorf("%w: \"not\" at %s", ErrUnsupported, path)
	}
	if enumVals, ok := schema["enum"].([]any); ok {
		return compileEnum(enumVals)
	}
	if constVal, hasConst := schema["const"]; hasConst {
		return compileEnum([]any{constVal})
	}

	switch t := schema["type"].(type) {
	case []any:
		alts := make([]any, 0, len(t))
		for _, one := range t {
			sub := cloneShallow(schema)
			delete(sub, "type")
			sub["type"] = one
			alts = append(alts, sub)
		}
		return c.compileUnion(alts, path+"/type")
	case string:
		return c.compileTyped(t, schema, path)
	case nil:
		return c.compileInferred(schema, path)
	default:
		return nil, fmt.Errorf("%w: type at %s must be a string or array of strings", ErrInvalidSchema, path)
	}
}

func (c *compiler) compileInferred(schema map[string]any, path string) (sm.StateMachine, error) {
	if _, ok := schema["properties"]; ok {
		return c.compileObject(schema, path)
	}
	if _, ok := schema["items"]; ok {
		return c.compileArray(schema, path)
	}
	return jsonvalue.NewValue(), nil
}

func (c *compiler) compileTyped(t string, schema map[string]any, path string) (sm.StateMachine, error) {
	var (
		m   sm.StateMachine
		err error
	)
	switch t {
	case "object":
		m, err = c.compileObject(schema, path)
	case "array":
		m, err = c.compileArray(schema, path)
	case "string":
		m, err = c.compileString(schema)
	case "number":
		m, err = c.compileNumber(schema, false)
	case "integer":
		m, err = c.compileNumber(schema, true)
	case "boolean":
		m = compileBoolean()
	case "null":
		m = compileNull()
	default:
		return nil, fmt.Errorf("%w: unknown type %q at %s", ErrInvalidSchema, t, path)
	}
	if err != nil {
		return nil, err
	}
	if nullable, _ := schema["nullable"].(bool); nullable && t != "null" {
		return compileNullable(m), nil
	}
	return m, nil
}

func (c *compiler) compileUnion(alts []any, path string) (sm.StateMachine, error) {
	if len(alts) == 0 {
		return nil, fmt.Errorf("%w: empty alternative list at %s", ErrInvalidSchema, path)
	}
	machines := make([]sm.StateMachine, 0, len(alts))
	for i, alt := range alts {
		m, err := c.compile(alt, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return newAnyOf(machines...), nil
}

func (c *compiler) resolveRef(ref string) (sm.StateMachine, error) {
	if m, ok := c.cache[ref]; ok {
		return m, nil
	}
	placeholder := &refMachine{}
	c.cache[ref] = placeholder
	target, err := c.lookupRef(ref)
	if err != nil {
		return nil, err
	}
	resolved, err := c.compile(target, ref)
	if err != nil {
		return nil, err
	}
	placeholder.target = resolved
	return placeholder, nil
}

func (c *compiler) lookupRef(ref string) (any, error) {
	if ref == "#" {
		return c.root, nil
	}
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if name, ok := trimPrefix(ref, prefix); ok {
			if v, ok := c.defs[name]; ok {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: undefined $ref %q", ErrInvalidSchema, ref)
}

func trimPrefix(s, prefix string) (string, bool) {
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

func mergeAllOf(schema map[string]any, subs []any) (map[string]any, error) {
	merged := cloneShallow(schema)
	delete(merged, "allOf")
	for _, sub := range subs {
		subDoc, err := toMap(sub)
		if err != nil {
			return nil, err
		}
		for k, v := range subDoc {
			switch k {
			case "properties":
				mp, _ := merged["properties"].(map[string]any)
				if mp == nil {
					mp = map[string]any{}
				} else {
					mp = cloneShallow(mp)
				}
				if sp, ok := v.(map[string]any); ok {
					for pk, pv := range sp {
						mp[pk] = pv
					}
				}
				merged["properties"] = mp
			case "required":
				mr, _ := merged["required"].([]any)
				sr, _ := v.([]any)
				merged["required"] = append(append([]any(nil), mr...), sr...)
			default:
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func cloneShallow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toMap(doc any) (map[string]any, error) {
	switch v := doc.(type) {
	case map[string]any:
		return v, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		return m, nil
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: schema document must be an object, got %T", ErrInvalidSchema, doc)
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
