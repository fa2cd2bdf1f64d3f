package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kestrelsoft/pse/pkg/acceptor"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// compileEnum builds a choice machine over the JSON encoding of each literal
// in values, e.g. enum: ["a","b"] becomes a choice between the literal
// phrases `"a"` and `"b"`; enum: [1,2,3] becomes a choice between `1`, `2`,
// `3`. const is compiled as a one-element enum.
func compileEnum(values []any) (sm.StateMachine, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty enum", ErrInvalidSchema)
	}
	alts := make([]sm.StateMachine, 0, len(values))
	for _, v := range values {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: enum value %v: %v", ErrInvalidSchema, v, err)
		}
		alts = append(alts, acceptor.NewPhrase(string(encoded)))
	}
	return newAnyOf(alts...), nil
}
