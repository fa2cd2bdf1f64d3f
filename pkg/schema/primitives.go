package schema

import (
	"github.com/kestrelsoft/pse/pkg/acceptor"
	"github.com/kestrelsoft/pse/pkg/acceptor/composite"
	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// newAnyOf is a thin naming wrapper over [composite.NewAny] so schema.go's
// call sites read as schema vocabulary rather than reaching into the
// composite package directly.
func newAnyOf(alts ...sm.StateMachine) sm.StateMachine { return composite.NewAny(alts...) }

func compileBoolean() sm.StateMachine { return acceptor.NewBoolean() }

func compileNull() sm.StateMachine { return acceptor.NewPhrase("null") }

func compileNullable(m sm.StateMachine) sm.StateMachine {
	return composite.NewAny(m, acceptor.NewPhrase("null"))
}
