package schema

import "errors"

// ErrInvalidSchema is returned (wrapped with context via %w) when a schema
// document itself is malformed: an undefined $ref target, a required
// property absent from properties, a malformed pattern/format, and so on.
var ErrInvalidSchema = errors.New("schema: invalid schema")

// ErrUnsupported is returned for syntactically valid keywords this compiler
// does not implement — currently just the "not" keyword, since autoregressive
// token-by-token generation admits no general way to enforce a negation
// (accepting general negation would require exploring the complement of an
// unbounded language, which cannot be pruned incrementally).
var ErrUnsupported = errors.New("schema: unsupported keyword")
