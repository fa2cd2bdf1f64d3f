package schema

import (
	"net/mail"
	"net/url"
	"time"
)

// formatValidator checks a completed string value against a named JSON
// Schema "format" keyword. format is a post-hoc completion check, not a
// parsing constraint — there's no useful way to reject a partial string
// mid-token as "not shaping up to be an email", so it only runs once the
// closing quote is seen.
type formatValidator func(value string) bool

// formatValidators lists only the handful of formats implemented here
// ("email", "date-time", "uri"); requesting any other format is an
// [ErrUnsupported] schema.
var formatValidators = map[string]formatValidator{
	"email": func(v string) bool {
		_, err := mail.ParseAddress(v)
		return err == nil
	},
	"date-time": func(v string) bool {
		_, err := time.Parse(time.RFC3339, v)
		return err == nil
	},
	"uri": func(v string) bool {
		u, err := url.Parse(v)
		return err == nil && u.IsAbs()
	},
}
