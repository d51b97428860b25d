// Package variables resolves call-scoped placeholder tokens inside
// organization-authored tool configuration.
//
// Placeholders use double-brace syntax, e.g. {{caller_phone_number}}.
// Substitution is applied to static config at execution time, never at
// tool-build time, so templates survive round-trips through the store.
package variables

import (
	"regexp"
)

// Well-known variable names.
const (
	VarCallerPhoneNumber = "caller_phone_number"
	VarCalledPhoneNumber = "called_phone_number"
	VarCallID            = "call_id"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Context holds the call-scoped values available for substitution.
// Contexts are constructed fresh per invocation; nothing is shared
// between concurrent calls.
type Context struct {
	CallerPhoneNumber string
	CalledPhoneNumber string
	CallID            string
	Extra             map[string]string
}

// Values returns the full name -> value map for this context.
func (c Context) Values() map[string]string {
	values := map[string]string{
		VarCallerPhoneNumber: c.CallerPhoneNumber,
		VarCalledPhoneNumber: c.CalledPhoneNumber,
		VarCallID:            c.CallID,
	}
	for name, value := range c.Extra {
		values[name] = value
	}
	return values
}

// SubstituteString replaces every known placeholder in s with its context
// value. Unknown placeholders are left verbatim so misconfigured templates
// are visible downstream instead of silently emptied.
func (c Context) SubstituteString(s string) string {
	if !placeholderPattern.MatchString(s) {
		return s
	}

	values := c.Values()
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := values[name]; ok {
			return value
		}
		return match
	})
}

// Substitute walks an arbitrary JSON-like value and substitutes placeholders
// in every string it contains. Maps and slices are copied, non-string leaves
// are returned unchanged.
func (c Context) Substitute(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return c.SubstituteString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = c.Substitute(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = c.Substitute(val)
		}
		return out
	default:
		return value
	}
}

// SubstituteMap is a convenience wrapper for the common static-config case.
func (c Context) SubstituteMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return c.Substitute(m).(map[string]interface{})
}

// SubstituteStrings substitutes placeholders across a string slice.
func (c Context) SubstituteStrings(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = c.SubstituteString(item)
	}
	return out
}
