package audit

import (
	"strings"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

// RedactedMarker replaces the value of every sensitive key.
const RedactedMarker = "[REDACTED]"

// sensitiveKeyFragments are matched as lowercase substrings of object keys.
var sensitiveKeyFragments = []string{
	"password",
	"adminpassword",
	"adminusername",
	"auth",
	"authorization",
	"token",
	"key",
	"secret",
}

// IsSensitiveKey reports whether a parameter key must be redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of v with the value of every sensitive object
// key replaced by RedactedMarker, at any depth. Leaves are returned as-is.
// Sanitize is idempotent. Cyclic input is not supported.
func Sanitize(v value.Value) value.Value {
	switch t := v.(type) {
	case nil:
		return nil
	case *value.Object:
		out := value.NewObject()
		t.Range(func(key string, item value.Value) bool {
			if IsSensitiveKey(key) {
				out.Set(key, value.String(RedactedMarker))
			} else {
				out.Set(key, Sanitize(item))
			}
			return true
		})
		return out
	case value.List:
		out := make(value.List, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	case value.Null, value.Bool, value.Number, value.String:
		return t
	default:
		return t
	}
}
