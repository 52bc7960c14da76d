package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

func mustParse(t *testing.T, raw string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(raw))
	require.NoError(t, err)
	return v
}

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "top level password",
			input: `{"username":"alice","password":"p1"}`,
			want:  `{"username":"alice","password":"[REDACTED]"}`,
		},
		{
			name:  "case insensitive substring",
			input: `{"apiKeyValue":"k","AdminPassword":"x","Authorization":"Bearer t","clientSecret":{"nested":1}}`,
			want:  `{"apiKeyValue":"[REDACTED]","AdminPassword":"[REDACTED]","Authorization":"[REDACTED]","clientSecret":"[REDACTED]"}`,
		},
		{
			name:  "nested objects",
			input: `{"databaseName":"db","document":{"profile":{"token":"abc","age":3}}}`,
			want:  `{"databaseName":"db","document":{"profile":{"token":"[REDACTED]","age":3}}}`,
		},
		{
			name:  "arrays of objects",
			input: `{"users":[{"name":"a","password":"1"},{"name":"b","password":"2"}],"tags":["x",1,null]}`,
			want:  `{"users":[{"name":"a","password":"[REDACTED]"},{"name":"b","password":"[REDACTED]"}],"tags":["x",1,null]}`,
		},
		{
			name:  "keyword substring inside unrelated word",
			input: `{"monkey":"banana","author":"me"}`,
			want:  `{"monkey":"[REDACTED]","author":"[REDACTED]"}`,
		},
		{
			name:  "scalar root",
			input: `"password"`,
			want:  `"password"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(mustParse(t, tt.input))
			assert.Equal(t, tt.want, marshal(t, got))
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	input := mustParse(t, `{"a":[{"secret":{"x":1}},{"ok":true}],"token":null,"n":1.5}`)

	once := Sanitize(input)
	twice := Sanitize(once)

	assert.Equal(t, marshal(t, once), marshal(t, twice))
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	input := mustParse(t, `{"password":"p1","nested":{"token":"t"}}`)
	before := marshal(t, input)

	_ = Sanitize(input)

	assert.Equal(t, before, marshal(t, input))
}

func TestSanitizeNil(t *testing.T) {
	assert.Nil(t, Sanitize(nil))
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("adminUsername"))
	assert.True(t, IsSensitiveKey("X-Auth"))
	assert.False(t, IsSensitiveKey("databaseName"))
	assert.False(t, IsSensitiveKey("username"))
}
