package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/couchdb-mcp/internal/config"
	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
)

func roundTrip(t *testing.T, env *testEnv, msg string) map[string]interface{} {
	t.Helper()
	resp := env.server.HandleMessage(context.Background(), []byte(msg))
	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "2.0", out["jsonrpc"])
	return out
}

func rpcErrorCode(t *testing.T, out map[string]interface{}) int {
	t.Helper()
	e, ok := out["error"].(map[string]interface{})
	require.True(t, ok, "expected error member, got %v", out)
	return int(e["code"].(float64))
}

func TestHandleInitialize(t *testing.T) {
	env := newTestEnv(t)

	out := roundTrip(t, env, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	assert.Equal(t, float64(1), out["id"])
	result := out["result"].(map[string]interface{})
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Contains(t, result["capabilities"], "tools")
	assert.Equal(t, "couchdb-mcp", result["serverInfo"].(map[string]interface{})["name"])
}

func TestHandlePing(t *testing.T) {
	env := newTestEnv(t)

	out := roundTrip(t, env, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	assert.Equal(t, "abc", out["id"])
	assert.Equal(t, map[string]interface{}{}, out["result"])
	assert.NotContains(t, out, "error")
}

func TestHandleToolsList(t *testing.T) {
	env := newTestEnv(t)

	out := roundTrip(t, env, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	list := out["result"].(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, list, len(tools.ToolTaxonomy))

	first := list[0].(map[string]interface{})
	assert.Contains(t, first, "name")
	assert.Contains(t, first, "description")
	assert.Contains(t, first, "inputSchema")
}

func TestHandleToolsCall(t *testing.T) {
	env := newTestEnv(t)

	out := roundTrip(t, env, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"create-database","arguments":{"databaseName":"db"}}}`)
	result := out["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0].(map[string]interface{})["type"])
	assert.Equal(t, "Database db created successfully", content[0].(map[string]interface{})["text"])
	assert.NotContains(t, result, "isError")

	out = roundTrip(t, env, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"delete-database","arguments":{"databaseName":"ghost"}}}`)
	result = out["result"].(map[string]interface{})
	assert.Equal(t, true, result["isError"])
}

func TestHandleToolsCallInvalidParams(t *testing.T) {
	env := newTestEnv(t)

	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":5,"method":"tools/call"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":[]}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"arguments":{}}}`,
	} {
		out := roundTrip(t, env, msg)
		assert.Equal(t, CodeInvalidParams, rpcErrorCode(t, out), msg)
	}
}

func TestHandleToolsCallRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})

	msg := `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"list-databases"}}`
	out := roundTrip(t, env, msg)
	assert.Contains(t, out, "result")

	out = roundTrip(t, env, msg)
	assert.Equal(t, CodeRateLimited, rpcErrorCode(t, out))
}

func TestHandleMessageErrors(t *testing.T) {
	env := newTestEnv(t)

	out := roundTrip(t, env, `{not json`)
	assert.Equal(t, CodeParseError, rpcErrorCode(t, out))
	assert.Nil(t, out["id"])

	out = roundTrip(t, env, `{"jsonrpc":"1.0","id":7,"method":"ping"}`)
	assert.Equal(t, CodeInvalidRequest, rpcErrorCode(t, out))
	assert.Equal(t, float64(7), out["id"])

	out = roundTrip(t, env, `{"jsonrpc":"2.0","id":8,"method":"resources/list"}`)
	assert.Equal(t, CodeMethodNotFound, rpcErrorCode(t, out))
}

func TestHandleNotification(t *testing.T) {
	env := newTestEnv(t)

	resp := env.server.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, resp)

	resp = env.server.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping"}`))
	assert.Nil(t, resp)
}
