package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattackle-hq/cattackle-core/internal/registry"
	"github.com/cattackle-hq/cattackle-core/internal/session"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func newEchoPluginServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{},
			})
		case "tools/call":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result": map[string]any{
					"content": []map[string]any{{"type": "text", "text": reply}},
				},
			})
		}
	}))
}

func newHTTPRegistry(t *testing.T, pluginName, url string) *registry.Registry {
	t.Helper()

	dir := t.TempDir()
	pluginDir := filepath.Join(dir, pluginName)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))

	manifest := `
[cattackle]
name = "` + pluginName + `"
version = "1.0.0"

[cattackle.commands.echo]
description = "Echo"

[cattackle.mcp]
transport = "http"
url = "` + url + `"
timeout = 2
max_retries = 0
`
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "cattackle.toml"), []byte(manifest), 0o600))

	reg := registry.New(dir, nil)
	_, err := reg.Scan(context.Background())
	require.NoError(t, err)

	return reg
}

func TestExecuteOpensSessionAndReturnsReply(t *testing.T) {
	t.Parallel()

	server := newEchoPluginServer(t, "hello back")
	defer server.Close()

	reg := newHTTPRegistry(t, "echo", server.URL)
	mgr := session.NewManager(reg, nil)

	reply, err := mgr.Execute(context.Background(), "echo", "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)
}

func TestExecuteUnknownPluginOrCommand(t *testing.T) {
	t.Parallel()

	reg := newHTTPRegistry(t, "echo", "http://unused")
	mgr := session.NewManager(reg, nil)

	_, err := mgr.Execute(context.Background(), "echo", "nonexistent", nil)
	require.Error(t, err)
}

func TestExecuteReusesSessionAcrossCalls(t *testing.T) {
	t.Parallel()

	var opens int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		if req.Method == "initialize" {
			opens++
		}

		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
		case "tools/call":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"content": []map[string]any{{"type": "text", "text": "ok"}}},
			})
		}
	}))
	defer server.Close()

	reg := newHTTPRegistry(t, "echo", server.URL)
	mgr := session.NewManager(reg, nil)

	_, err := mgr.Execute(context.Background(), "echo", "echo", nil)
	require.NoError(t, err)
	_, err = mgr.Execute(context.Background(), "echo", "echo", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, opens)
}

func TestExecuteSurfacesApplicationErrorFromJSONRPCErrorObject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
		case "tools/call":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -1, "message": "bad arguments"},
			})
		}
	}))
	defer server.Close()

	reg := newHTTPRegistry(t, "echo", server.URL)
	mgr := session.NewManager(reg, nil)

	_, err := mgr.Execute(context.Background(), "echo", "echo", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad arguments")
}

func TestExecuteSurfacesApplicationErrorFromContentShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
		case "tools/call":
			text, _ := json.Marshal(map[string]any{"data": "", "error": "plugin exploded"})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"content": []map[string]any{{"type": "text", "text": string(text)}}},
			})
		}
	}))
	defer server.Close()

	reg := newHTTPRegistry(t, "echo", server.URL)
	mgr := session.NewManager(reg, nil)

	_, err := mgr.Execute(context.Background(), "echo", "echo", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin exploded")
}

func TestCloseAllClearsSessions(t *testing.T) {
	t.Parallel()

	server := newEchoPluginServer(t, "ok")
	defer server.Close()

	reg := newHTTPRegistry(t, "echo", server.URL)
	mgr := session.NewManager(reg, nil)

	_, err := mgr.Execute(context.Background(), "echo", "echo", nil)
	require.NoError(t, err)

	mgr.CloseAll(context.Background())

	// A subsequent Execute must reopen a session rather than reuse a closed
	// one; the echo server is still up so this should still succeed.
	_, err = mgr.Execute(context.Background(), "echo", "echo", nil)
	require.NoError(t, err)
}
