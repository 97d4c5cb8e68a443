package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"cyberia/observability"
	"cyberia/types"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestHelper runs the full router against a temporary plugin directory
type TestHelper struct {
	Server *httptest.Server
	Plugin *Plugin
	Home   string
}

// NewTestHelper creates a new test helper with a temporary plugin directory
func NewTestHelper(t *testing.T) *TestHelper {
	home := t.TempDir()
	t.Setenv("CYBERIA_HOME", home)
	t.Setenv("SLSSTEAM_CONFIG", filepath.Join(home, "SLSsteam", "config.yaml"))

	gin.SetMode(gin.TestMode)

	plugin := NewPlugin(testLogger(), observability.NewConfig())
	require.NoError(t, plugin.Load())

	return &TestHelper{
		Server: httptest.NewServer(NewRouter(plugin)),
		Plugin: plugin,
		Home:   home,
	}
}

// Cleanup stops running jobs and the test server
func (h *TestHelper) Cleanup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Plugin.Unload(ctx)
	h.Server.Close()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteSettings replaces settings.json
func (h *TestHelper) WriteSettings(t *testing.T, settings types.Settings) {
	require.NoError(t, h.Plugin.Settings.Save(settings))
}

// WriteCompanionConfig writes the SLSsteam config file
func (h *TestHelper) WriteCompanionConfig(t *testing.T, content string) {
	path := h.Plugin.Companion.Path()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

// DoJSON makes a request and unmarshals the JSON response into target
func (h *TestHelper) DoJSON(t *testing.T, method, path string, requestBody, target interface{}) *http.Response {
	resp := h.MakeRequest(t, method, path, requestBody)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if target != nil {
		require.NoError(t, json.Unmarshal(body, target), string(body))
	}
	return resp
}

// GetJSON makes a GET request and unmarshals JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	return h.DoJSON(t, http.MethodGet, path, nil, target)
}

// PostJSON makes a POST request with JSON body and unmarshals JSON response
func (h *TestHelper) PostJSON(t *testing.T, path string, requestBody, target interface{}) *http.Response {
	return h.DoJSON(t, http.MethodPost, path, requestBody, target)
}

// Call invokes a host method through the dispatcher
func (h *TestHelper) Call(t *testing.T, method string, requestBody interface{}) map[string]interface{} {
	var response map[string]interface{}
	resp := h.PostJSON(t, "/api/call/"+method, requestBody, &response)
	require.Equal(t, http.StatusOK, resp.StatusCode, response)
	return response
}

// WaitForJobCompletion polls the status endpoint until the job is terminal
func (h *TestHelper) WaitForJobCompletion(t *testing.T, appID int, timeout time.Duration) types.JobState {
	deadline := time.Now().Add(timeout)

	var state types.JobState
	for time.Now().Before(deadline) {
		var response struct {
			Success bool           `json:"success"`
			State   types.JobState `json:"state"`
		}
		h.GetJSON(t, "/api/downloads/"+strconv.Itoa(appID), &response)
		state = response.State
		if state.Status.IsTerminal() {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("job %d did not complete within %s, last state: %+v", appID, timeout, state)
	return state
}

// ConnectWebSocket dials a websocket endpoint on the test server
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

// newManifestServer serves a zip archive for every request
func newManifestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	entry, err := w.Create("730.lua")
	require.NoError(t, err)
	_, err = entry.Write([]byte("addappid(730)\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	archive := buf.Bytes()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		w.Write(archive)
	}))
	t.Cleanup(server.Close)
	return server
}

// fakeAccela writes an installer script that records the archive it was
// given into marker.
func fakeAccela(t *testing.T, dir string) (script, marker string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script installers are not supported on Windows")
	}
	marker = filepath.Join(dir, "installed")
	script = filepath.Join(dir, "accela")
	body := "#!/bin/sh\necho \"$1\" > \"" + marker + "\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script, marker
}
