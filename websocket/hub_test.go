package websocket

import (
	"cyberia/types"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer upgrades every request and subscribes it to the app id in
// the "appid" query parameter
func newTestServer(t *testing.T, h Hub) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appID, _ := strconv.Atoi(r.URL.Query().Get("appid"))
		conn, err := GetUpgrader().Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn, appID, discardLogger())
		h.RegisterClient(client)
		client.StartPumps()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, appID int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?appid=" + strconv.Itoa(appID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) types.ProgressMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var message types.ProgressMessage
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func TestNewProgressMessage(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		state   types.JobState
		msgType string
		message string
	}{
		{"queued", types.JobState{Status: types.JobStatusQueued}, "status", ""},
		{"downloading", types.JobState{Status: types.JobStatusDownloading, BytesRead: 50, TotalBytes: 200}, "progress", ""},
		{"done", types.JobState{Status: types.JobStatusDone, API: "Mirror", Success: true}, "complete", "Mirror"},
		{"failed", types.JobState{Status: types.JobStatusFailed, Error: "Not available on any API"}, "error", "Not available on any API"},
		{"cancelled", types.JobState{Status: types.JobStatusCancelled}, "status", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.state.UpdatedAt = now
			message := NewProgressMessage(730, tt.state)
			assert.Equal(t, 730, message.AppID)
			assert.Equal(t, tt.msgType, message.Type)
			assert.Equal(t, tt.message, message.Message)
			assert.Equal(t, tt.state.Status, message.Status)
			assert.Equal(t, now, message.Timestamp)
		})
	}

	message := NewProgressMessage(730, types.JobState{Status: types.JobStatusDownloading, BytesRead: 50, TotalBytes: 200})
	assert.Equal(t, 25.0, message.Progress)
	assert.False(t, message.Timestamp.IsZero())
}

func TestHubRoutesByAppID(t *testing.T) {
	h := NewHub(discardLogger())
	go h.Run()
	defer h.Stop()
	server := newTestServer(t, h)

	jobConn := dial(t, server, 730)
	otherConn := dial(t, server, 440)
	allConn := dial(t, server, AllJobs)
	require.Eventually(t, func() bool { return h.ClientCount() == 3 }, 5*time.Second, 10*time.Millisecond)

	h.BroadcastState(730, types.JobState{Status: types.JobStatusChecking, CurrentAPI: "Mirror"})
	h.BroadcastState(440, types.JobState{Status: types.JobStatusFailed, Error: "No APIs available"})

	message := readMessage(t, jobConn)
	assert.Equal(t, 730, message.AppID)
	assert.Equal(t, "Mirror", message.CurrentAPI)

	message = readMessage(t, otherConn)
	assert.Equal(t, 440, message.AppID)
	assert.Equal(t, "error", message.Type)

	assert.Equal(t, 730, readMessage(t, allConn).AppID)
	assert.Equal(t, 440, readMessage(t, allConn).AppID)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	h := NewHub(discardLogger())
	go h.Run()
	defer h.Stop()
	server := newTestServer(t, h)

	conn := dial(t, server, 730)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	h := NewHub(discardLogger())
	go h.Run()
	server := newTestServer(t, h)

	conn := dial(t, server, 730)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	h.Stop()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// calls after Stop must not block
	h.UnregisterClient(&Client{appID: 1})
	h.BroadcastState(730, types.JobState{Status: types.JobStatusDone})
}

func TestCoalesceDropsStaleProgress(t *testing.T) {
	progress := func(appID int, read int64) types.ProgressMessage {
		return types.ProgressMessage{AppID: appID, Type: "progress", BytesRead: read}
	}
	batch := []types.ProgressMessage{
		progress(730, 1),
		progress(730, 2),
		progress(440, 1),
		progress(730, 3),
		{AppID: 730, Type: "status", Status: types.JobStatusInstalling},
		{AppID: 730, Type: "complete"},
	}

	got := coalesce(batch)
	require.Len(t, got, 5)
	assert.Equal(t, int64(2), got[0].BytesRead)
	assert.Equal(t, 440, got[1].AppID)
	assert.Equal(t, int64(3), got[2].BytesRead)
	assert.Equal(t, "status", got[3].Type)
	assert.Equal(t, "complete", got[4].Type)
}
