package cmd

import (
	"bytes"
	"context"
	"cyberia/observability"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestUnloadClosesSharedClient(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CYBERIA_HOME", home)
	t.Setenv("SLSSTEAM_CONFIG", filepath.Join(home, "SLSsteam", "config.yaml"))

	var logs syncBuffer
	plugin := NewPlugin(slog.New(slog.NewTextHandler(&logs, nil)), observability.NewConfig())
	require.NoError(t, plugin.Load())
	assert.DirExists(t, filepath.Join(home, "temp_dl"))

	first := plugin.Clients.Acquire("download")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, plugin.Unload(ctx))

	assert.Contains(t, logs.String(), "context=Unload")
	assert.NotSame(t, first, plugin.Clients.Acquire("download"))

	resp := plugin.Jobs.StartDownload("730")
	assert.False(t, resp.Success)
}
