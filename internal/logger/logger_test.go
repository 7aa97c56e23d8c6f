package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncHandlerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	handler := NewAsyncHandler(dir, slog.LevelDebug)
	log := slog.New(handler).With("operator", "alice")

	log.Info("connected", "slot", 1)
	log.Debug("tick")
	require.NoError(t, handler.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "connected")
	assert.Contains(t, string(data), "operator=alice")
	assert.Contains(t, string(data), "slot=1")
	assert.Contains(t, string(data), "tick")
}

func TestAsyncHandlerRespectsLevel(t *testing.T) {
	handler := NewAsyncHandler("", slog.LevelInfo)
	defer func() { _ = handler.Close() }()

	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, handler.Enabled(context.Background(), LevelFatal))
}

func TestCloseIsIdempotent(t *testing.T) {
	handler := NewAsyncHandler(t.TempDir(), slog.LevelInfo)
	cb := &ShutdownCallback{handler: handler}
	require.NoError(t, cb.Invoke(context.Background()))
	require.NoError(t, cb.Invoke(context.Background()))
}
