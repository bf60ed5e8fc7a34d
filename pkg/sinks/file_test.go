package sinks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/types"
)

func TestFileAppendAndThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	f := NewFile(path, types.LevelInfo, rawFormat(), quietDiag, nil)
	require.NoError(t, f.Open())
	defer f.Close()

	f.Log(record(types.LevelError, "boom"))
	f.Log(record(types.LevelInfo, "hello"))
	f.Log(record(types.LevelDebug, "filtered"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "boom\nhello\n", string(data))
}

func TestFileReopenAfterExternalRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	f := NewFile(path, types.LevelInfo, rawFormat(), quietDiag, nil)
	require.NoError(t, f.Open())
	defer f.Close()

	f.Log(record(types.LevelInfo, "before"))
	require.NoError(t, os.Rename(path, path+".old"))
	f.Reopen()
	f.Log(record(types.LevelInfo, "after"))

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(old))
	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(fresh))
}

func TestFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "app.log")
	f := NewFile(path, types.LevelInfo, rawFormat(), quietDiag, nil)
	require.NoError(t, f.Open())
	defer f.Close()

	f.Log(record(types.LevelInfo, "made it"))
	assert.FileExists(t, path)
}

func TestFileDropsWhenHandleGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	stats := metrics.NewCollector()
	f := NewFile(path, types.LevelInfo, rawFormat(), quietDiag, stats)
	require.NoError(t, f.Open())
	require.NoError(t, f.Close())

	f.Log(record(types.LevelInfo, "into the void"))
	assert.Equal(t, uint64(1), stats.Get().MessagesDropped)
}
