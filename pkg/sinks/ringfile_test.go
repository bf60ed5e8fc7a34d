package sinks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoutlog/spout/pkg/types"
)

func TestRingFileDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.log")
	r := NewRingFile(path, 1024, types.LevelTrace, rawFormat(), quietDiag, nil)
	require.NoError(t, r.Open())

	r.Log(record(types.LevelDebug, "one"))
	r.Log(record(types.LevelDebug, "two"))

	// Nothing on disk until asked.
	assert.NoFileExists(t, path)

	r.Reopen()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
	require.NoError(t, r.Close())
}

func TestRingFileWrapKeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.log")
	r := NewRingFile(path, 16, types.LevelTrace, rawFormat(), quietDiag, nil)
	require.NoError(t, r.Open())

	r.Log(record(types.LevelDebug, "aaaaaaa")) // 8 bytes with newline
	r.Log(record(types.LevelDebug, "bbbbbbb"))
	r.Log(record(types.LevelDebug, "ccccccc"))

	r.Reopen()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// 16-byte ring holds exactly the two newest lines.
	assert.Equal(t, "bbbbbbb\nccccccc\n", string(data))
}

func TestRingFileOversizedLineKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.log")
	r := NewRingFile(path, 8, types.LevelTrace, rawFormat(), quietDiag, nil)
	require.NoError(t, r.Open())

	r.Log(record(types.LevelDebug, "0123456789abcde"))

	r.Reopen()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "89abcde\n", string(data))
}
