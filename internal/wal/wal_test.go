package wal

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	require.NoError(t, err)

	require.NoError(t, j.Append("forecast", []byte(`{"horizon":3}`)))
	require.NoError(t, j.Append("simulate_scenario", []byte("line|with|pipes\nand newline")))
	require.NoError(t, j.Close())

	entries, stats, err := Replay(j.Path(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, stats.Read)
	assert.Equal(t, "forecast", entries[0].Op)
	assert.JSONEq(t, `{"horizon":3}`, string(entries[0].Body))
	assert.Equal(t, "line|with|pipes\nand newline", string(entries[1].Body))
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append("forecast", []byte("{}")))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n2025-01-01T00:00:00Z|forecast|99|e30=|\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, stats, err := Replay(j.Path(), nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 2, stats.Malformed)
}

func TestReplayVerifiesSignatures(t *testing.T) {
	dir := t.TempDir()
	key := []byte("secret")

	signed, err := Open(dir, key)
	require.NoError(t, err)
	require.NoError(t, signed.Append("forecast", []byte(`{"a":1}`)))
	require.NoError(t, signed.Close())

	entries, stats, err := Replay(signed.Path(), key)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Zero(t, stats.BadSig)

	entries, stats, err = Replay(signed.Path(), []byte("other"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, stats.BadSig)
}

func TestJournalRejectsPipeInOp(t *testing.T) {
	j, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer j.Close()
	assert.Error(t, j.Append("a|b", nil))
}

func TestFilesAndMissingReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], fileSuffix))

	entries, _, err := Replay(dir+"/nope.wal", nil)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRotateReturnsOldPath(t *testing.T) {
	j, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer j.Close()

	before := j.Path()
	old, err := j.Rotate()
	require.NoError(t, err)
	assert.Equal(t, before, old)
	require.NoError(t, j.Append("forecast", []byte("{}")))
}
