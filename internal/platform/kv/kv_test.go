package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	_, err = fs.Get(ctx, "prefect.records")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Set(ctx, "prefect.records", []byte(`[1,2]`)))
	got, err := fs.Get(ctx, "prefect.records")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	// no temporary file left behind after a successful rename
	_, err = os.Stat(filepath.Join(fs.Dir, "prefect.records.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, fs.Delete(ctx, "prefect.records"))
	_, err = fs.Get(ctx, "prefect.records")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is not an error
	assert.NoError(t, fs.Delete(ctx, "prefect.records"))
}

func TestFileStorage_RejectsPathKeys(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.Error(t, fs.Set(context.Background(), key, []byte("x")), "key %q", key)
	}
}

func TestFileStorage_FailedWriteKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Set(ctx, "k", []byte("old")))

	// a directory squatting on the temp path makes the write fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "k.json.tmp"), 0755))
	assert.Error(t, fs.Set(ctx, "k", []byte("new")))

	got, err := fs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	val := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", val))
	val[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}
