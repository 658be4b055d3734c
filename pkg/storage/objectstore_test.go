package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreRoundTrip(t *testing.T) {
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put("uploads", "imports/job-1/source/students.csv", []byte("name,email\n")))

	data, err := store.Get("uploads", "imports/job-1/source/students.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("name,email\n"), data)

	require.NoError(t, store.Delete("uploads", "imports/job-1/source/students.csv"))
	_, err = store.Get("uploads", "imports/job-1/source/students.csv")
	assert.Error(t, err)
}

func TestObjectStoreDeleteMissing(t *testing.T) {
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("uploads", "never/was/here.csv"))
}

func TestObjectStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put("uploads", "../../etc/passwd", []byte("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes store root")
}

func TestObjectStoreRequiresBucketAndKey(t *testing.T) {
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Put("", "key", nil))
	_, err = store.Get("uploads", "")
	assert.Error(t, err)
}
