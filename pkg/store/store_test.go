package store

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesAllBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	err = s.View(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			assert.NotNil(t, tx.Bucket([]byte(name)), "missing bucket %s", name)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpenWritesSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	err = s.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(BucketMetadata)).Get([]byte(MetaSchemaVersion))
		assert.Equal(t, []byte{SchemaVersion}, v)
		return nil
	})
	require.NoError(t, err)
}

func TestOpenSecondHandleTimesOutLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(path, 100*time.Millisecond)
	require.Error(t, err)
}

func TestUpdateAndView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	err = s.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketEntries)).Put([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = s.View(func(tx *bolt.Tx) error {
		assert.Equal(t, []byte("v"), tx.Bucket([]byte(BucketEntries)).Get([]byte("k")))
		return nil
	})
	require.NoError(t, err)
}
