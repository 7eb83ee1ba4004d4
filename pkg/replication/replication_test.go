package replication

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ws.db")
	s, err := store.Open(path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stored(text string) codec.Stored {
	enc, _ := codec.Encode(text)
	return codec.FromEncoded(enc)
}

func TestAppendAssignsMonotoneSeq(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "create", "a", stored("1"), time.Now(), ""); err != nil {
			return err
		}
		return Append(tx, "update", "a", stored("2"), time.Now(), "")
	}))

	var entries []Entry
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		entries, err = Stream(tx, 0)
		return err
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)
	assert.Equal(t, "1", string(entries[0].ValueAfter.Raw))
}

func TestStreamSinceLastID(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		for i := 0; i < 5; i++ {
			if err := Append(tx, "update", "k", stored("v"), time.Now(), ""); err != nil {
				return err
			}
		}
		return nil
	}))

	var entries []Entry
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		entries, err = Stream(tx, 3)
		return err
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].Seq)
	assert.Equal(t, uint64(5), entries[1].Seq)
}

func TestCompactRemovesOldEntries(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now()

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "create", "k", stored("old"), old, ""); err != nil {
			return err
		}
		return Append(tx, "update", "k", stored("new"), recent, "")
	}))

	var removed int
	err := s.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = Compact(tx, time.Now().Add(-15*24*time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var entries []Entry
	err = s.View(func(tx *bolt.Tx) error {
		var err error
		entries, err = Stream(tx, 0)
		return err
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", string(entries[0].ValueAfter.Raw))
}
