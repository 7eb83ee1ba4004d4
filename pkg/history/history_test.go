package history

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestAppendAndForKeyNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "audit", stored("v1"), OpCreate, base); err != nil {
			return err
		}
		if err := Append(tx, "audit", stored("v2"), OpUpdate, base.Add(time.Second)); err != nil {
			return err
		}
		return Append(tx, "audit", stored("v3"), OpUpdate, base.Add(2*time.Second))
	}))

	var recs []Record
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		recs, err = ForKey(tx, "audit")
		return err
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "v3", string(recs[0].Value.Raw))
	assert.Equal(t, "v2", string(recs[1].Value.Raw))
	assert.Equal(t, "v1", string(recs[2].Value.Raw))
}

func TestSeqIsMonotone(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "a", stored("1"), OpCreate, time.Now()); err != nil {
			return err
		}
		return Append(tx, "b", stored("2"), OpCreate, time.Now())
	}))

	var all []Record
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		all, err = All(tx)
		return err
	})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Greater(t, all[0].Seq, all[1].Seq)
}

func TestAtOrBefore(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "k", stored("v1"), OpCreate, base); err != nil {
			return err
		}
		return Append(tx, "k", stored("v2"), OpUpdate, base.Add(time.Hour))
	}))

	var rec Record
	var ok bool
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		rec, ok, err = AtOrBefore(tx, "k", base.Add(time.Minute))
		return err
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(rec.Value.Raw))
}

func TestCompactRemovesOldRecords(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now()

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if err := Append(tx, "k", stored("old"), OpCreate, old); err != nil {
			return err
		}
		return Append(tx, "k", stored("new"), OpUpdate, recent)
	}))

	var removed int
	err := s.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = Compact(tx, time.Now().Add(-15*24*time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var recs []Record
	err = s.View(func(tx *bolt.Tx) error {
		var err error
		recs, err = ForKey(tx, "k")
		return err
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", string(recs[0].Value.Raw))
}

func TestArchiveLifecycle(t *testing.T) {
	s := openTestStore(t)
	deletedAt := time.Now()

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		return PutArchive(tx, "k", stored("v2"), deletedAt)
	}))

	var rec ArchiveRecord
	var ok bool
	err := s.View(func(tx *bolt.Tx) error {
		var err error
		rec, ok, err = GetArchive(tx, "k")
		return err
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(rec.Value.Raw))

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		return DeleteArchive(tx, "k")
	}))

	err = s.View(func(tx *bolt.Tx) error {
		_, ok, err = GetArchive(tx, "k")
		return err
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompactArchiveRemovesOldTombstones(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		return PutArchive(tx, "old_key", stored("v"), old)
	}))

	var removed int
	err := s.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = CompactArchive(tx, time.Now().Add(-15*24*time.Hour))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
