package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/kv"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), time.Second)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestValidateNameRejectsBadChars(t *testing.T) {
	assert.NoError(t, ValidateName("my_workspace-1"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("has space"))
	assert.Error(t, ValidateName("has/slash"))
}

func TestOpenCachesStore(t *testing.T) {
	m := newManager(t)
	s1, err := m.Open("default")
	require.NoError(t, err)
	s2, err := m.Open("default")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestUseSetsActive(t *testing.T) {
	m := newManager(t)
	_, err := m.Use("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.Active())
}

func TestListEnumeratesWorkspaces(t *testing.T) {
	m := newManager(t)
	_, err := m.Open("alpha")
	require.NoError(t, err)
	_, err = m.Open("beta")
	require.NoError(t, err)

	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestSetTypeIsSetOnce(t *testing.T) {
	m := newManager(t)
	s, err := m.Open("ws")
	require.NoError(t, err)

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		return SetType(tx, "queue")
	}))

	err = s.Update(func(tx *bolt.Tx) error {
		return SetType(tx, "stack")
	})
	assert.Error(t, err)

	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		return SetType(tx, "queue")
	}))
}

func TestDropRefusesActiveWithoutForce(t *testing.T) {
	m := newManager(t)
	_, err := m.Use("active-ws")
	require.NoError(t, err)

	err = m.Drop("active-ws", false)
	assert.Error(t, err)

	err = m.Drop("active-ws", true)
	assert.NoError(t, err)
}

func TestMoveRelocatesKeyBetweenWorkspaces(t *testing.T) {
	m := newManager(t)
	ws1, err := m.Open("ws1")
	require.NoError(t, err)
	ws2, err := m.Open("ws2")
	require.NoError(t, err)

	now := time.Now()
	enc, err := codec.Encode("c")
	require.NoError(t, err)
	require.NoError(t, ws1.Update(func(tx *bolt.Tx) error {
		_, _, err := kv.Save(tx, "k", codec.FromEncoded(enc), now, time.Time{})
		return err
	}))

	require.NoError(t, Move(ws1, ws2, "k", MoveAbortIfExists, now))

	var sourceFound, targetFound bool
	var targetEntry kv.Entry
	require.NoError(t, ws1.View(func(tx *bolt.Tx) error {
		_, sourceFound, err = kv.Get(tx, "k")
		return err
	}))
	require.NoError(t, ws2.View(func(tx *bolt.Tx) error {
		targetEntry, targetFound, err = kv.Get(tx, "k")
		return err
	}))

	assert.False(t, sourceFound)
	require.True(t, targetFound)
	assert.Equal(t, "c", string(targetEntry.Value.Raw))
}
