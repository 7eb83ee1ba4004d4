package collection

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

func storedVal(t *testing.T, v string) codec.Stored {
	t.Helper()
	enc, err := codec.Encode(v)
	require.NoError(t, err)
	return codec.FromEncoded(enc)
}

func ptr(n int64) *int64 { return &n }

func TestQueueIsFIFO(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if _, err := Push(tx, ModeQueue, storedVal(t, "a"), nil, now); err != nil {
			return err
		}
		_, err := Push(tx, ModeQueue, storedVal(t, "b"), nil, now)
		return err
	}))

	var first, second Item
	var ok1, ok2, ok3 bool
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		var err error
		first, ok1, err = Pop(tx, ModeQueue)
		if err != nil {
			return err
		}
		second, ok2, err = Pop(tx, ModeQueue)
		if err != nil {
			return err
		}
		_, ok3, err = Pop(tx, ModeQueue)
		return err
	}))
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
	assert.Equal(t, "a", string(first.Value.Raw))
	assert.Equal(t, "b", string(second.Value.Raw))
}

func TestStackIsLIFO(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if _, err := Push(tx, ModeStack, storedVal(t, "a"), nil, now); err != nil {
			return err
		}
		_, err := Push(tx, ModeStack, storedVal(t, "b"), nil, now)
		return err
	}))

	var first, second Item
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		var err error
		var ok bool
		first, ok, err = Pop(tx, ModeStack)
		require.True(t, ok)
		if err != nil {
			return err
		}
		second, ok, err = Pop(tx, ModeStack)
		require.True(t, ok)
		return err
	}))
	assert.Equal(t, "b", string(first.Value.Raw))
	assert.Equal(t, "a", string(second.Value.Raw))
}

func TestPriorityQueueOrdersByPriorityDesc(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if _, err := Push(tx, ModePriorityQueue, storedVal(t, "low"), ptr(1), now); err != nil {
			return err
		}
		if _, err := Push(tx, ModePriorityQueue, storedVal(t, "high"), ptr(100), now); err != nil {
			return err
		}
		_, err := Push(tx, ModePriorityQueue, storedVal(t, "med"), ptr(50), now)
		return err
	}))

	var order []string
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		for i := 0; i < 3; i++ {
			item, ok, err := Pop(tx, ModePriorityQueue)
			if err != nil {
				return err
			}
			require.True(t, ok)
			order = append(order, string(item.Value.Raw))
		}
		return nil
	}))
	assert.Equal(t, []string{"high", "med", "low"}, order)
}

func TestPriorityQueueTiesBreakFIFO(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		if _, err := Push(tx, ModePriorityQueue, storedVal(t, "first"), ptr(5), now); err != nil {
			return err
		}
		if _, err := Push(tx, ModePriorityQueue, storedVal(t, "second"), ptr(5), now); err != nil {
			return err
		}
		_, err := Push(tx, ModePriorityQueue, storedVal(t, "third"), ptr(5), now)
		return err
	}))

	var order []string
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		for i := 0; i < 3; i++ {
			item, ok, err := Pop(tx, ModePriorityQueue)
			if err != nil {
				return err
			}
			require.True(t, ok)
			order = append(order, string(item.Value.Raw))
		}
		return nil
	}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPriorityQueueRequiresPriority(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx *bolt.Tx) error {
		_, err := Push(tx, ModePriorityQueue, storedVal(t, "x"), nil, time.Now())
		return err
	})
	assert.Error(t, err)
}

func TestNonPriorityModeRejectsPriority(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx *bolt.Tx) error {
		_, err := Push(tx, ModeQueue, storedVal(t, "x"), ptr(1), time.Now())
		return err
	})
	assert.Error(t, err)
}

func TestPeekDoesNotRemove(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		_, err := Push(tx, ModeQueue, storedVal(t, "a"), nil, now)
		return err
	}))

	var peeked Item
	require.NoError(t, s.View(func(tx *bolt.Tx) error {
		var err error
		var ok bool
		peeked, ok, err = Peek(tx, ModeQueue)
		require.True(t, ok)
		return err
	}))
	assert.Equal(t, "a", string(peeked.Value.Raw))

	var count int
	require.NoError(t, s.View(func(tx *bolt.Tx) error {
		count = Count(tx)
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestClearRemovesEverything(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		for _, v := range []string{"a", "b", "c"} {
			if _, err := Push(tx, ModeQueue, storedVal(t, v), nil, now); err != nil {
				return err
			}
		}
		return nil
	}))

	var removed int
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = Clear(tx)
		return err
	}))
	assert.Equal(t, 3, removed)

	var count int
	require.NoError(t, s.View(func(tx *bolt.Tx) error {
		count = Count(tx)
		return nil
	}))
	assert.Equal(t, 0, count)
}

func TestPushManyAndPopMany(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	values := []codec.Stored{storedVal(t, "a"), storedVal(t, "b"), storedVal(t, "c")}
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		_, err := PushMany(tx, ModeQueue, values, nil, now)
		return err
	}))

	var popped []Item
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		var err error
		popped, err = PopMany(tx, ModeQueue, 2)
		return err
	}))
	require.Len(t, popped, 2)
	assert.Equal(t, "a", string(popped[0].Value.Raw))
	assert.Equal(t, "b", string(popped[1].Value.Raw))
}

func TestPopManyStopsEarlyWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		_, err := Push(tx, ModeQueue, storedVal(t, "only"), nil, now)
		return err
	}))

	var popped []Item
	require.NoError(t, s.Update(func(tx *bolt.Tx) error {
		var err error
		popped, err = PopMany(tx, ModeQueue, 5)
		return err
	}))
	assert.Len(t, popped, 1)
}
