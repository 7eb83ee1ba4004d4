package engine

import (
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/collection"
	"github.com/kvstash/kvstash/pkg/history"
	"github.com/kvstash/kvstash/pkg/log"
	"github.com/kvstash/kvstash/pkg/replication"
)

// collectionOpName renders an item for history/replication logging — items
// have no natural key, so the item_id stands in for one.
func collectionOpName(id uint64) string {
	return "item:" + itoa(id)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// CollectionPush inserts value into the collection-mode workspace under
// mode's ordering discipline.
func (e *Engine) CollectionPush(workspaceName string, mode collection.Mode, value any, priority *int64) (collection.Item, error) {
	if s, ok := value.(string); ok {
		value = codec.Promote(s)
	}
	enc, err := codec.Encode(value)
	if err != nil {
		return collection.Item{}, err
	}

	var item collection.Item
	err = e.update(workspaceName, "collection_push", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireCollectionMode(tx, string(mode)); err != nil {
			return err
		}
		stored, err := e.sealValue(enc)
		if err != nil {
			return err
		}
		item, err = collection.Push(tx, mode, stored, priority, now)
		if err != nil {
			return err
		}
		if err := history.Append(tx, collectionOpName(item.ItemID), item.Value, history.OpCreate, now); err != nil {
			return err
		}
		return replication.Append(tx, history.OpCreate, collectionOpName(item.ItemID), item.Value, now, uuid.NewString())
	})
	return item, err
}

// CollectionPop removes and returns the head item. ok is false when the
// collection is empty.
func (e *Engine) CollectionPop(workspaceName string, mode collection.Mode) (collection.Item, bool, error) {
	var item collection.Item
	var ok bool
	err := e.update(workspaceName, "collection_pop", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireCollectionMode(tx, string(mode)); err != nil {
			return err
		}
		var err error
		item, ok, err = collection.Pop(tx, mode)
		if err != nil || !ok {
			return err
		}
		if err := history.Append(tx, collectionOpName(item.ItemID), item.Value, history.OpDelete, now); err != nil {
			return err
		}
		return replication.Append(tx, history.OpDelete, collectionOpName(item.ItemID), item.Value, now, uuid.NewString())
	})
	return item, ok, err
}

// CollectionPeek returns the head item without removing it.
func (e *Engine) CollectionPeek(workspaceName string, mode collection.Mode) (collection.Item, bool, error) {
	var item collection.Item
	var ok bool
	err := e.view(workspaceName, "collection_peek", func(tx *bolt.Tx) error {
		var err error
		item, ok, err = collection.Peek(tx, mode)
		return err
	})
	return item, ok, err
}

// CollectionCount returns the number of items currently held.
func (e *Engine) CollectionCount(workspaceName string) (int, error) {
	var count int
	err := e.view(workspaceName, "collection_count", func(tx *bolt.Tx) error {
		count = collection.Count(tx)
		return nil
	})
	return count, err
}

// CollectionClear removes every item from the collection in one transaction.
func (e *Engine) CollectionClear(workspaceName string) (int, error) {
	var removed int
	err := e.update(workspaceName, "collection_clear", func(tx *bolt.Tx) error {
		var err error
		removed, err = collection.Clear(tx)
		return err
	})
	return removed, err
}

// CollectionPushMany pushes every value in order inside a single transaction.
func (e *Engine) CollectionPushMany(workspaceName string, mode collection.Mode, values []any, priorities []*int64) ([]collection.Item, error) {
	batchID := uuid.NewString()
	stored := make([]codec.Stored, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			v = codec.Promote(s)
		}
		enc, err := codec.Encode(v)
		if err != nil {
			return nil, err
		}
		sealed, err := e.sealValue(enc)
		if err != nil {
			return nil, err
		}
		stored[i] = sealed
	}

	var items []collection.Item
	err := e.update(workspaceName, "collection_push_many", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireCollectionMode(tx, string(mode)); err != nil {
			return err
		}
		var err error
		items, err = collection.PushMany(tx, mode, stored, priorities, now)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := history.Append(tx, collectionOpName(item.ItemID), item.Value, history.OpCreate, now); err != nil {
				return err
			}
			if err := replication.Append(tx, history.OpCreate, collectionOpName(item.ItemID), item.Value, now, batchID); err != nil {
				return err
			}
		}
		return nil
	})
	log.WithCorrelation(batchID).Debug().Str("op", "collection_push_many").Int("count", len(items)).Msg("batch push committed")
	return items, err
}

// CollectionPopMany pops up to n items in a single transaction, stopping
// early if the collection empties.
func (e *Engine) CollectionPopMany(workspaceName string, mode collection.Mode, n int) ([]collection.Item, error) {
	batchID := uuid.NewString()
	var items []collection.Item
	err := e.update(workspaceName, "collection_pop_many", func(tx *bolt.Tx) error {
		now := time.Now()
		if err := requireCollectionMode(tx, string(mode)); err != nil {
			return err
		}
		var err error
		items, err = collection.PopMany(tx, mode, n)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := history.Append(tx, collectionOpName(item.ItemID), item.Value, history.OpDelete, now); err != nil {
				return err
			}
			if err := replication.Append(tx, history.OpDelete, collectionOpName(item.ItemID), item.Value, now, batchID); err != nil {
				return err
			}
		}
		return nil
	})
	return items, err
}
