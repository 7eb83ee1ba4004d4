// Package collection implements the queue/stack/priority_queue operations
// of spec §4.8: push, pop, peek, count, clear, and their bulk variants.
// Every function takes an open bbolt transaction, so the atomicity (pop
// never loses or duplicates an item under concurrent callers) comes from
// the caller always wrapping a full push/pop in a single store.Update —
// bbolt's single-writer transaction already gives the "SELECT ... FOR
// UPDATE" semantics spec §4.8 asks for.
package collection

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/store"
)

// Mode is the workspace-level collection discipline.
type Mode string

const (
	ModeQueue          Mode = "queue"
	ModeStack          Mode = "stack"
	ModePriorityQueue  Mode = "priority_queue"
)

// Item is one element of a collection-mode workspace.
type Item struct {
	ItemID    uint64       `json:"item_id"`
	Value     codec.Stored `json:"value"`
	Priority  *int64       `json:"priority,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func itemKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// Push inserts value as a new Item. priority must be non-nil for
// ModePriorityQueue and nil for the other two modes.
func Push(tx *bolt.Tx, mode Mode, value codec.Stored, priority *int64, now time.Time) (Item, error) {
	if mode == ModePriorityQueue && priority == nil {
		return Item{}, kverrors.New(kverrors.ErrValidation, "priority is required for priority_queue")
	}
	if mode != ModePriorityQueue && priority != nil {
		return Item{}, kverrors.New(kverrors.ErrValidation, "priority is only valid for priority_queue")
	}

	b := tx.Bucket([]byte(store.BucketItems))
	id, err := b.NextSequence()
	if err != nil {
		return Item{}, err
	}

	item := Item{ItemID: id, Value: value, Priority: priority, CreatedAt: now}
	raw, err := json.Marshal(item)
	if err != nil {
		return Item{}, err
	}
	if err := b.Put(itemKey(id), raw); err != nil {
		return Item{}, err
	}
	return item, nil
}

// head locates the item that mode's ordering discipline pops/peeks next.
// queue pops ascending item_id (oldest first); stack pops descending
// item_id (newest first); priority_queue pops the highest priority first,
// ties broken by the smaller item_id, i.e. FIFO among equal-priority items.
func head(tx *bolt.Tx, mode Mode) (Item, bool, error) {
	b := tx.Bucket([]byte(store.BucketItems))
	c := b.Cursor()

	switch mode {
	case ModeQueue:
		k, v := c.First()
		if k == nil {
			return Item{}, false, nil
		}
		return unmarshalItem(v)
	case ModeStack:
		k, v := c.Last()
		if k == nil {
			return Item{}, false, nil
		}
		return unmarshalItem(v)
	case ModePriorityQueue:
		var best Item
		found := false
		err := b.ForEach(func(_, v []byte) error {
			item, _, err := unmarshalItem(v)
			if err != nil {
				return err
			}
			if !found || higherPriority(item, best) {
				best = item
				found = true
			}
			return nil
		})
		if err != nil {
			return Item{}, false, err
		}
		return best, found, nil
	default:
		return Item{}, false, kverrors.New(kverrors.ErrValidation, "unknown collection mode")
	}
}

func higherPriority(a, b Item) bool {
	pa, pb := int64(0), int64(0)
	if a.Priority != nil {
		pa = *a.Priority
	}
	if b.Priority != nil {
		pb = *b.Priority
	}
	if pa != pb {
		return pa > pb
	}
	return a.ItemID < b.ItemID
}

func unmarshalItem(raw []byte) (Item, bool, error) {
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return Item{}, false, err
	}
	return item, true, nil
}

// Pop removes and returns the head item under mode's ordering. ok=false
// when the collection is empty — the "no item" sentinel of spec §4.8.
func Pop(tx *bolt.Tx, mode Mode) (Item, bool, error) {
	item, ok, err := head(tx, mode)
	if err != nil || !ok {
		return Item{}, false, err
	}
	if err := tx.Bucket([]byte(store.BucketItems)).Delete(itemKey(item.ItemID)); err != nil {
		return Item{}, false, err
	}
	return item, true, nil
}

// Peek returns the head item without removing it.
func Peek(tx *bolt.Tx, mode Mode) (Item, bool, error) {
	return head(tx, mode)
}

// Count returns the number of items currently held.
func Count(tx *bolt.Tx) int {
	return tx.Bucket([]byte(store.BucketItems)).Stats().KeyN
}

// Clear removes every item in one transaction.
func Clear(tx *bolt.Tx) (int, error) {
	b := tx.Bucket([]byte(store.BucketItems))
	n := b.Stats().KeyN
	if err := tx.DeleteBucket([]byte(store.BucketItems)); err != nil {
		return 0, err
	}
	if _, err := tx.CreateBucket([]byte(store.BucketItems)); err != nil {
		return 0, err
	}
	return n, nil
}

// PushMany pushes every value in order, returning the resulting items.
func PushMany(tx *bolt.Tx, mode Mode, values []codec.Stored, priorities []*int64, now time.Time) ([]Item, error) {
	items := make([]Item, 0, len(values))
	for i, v := range values {
		var p *int64
		if priorities != nil {
			p = priorities[i]
		}
		item, err := Push(tx, mode, v, p, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// PopMany pops up to n items, stopping early if the collection empties.
func PopMany(tx *bolt.Tx, mode Mode, n int) ([]Item, error) {
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		item, ok, err := Pop(tx, mode)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		items = append(items, item)
	}
	return items, nil
}
