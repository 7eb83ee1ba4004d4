package engine

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/history"
	"github.com/kvstash/kvstash/pkg/index"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/replication"
)

// History returns the history records for key, newest-first. An empty key
// returns every record in the workspace, newest-first (spec §4.5's
// get_history("-h") form).
func (e *Engine) History(workspaceName, key string) ([]history.Record, error) {
	var records []history.Record
	err := e.view(workspaceName, "history", func(tx *bolt.Tx) error {
		var err error
		if key == "" {
			records, err = history.All(tx)
		} else {
			records, err = history.ForKey(tx, key)
		}
		return err
	})
	return records, err
}

// RestoreTo replays history up to and including at into a fresh Entries
// table, restoring the whole workspace to its state at that instant.
func (e *Engine) RestoreTo(workspaceName string, at time.Time) error {
	return e.update(workspaceName, "restore_to", func(tx *bolt.Tx) error {
		all, err := history.All(tx)
		if err != nil {
			return err
		}

		latest := make(map[string]history.Record)
		for _, rec := range all {
			if rec.Timestamp.After(at) {
				continue
			}
			if existing, ok := latest[rec.Key]; !ok || rec.Seq > existing.Seq {
				latest[rec.Key] = rec
			}
		}

		keys, err := kv.ListKeys(tx, "")
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := kv.Delete(tx, key); err != nil {
				return err
			}
			if err := index.RemoveKey(tx, key); err != nil {
				return err
			}
		}

		now := time.Now()
		for key, rec := range latest {
			if rec.Op == history.OpDelete || rec.Op == history.OpExpire {
				continue
			}
			if _, _, err := kv.Save(tx, key, rec.Value, now, time.Time{}); err != nil {
				return err
			}
			if err := e.reindex(tx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Compact deletes history records, archive tombstones, and replication
// entries older than retentionDays, then vacuums the backing file to
// reclaim the space those deletes freed (spec §4.5; spec §9 applies the
// same retention policy to the replication log).
func (e *Engine) Compact(workspaceName string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = e.opts.retentionDays()
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	var total int
	err := e.update(workspaceName, "compact", func(tx *bolt.Tx) error {
		n, err := history.Compact(tx, cutoff)
		if err != nil {
			return err
		}
		total += n

		n, err = history.CompactArchive(tx, cutoff)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return 0, err
	}

	var replicationRemoved int
	err = e.update(workspaceName, "compact_replication", func(tx *bolt.Tx) error {
		var err error
		replicationRemoved, err = replication.Compact(tx, cutoff)
		return err
	})
	total += replicationRemoved
	if err != nil {
		e.metrics.PurgedTotal.WithLabelValues("history").Add(float64(total))
		return total, err
	}

	s, err := e.workspaces.Open(workspaceName)
	if err != nil {
		e.metrics.PurgedTotal.WithLabelValues("history").Add(float64(total))
		return total, err
	}
	if err := s.Vacuum(); err != nil {
		e.metrics.PurgedTotal.WithLabelValues("history").Add(float64(total))
		return total, err
	}

	e.metrics.PurgedTotal.WithLabelValues("history").Add(float64(total))
	return total, nil
}
