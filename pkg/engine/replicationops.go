package engine

import (
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/replication"
)

// ReplicationStream returns every committed mutation with seq > lastID,
// in seq order (spec §4.9). Shipping the stream to another host is the
// caller's concern.
func (e *Engine) ReplicationStream(workspaceName string, lastID uint64) ([]replication.Entry, error) {
	var entries []replication.Entry
	err := e.view(workspaceName, "replication_stream", func(tx *bolt.Tx) error {
		var err error
		entries, err = replication.Stream(tx, lastID)
		return err
	})
	return entries, err
}
