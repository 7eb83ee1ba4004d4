package engine

import (
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/workspace"
)

// requireKVMode ensures the workspace is untyped (first use) or already
// tagged kv, setting the tag on first use. kv operations on a workspace
// tagged as a collection mode fail with ErrTypeMismatch (spec §3 invariant
// 4).
func requireKVMode(tx *bolt.Tx) error {
	typ, err := workspace.Type(tx)
	if err != nil {
		return err
	}
	if typ == "" {
		return workspace.SetType(tx, "kv")
	}
	if typ != "kv" {
		return kverrors.New(kverrors.ErrTypeMismatch, "workspace is in "+typ+" mode, not kv")
	}
	return nil
}

// requireCollectionMode ensures the workspace is untyped (first use) or
// already tagged mode, setting the tag on first use.
func requireCollectionMode(tx *bolt.Tx, mode string) error {
	typ, err := workspace.Type(tx)
	if err != nil {
		return err
	}
	if typ == "" {
		return workspace.SetType(tx, mode)
	}
	if typ != mode {
		return kverrors.New(kverrors.ErrTypeMismatch, "workspace is in "+typ+" mode, not "+mode)
	}
	return nil
}
