/*
Package log provides structured logging for the storage engine using zerolog.

It wraps zerolog to give every layer of the engine (store, kv, collection,
history, index, replication) a consistent JSON or console logger with
workspace/operation/key context fields, without requiring each call site to
carry its own logger by hand.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	wsLog := log.WithWorkspace("default")
	wsLog.Info().Str("op", "save").Str("key", "user").Msg("committed")

Never log value payloads: only keys, workspace names, and operation names are
safe to put in a log line (see pkg/kverrors and the error handling section of
the engine's design notes).
*/
package log
