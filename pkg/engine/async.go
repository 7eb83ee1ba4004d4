package engine

import (
	"github.com/kvstash/kvstash/pkg/kv"
)

// SaveResult is what a SaveAsync handle eventually resolves to.
type SaveResult struct {
	Outcome kv.SaveOutcome
	Err     error
}

// SaveAsync runs Save on a worker goroutine and returns immediately with a
// channel carrying the result. Per spec §5, cancelling the caller's
// interest in the result (simply not reading the channel) never rolls
// back a transaction that already committed — the write proceeds
// regardless of whether anyone is listening.
func (e *Engine) SaveAsync(workspaceName, key string, value any, ttlExpr string) <-chan SaveResult {
	out := make(chan SaveResult, 1)
	go func() {
		outcome, err := e.Save(workspaceName, key, value, ttlExpr)
		out <- SaveResult{Outcome: outcome, Err: err}
	}()
	return out
}

// GetKeyResult is what a GetKeyAsync handle eventually resolves to.
type GetKeyResult struct {
	Result kv.GetKeyResult
	Err    error
}

// GetKeyAsync runs GetKey on a worker goroutine and returns immediately
// with a channel carrying the result.
func (e *Engine) GetKeyAsync(workspaceName, key, subpath string, deserialize bool) <-chan GetKeyResult {
	out := make(chan GetKeyResult, 1)
	go func() {
		result, err := e.GetKey(workspaceName, key, subpath, deserialize)
		out <- GetKeyResult{Result: result, Err: err}
	}()
	return out
}
