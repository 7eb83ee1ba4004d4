// Package engine wires every other package in this module into the single
// entry point spec §2 describes: a request is validated, serialized by the
// codec, optionally sealed by the crypto envelope, and committed by the
// store in one transaction that also updates history, the FTS index, and
// the replication log. Reads go through TTL eviction, then the store, then
// crypto, then the codec.
//
// Every exported method takes a workspace name rather than a *store.Store;
// Engine owns the workspace.Manager and resolves the backing file itself,
// so callers never touch pkg/store directly.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/log"
	"github.com/kvstash/kvstash/pkg/metrics"
	"github.com/kvstash/kvstash/pkg/store"
	"github.com/kvstash/kvstash/pkg/workspace"
)

// Options configures an Engine instance.
type Options struct {
	// DataDir roots every workspace's backing file.
	DataDir string

	// LockTimeout bounds how long opening a workspace file waits to
	// acquire the OS file lock before failing with kverrors.ErrLocked.
	LockTimeout time.Duration

	// OpTimeout is the default per-call deadline: if it elapses before a
	// write transaction begins, the call fails with kverrors.ErrTimeout
	// (spec §5). Zero means no deadline.
	OpTimeout time.Duration

	// Passphrase is the master key used to seal/open encrypted payloads.
	// Empty means encryption is off for writes; reads of already-encrypted
	// payloads still require it and fail with ErrKeyRequired without one.
	Passphrase string

	// HistoryRetentionDays bounds how long history/archive/replication
	// records are kept; Compact deletes anything older. Defaults to 15
	// per spec §3.
	HistoryRetentionDays int

	// RetryAttempts bounds the bounded-backoff retry of RetryableBusy
	// failures. Defaults to 5 per spec §7.
	RetryAttempts int

	// Metrics is the collector bundle to record against. Build one with
	// metrics.New(reg) and share a registry across an Engine and whatever
	// HTTP server exposes it — the engine itself never serves /metrics.
	Metrics *metrics.Metrics

	// Validator is kept on the Engine's options, but no Engine operation
	// calls it: writes and reads are not validated through it, and
	// ErrSchemaValidation is never returned by the engine.
	Validator func(value any) (any, error)
}

func (o Options) retentionDays() int {
	if o.HistoryRetentionDays > 0 {
		return o.HistoryRetentionDays
	}
	return 15
}

func (o Options) retryAttempts() int {
	if o.RetryAttempts > 0 {
		return o.RetryAttempts
	}
	return 5
}

// Engine is the storage engine's single entry point.
type Engine struct {
	opts       Options
	workspaces *workspace.Manager
	metrics    *metrics.Metrics

	sweptMu sync.Mutex
	swept   map[string]bool
}

// New builds an Engine rooted at opts.DataDir.
func New(opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		return nil, kverrors.New(kverrors.ErrValidation, "data directory is required")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	log.WithComponent("engine").Debug().Str("data_dir", opts.DataDir).Msg("engine opened")

	return &Engine{
		opts:       opts,
		workspaces: workspace.NewManager(opts.DataDir, opts.LockTimeout),
		metrics:    m,
		swept:      make(map[string]bool),
	}, nil
}

// sweepOnFirstOpen runs sweepExpired once per workspace, the first time this
// Engine instance opens its file — spec §4.6's "on engine open" sweep.
// Later opens of an already-open workspace are no-ops here; expiry between
// sweeps is still caught lazily by ListKeys (see ttl.go).
func (e *Engine) sweepOnFirstOpen(workspaceName string, s *store.Store) error {
	e.sweptMu.Lock()
	if e.swept[workspaceName] {
		e.sweptMu.Unlock()
		return nil
	}
	e.swept[workspaceName] = true
	e.sweptMu.Unlock()

	return s.Update(func(tx *bolt.Tx) error {
		_, err := sweepExpired(tx, time.Now())
		return err
	})
}

// Close releases every workspace file the engine has opened.
func (e *Engine) Close() error {
	return e.workspaces.Close()
}

// deadlineExceeded reports whether a per-call deadline derived from
// e.opts.OpTimeout has already elapsed. Per spec §5 this is checked once
// at the call boundary, before the write transaction begins; it never
// interrupts a transaction already in flight.
func (e *Engine) deadlineExceeded(start time.Time) bool {
	if e.opts.OpTimeout <= 0 {
		return false
	}
	return time.Since(start) >= e.opts.OpTimeout
}

// update runs fn against workspace's store inside a write transaction,
// honoring the per-call deadline and retrying kverrors.ErrRetryableBusy
// with bounded exponential backoff.
func (e *Engine) update(workspaceName, op string, fn func(tx *bolt.Tx) error) error {
	start := time.Now()
	logger := log.WithOp(op)

	s, err := e.workspaces.Open(workspaceName)
	if err != nil {
		return err
	}
	if err := e.sweepOnFirstOpen(workspaceName, s); err != nil {
		return err
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(e.metrics.OpDuration, op)

	var lastErr error
	for attempt := 0; attempt <= e.opts.retryAttempts(); attempt++ {
		if e.deadlineExceeded(start) {
			e.metrics.OpsTotal.WithLabelValues(op, "timeout").Inc()
			return kverrors.New(kverrors.ErrTimeout, "deadline exceeded before transaction began").WithWorkspace(workspaceName)
		}

		lastErr = s.Update(fn)
		if lastErr == nil {
			e.metrics.OpsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}
		if !errors.Is(lastErr, kverrors.ErrRetryableBusy) {
			e.metrics.OpsTotal.WithLabelValues(op, "error").Inc()
			return lastErr
		}
		e.metrics.RetriesTotal.WithLabelValues(op).Inc()
		logger.Warn().Int("attempt", attempt+1).Msg("retrying after transient write conflict")
		time.Sleep(backoff(attempt))
	}
	e.metrics.OpsTotal.WithLabelValues(op, "error").Inc()
	return lastErr
}

func (e *Engine) view(workspaceName, op string, fn func(tx *bolt.Tx) error) error {
	s, err := e.workspaces.Open(workspaceName)
	if err != nil {
		return err
	}
	if err := e.sweepOnFirstOpen(workspaceName, s); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(e.metrics.OpDuration, op)
	err = s.View(fn)
	if err != nil {
		e.metrics.OpsTotal.WithLabelValues(op, "error").Inc()
		return err
	}
	e.metrics.OpsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond
	if d > 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}
