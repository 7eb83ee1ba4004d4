package engine

import (
	"time"

	"github.com/kvstash/kvstash/pkg/workspace"
)

// UseWorkspace selects name as the engine's active workspace, opening its
// backing file if this is the first use.
func (e *Engine) UseWorkspace(name string) error {
	_, err := e.workspaces.Use(name)
	if err == nil {
		e.metrics.WorkspacesOpen.Set(float64(e.workspaces.OpenCount()))
	}
	return err
}

// ActiveWorkspace returns the name of the currently active workspace, or
// "" if none has been selected.
func (e *Engine) ActiveWorkspace() string {
	return e.workspaces.Active()
}

// ListWorkspaces enumerates workspaces by scanning the data directory.
func (e *Engine) ListWorkspaces() ([]string, error) {
	return e.workspaces.List()
}

// MoveKey atomically relocates key from one workspace to another, per
// spec §4.10.
func (e *Engine) MoveKey(sourceWorkspace, targetWorkspace, key string, overwrite bool) error {
	source, err := e.workspaces.Open(sourceWorkspace)
	if err != nil {
		return err
	}
	target, err := e.workspaces.Open(targetWorkspace)
	if err != nil {
		return err
	}

	policy := workspace.MoveAbortIfExists
	if overwrite {
		policy = workspace.MoveOverwrite
	}
	return workspace.Move(source, target, key, policy, time.Now())
}

// DropWorkspace removes a workspace's backing file. It refuses to remove
// the currently active workspace unless force is set.
func (e *Engine) DropWorkspace(name string, force bool) error {
	err := e.workspaces.Drop(name, force)
	if err == nil {
		e.metrics.WorkspacesOpen.Set(float64(e.workspaces.OpenCount()))
	}
	return err
}
