// Package registry owns the authoritative task snapshots. All state lives in
// a lock-free concurrent map of immutable snapshots; every mutation swaps in
// a fresh copy atomically and returns the post-mutation snapshot. Successful
// mutations are handed to the persistence pipeline through a bounded
// drop-oldest channel so mutators never block on a slow backend.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentswarm/swarmd/pkg/models"
)

// MaxListLimit caps GetTasks regardless of the caller's limit.
const MaxListLimit = 5000

// Sentinel errors.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskExists    = errors.New("task already registered")
	ErrTaskTerminal  = errors.New("task is in a terminal status")
	ErrParentUnknown = errors.New("parent task not found")
)

// Registry is the in-memory task store.
type Registry struct {
	tasks   sync.Map // taskId → *models.TaskSnapshot (immutable)
	handoff *Handoff
	logger  *slog.Logger
	nowFn   func() time.Time
}

// New builds a registry publishing mutations to the given handoff (nil for
// no persistence).
func New(handoff *Handoff, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handoff: handoff,
		logger:  logger.With("component", "registry"),
		nowFn:   time.Now,
	}
}

func (r *Registry) now() time.Time { return r.nowFn().UTC() }

func (r *Registry) publish(snap *models.TaskSnapshot) {
	if r.handoff != nil {
		r.handoff.Publish(snap)
	}
}

// Register creates a task from an assignment. runID may be empty, in which
// case a run id must be assigned by the caller beforehand; an empty run id
// is synthesized deterministically from the task id so readers never see a
// blank one.
func (r *Registry) Register(assigned models.TaskAssigned, runID string) (*models.TaskSnapshot, error) {
	if runID == "" {
		runID = "legacy-" + assigned.TaskID
	}
	now := r.now()
	snap := &models.TaskSnapshot{
		TaskID:      assigned.TaskID,
		Title:       assigned.Title,
		Description: assigned.Description,
		Status:      models.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		RunID:       runID,
	}
	if _, loaded := r.tasks.LoadOrStore(assigned.TaskID, snap); loaded {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, assigned.TaskID)
	}
	r.publish(snap)
	return snap.Clone(), nil
}

// GetTask returns a copy of the snapshot, or ErrTaskNotFound.
func (r *Registry) GetTask(taskID string) (*models.TaskSnapshot, error) {
	v, ok := r.tasks.Load(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return v.(*models.TaskSnapshot).Clone(), nil
}

// GetTasks returns up to min(limit, MaxListLimit) tasks sorted by UpdatedAt
// descending. A non-positive limit means MaxListLimit.
func (r *Registry) GetTasks(limit int) []*models.TaskSnapshot {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	var out []*models.TaskSnapshot
	r.tasks.Range(func(_, v any) bool {
		out = append(out, v.(*models.TaskSnapshot).Clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// mutate applies fn to a copy of the current snapshot and swaps it in,
// retrying until the observed snapshot is still current. fn returning an
// error aborts without change.
func (r *Registry) mutate(taskID string, fn func(*models.TaskSnapshot) error) (*models.TaskSnapshot, error) {
	for {
		v, ok := r.tasks.Load(taskID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		cur := v.(*models.TaskSnapshot)
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = r.now()
		if r.tasks.CompareAndSwap(taskID, cur, next) {
			r.publish(next)
			return next.Clone(), nil
		}
	}
}

// Transition moves the task to the given status. Terminal statuses cannot be
// left; Queued → InProgress may recur after rework.
func (r *Registry) Transition(taskID string, status models.TaskStatus) (*models.TaskSnapshot, error) {
	return r.mutate(taskID, func(s *models.TaskSnapshot) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, s.Status)
		}
		s.Status = status
		return nil
	})
}

// SetRoleOutput stores a role's output on the matching snapshot field.
func (r *Registry) SetRoleOutput(taskID string, role models.Role, output string) (*models.TaskSnapshot, error) {
	return r.mutate(taskID, func(s *models.TaskSnapshot) error {
		s.SetRoleOutput(role, output)
		return nil
	})
}

// AddArtifacts appends artifacts, deduplicating by artifact id and keeping
// the list sorted by creation time.
func (r *Registry) AddArtifacts(taskID string, artifacts []models.TaskArtifact) (*models.TaskSnapshot, error) {
	return r.mutate(taskID, func(s *models.TaskSnapshot) error {
		seen := make(map[string]struct{}, len(s.Artifacts))
		for _, a := range s.Artifacts {
			seen[a.ArtifactID] = struct{}{}
		}
		for _, a := range artifacts {
			if _, dup := seen[a.ArtifactID]; dup {
				continue
			}
			seen[a.ArtifactID] = struct{}{}
			s.Artifacts = append(s.Artifacts, *a.Clone())
		}
		sort.SliceStable(s.Artifacts, func(i, j int) bool {
			return s.Artifacts[i].CreatedAt.Before(s.Artifacts[j].CreatedAt)
		})
		return nil
	})
}

// MarkDone transitions to Done with a summary and clears any error.
func (r *Registry) MarkDone(taskID, summary string) (*models.TaskSnapshot, error) {
	return r.mutate(taskID, func(s *models.TaskSnapshot) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, s.Status)
		}
		s.Status = models.StatusDone
		s.Summary = summary
		s.Error = ""
		return nil
	})
}

// MarkFailed transitions to Blocked with an error.
func (r *Registry) MarkFailed(taskID, errMsg string) (*models.TaskSnapshot, error) {
	return r.mutate(taskID, func(s *models.TaskSnapshot) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, s.Status)
		}
		s.Status = models.StatusBlocked
		s.Error = errMsg
		return nil
	})
}

// RegisterSubTask creates a child task inheriting the parent's run id and
// appends the child id to the parent's child list. The parent update uses
// the same compare-and-swap retry as every other mutation, so concurrent
// sibling registrations all land exactly once.
func (r *Registry) RegisterSubTask(childID, title, description, parentTaskID string) (*models.TaskSnapshot, error) {
	pv, ok := r.tasks.Load(parentTaskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParentUnknown, parentTaskID)
	}
	parent := pv.(*models.TaskSnapshot)

	now := r.now()
	child := &models.TaskSnapshot{
		TaskID:       childID,
		Title:        title,
		Description:  description,
		Status:       models.StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
		ParentTaskID: parentTaskID,
		RunID:        parent.RunID,
	}
	if _, loaded := r.tasks.LoadOrStore(childID, child); loaded {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, childID)
	}
	r.publish(child)

	if _, err := r.mutate(parentTaskID, func(s *models.TaskSnapshot) error {
		for _, id := range s.ChildTaskIDs {
			if id == childID {
				return nil
			}
		}
		s.ChildTaskIDs = append(s.ChildTaskIDs, childID)
		return nil
	}); err != nil {
		return nil, err
	}
	return child.Clone(), nil
}

// ImportSnapshots seeds the registry from persisted snapshots, for example
// at memory bootstrap. Existing entries are kept unless overwrite is set.
func (r *Registry) ImportSnapshots(snaps []*models.TaskSnapshot, overwrite bool) int {
	imported := 0
	for _, snap := range snaps {
		if snap == nil || snap.TaskID == "" {
			continue
		}
		c := snap.Clone()
		if c.RunID == "" {
			c.RunID = "legacy-" + c.TaskID
		}
		if overwrite {
			r.tasks.Store(c.TaskID, c)
			imported++
			continue
		}
		if _, loaded := r.tasks.LoadOrStore(c.TaskID, c); !loaded {
			imported++
		}
	}
	r.logger.Info("Imported snapshots", "count", imported, "overwrite", overwrite)
	return imported
}
