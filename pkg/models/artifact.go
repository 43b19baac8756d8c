package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ArtifactType classifies a task artifact.
type ArtifactType string

// Artifact type constants.
const (
	ArtifactFile    ArtifactType = "file"
	ArtifactDesign  ArtifactType = "design"
	ArtifactTrace   ArtifactType = "trace"
	ArtifactMessage ArtifactType = "message"
)

// TaskArtifact is a content-addressed artifact attached to a task snapshot.
// The id and hash are derived from the artifact bytes, so attaching identical
// content twice is naturally idempotent.
type TaskArtifact struct {
	ArtifactID  string            `json:"artifact_id"`
	RunID       string            `json:"run_id"`
	TaskID      string            `json:"task_id"`
	AgentID     string            `json:"agent_id"`
	Type        ArtifactType      `json:"type"`
	Path        string            `json:"path,omitempty"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewArtifact builds an artifact whose id and hash are pure functions of
// content: equal bytes always yield equal ids.
func NewArtifact(runID, taskID, agentID string, typ ArtifactType, path string, content []byte, metadata map[string]string) TaskArtifact {
	sum := sha256.Sum256(content)
	hexSum := hex.EncodeToString(sum[:])
	return TaskArtifact{
		ArtifactID:  "art-" + hexSum[:24],
		RunID:       runID,
		TaskID:      taskID,
		AgentID:     agentID,
		Type:        typ,
		Path:        path,
		ContentHash: "sha256:" + hexSum,
		CreatedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}
}

// Clone returns a deep copy of the artifact.
func (a *TaskArtifact) Clone() *TaskArtifact {
	c := *a
	if len(a.Metadata) > 0 {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
