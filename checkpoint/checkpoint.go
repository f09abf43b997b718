// Package checkpoint persists observer positions between runs. The
// observer itself keeps no durable state; a caller that wants to survive
// restarts wraps a Store in a Committer and feeds it the observer
// checkpoint between dispatch cycles.
package checkpoint

import (
	"context"
	"sync"

	"github.com/katkad/mongo-observer/oplog"
)

type Store interface {
	// Save overwrites the stored checkpoint.
	Save(ctx context.Context, cp oplog.Checkpoint) error

	// Load returns the stored checkpoint, with found=false when nothing
	// was ever saved.
	Load(ctx context.Context) (cp oplog.Checkpoint, found bool, err error)
}

// Memory is a process-local Store, used in tests and in drain-mode runs
// that do not outlive the process.
type Memory struct {
	mu    sync.Mutex
	cp    oplog.Checkpoint
	saved bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(ctx context.Context, cp oplog.Checkpoint) error {
	m.mu.Lock()
	m.cp = cp
	m.saved = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(ctx context.Context) (oplog.Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp, m.saved, nil
}
