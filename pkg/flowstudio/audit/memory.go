package audit

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records for the life of the process. It is the default
// store for tests and for engines configured with driver "memory".
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*memRun
	closed bool
}

// memRun holds one run's records. next is the sequence the next Save gets.
type memRun struct {
	next    int
	records map[int64]memRecord
}

type memRecord struct {
	body  []byte
	seq   int
	saved time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memRun)}
}

func (m *MemoryStore) Save(_ context.Context, runID string, nodeID int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	run, ok := m.runs[runID]
	if !ok {
		run = &memRun{next: 1, records: make(map[int64]memRecord)}
		m.runs[runID] = run
	}
	run.records[nodeID] = memRecord{body: slices.Clone(data), seq: run.next, saved: time.Now().UTC()}
	run.next++
	return nil
}

func (m *MemoryStore) Load(_ context.Context, runID string, nodeID int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	if run, ok := m.runs[runID]; ok {
		if rec, ok := run.records[nodeID]; ok {
			return slices.Clone(rec.body), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(_ context.Context, runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	infos := []Info{}
	if run, ok := m.runs[runID]; ok {
		for nodeID, rec := range run.records {
			infos = append(infos, Info{
				RunID:     runID,
				NodeID:    nodeID,
				Sequence:  rec.seq,
				Timestamp: rec.saved,
				Size:      int64(len(rec.body)),
			})
		}
	}
	slices.SortFunc(infos, func(a, b Info) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return infos, nil
}

func (m *MemoryStore) Delete(_ context.Context, runID string, nodeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if run, ok := m.runs[runID]; ok {
		delete(run.records, nodeID)
	}
	return nil
}

func (m *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close drops every record.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.runs = nil
	return nil
}

// Len counts records across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, run := range m.runs {
		n += len(run.records)
	}
	return n
}
