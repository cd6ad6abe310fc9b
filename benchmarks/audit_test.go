package benchmarks

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
)

// BenchmarkMemoryStore_Save measures in-memory audit saves.
func BenchmarkMemoryStore_Save(b *testing.B) {
	store := audit.NewMemoryStore()
	data := mustMarshal(b, sampleRecord(2))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save(ctx, "run-1", int64(i%100+1), data)
	}
}

// BenchmarkMemoryStore_Load measures in-memory audit loads.
func BenchmarkMemoryStore_Load(b *testing.B) {
	store := audit.NewMemoryStore()
	ctx := context.Background()
	_ = store.Save(ctx, "run-1", 2, mustMarshal(b, sampleRecord(2)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load(ctx, "run-1", 2)
	}
}

// BenchmarkSQLiteStore_Save measures SQLite audit saves.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	store := newSQLiteStore(b)
	data := mustMarshal(b, sampleRecord(2))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save(ctx, "run-1", int64(i%100+1), data)
	}
}

// BenchmarkSQLiteStore_Load measures SQLite audit loads.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	store := newSQLiteStore(b)
	ctx := context.Background()
	_ = store.Save(ctx, "run-1", 2, mustMarshal(b, sampleRecord(2)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load(ctx, "run-1", 2)
	}
}

// BenchmarkLoadRun decodes a 10-node run from memory.
func BenchmarkLoadRun(b *testing.B) {
	store := audit.NewMemoryStore()
	ctx := context.Background()
	for id := int64(1); id <= 10; id++ {
		_ = store.Save(ctx, "run-1", id, mustMarshal(b, sampleRecord(id)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = audit.LoadRun(ctx, store, "run-1")
	}
}

// BenchmarkRecord_Marshal measures record encoding.
func BenchmarkRecord_Marshal(b *testing.B) {
	rec := sampleRecord(2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = rec.Marshal()
	}
}

// BenchmarkRecord_Unmarshal measures record decoding.
func BenchmarkRecord_Unmarshal(b *testing.B) {
	data := mustMarshal(b, sampleRecord(2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = audit.Unmarshal(data)
	}
}

// BenchmarkRunGraph_WithAudit runs a 10-node flow writing every record.
func BenchmarkRunGraph_WithAudit(b *testing.B) {
	nodes, edges := linearFlow(10)
	benchRun(b, nodes, edges, flowstudio.WithAuditStore(audit.NewMemoryStore()))
}

// BenchmarkRunGraph_WithoutAudit is the baseline for BenchmarkRunGraph_WithAudit.
func BenchmarkRunGraph_WithoutAudit(b *testing.B) {
	nodes, edges := linearFlow(10)
	benchRun(b, nodes, edges)
}

// Helper functions

func sampleRecord(nodeID int64) *audit.Record {
	rec := audit.NewNodeRecord("run-1", flowID, nodeID, string(flowstudio.NodeLLM), int(nodeID))
	rec.Status = string(flowstudio.NodeSucceeded)
	rec.Output = "a model response of moderate length for node " + strconv.FormatInt(nodeID, 10)
	rec.DurationMs = 120
	rec.Metadata = map[string]any{"model": "gpt-4o-mini", "prompt_tokens": 48, "completion_tokens": 96}
	return rec
}

func mustMarshal(b *testing.B, rec *audit.Record) []byte {
	b.Helper()
	data, err := rec.Marshal()
	if err != nil {
		b.Fatal(err)
	}
	return data
}

func newSQLiteStore(b *testing.B) *audit.SQLiteStore {
	b.Helper()
	store, err := audit.NewSQLiteStore(filepath.Join(b.TempDir(), "audit.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })
	return store
}
