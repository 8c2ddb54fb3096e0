package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/painscout/internal/embedding"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	db := openTestDB(t)
	cache := db.EmbeddingCache()
	ctx := context.Background()

	err := cache.Put(ctx, []embedding.Entry{
		{Hash: "h1", Model: "m", Preview: "clients never pay", Vector: embedding.Vector{0.5, -1.25, 3}},
		{Hash: "h2", Model: "m", Preview: "late invoices", Vector: embedding.Vector{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := cache.Get(ctx, "m", []string{"h1", "h2", "missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	want := embedding.Vector{0.5, -1.25, 3}
	for i := range want {
		if got["h1"][i] != want[i] {
			t.Errorf("h1[%d] = %v, want %v", i, got["h1"][i], want[i])
		}
	}
}

func TestEmbeddingCacheUpsertAndModelKey(t *testing.T) {
	db := openTestDB(t)
	cache := db.EmbeddingCache()
	ctx := context.Background()

	cache.Put(ctx, []embedding.Entry{{Hash: "h", Model: "a", Vector: embedding.Vector{1, 2}}})
	cache.Put(ctx, []embedding.Entry{{Hash: "h", Model: "a", Vector: embedding.Vector{1, 2}}})
	cache.Put(ctx, []embedding.Entry{{Hash: "h", Model: "b", Vector: embedding.Vector{9, 9, 9}}})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.CachedEmbeddings != 2 {
		t.Errorf("expected 2 cached rows, got %d", stats.CachedEmbeddings)
	}
	if stats.EmbeddingModels != 2 {
		t.Errorf("expected 2 models, got %d", stats.EmbeddingModels)
	}

	got, _ := cache.Get(ctx, "b", []string{"h"})
	if len(got["h"]) != 3 {
		t.Errorf("expected model b vector of 3 dims, got %v", got["h"])
	}
}

func TestEmbeddingCacheManyHashes(t *testing.T) {
	db := openTestDB(t)
	cache := db.EmbeddingCache()
	ctx := context.Background()

	var entries []embedding.Entry
	var hashes []string
	for i := 0; i < 1200; i++ {
		h := embedding.Hash(time.Duration(i).String())
		hashes = append(hashes, h)
		entries = append(entries, embedding.Entry{Hash: h, Model: "m", Vector: embedding.Vector{float32(i)}})
	}
	if err := cache.Put(ctx, entries); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cache.Get(ctx, "m", hashes)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1200 {
		t.Errorf("expected 1200 hits across chunks, got %d", len(got))
	}
}

func TestServiceUsesSQLiteCache(t *testing.T) {
	db := openTestDB(t)
	emb := &stubEmbedder{}
	svc := embedding.NewService(emb, db.EmbeddingCache(), "m")

	if _, err := svc.EmbedOne(context.Background(), "Same text"); err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	// A fresh service over the same database hits the persisted entry.
	svc2 := embedding.NewService(emb, db.EmbeddingCache(), "m")
	if _, err := svc2.EmbedOne(context.Background(), "same text "); err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", emb.calls)
	}
}

type stubEmbedder struct{ calls int }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	s.calls++
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 2, 3}
	}
	return out, nil
}

func TestPruneEmbeddings(t *testing.T) {
	db := openTestDB(t)
	db.EmbeddingCache().Put(context.Background(), []embedding.Entry{
		{Hash: "old", Model: "m", Vector: embedding.Vector{1}},
		{Hash: "new", Model: "m", Vector: embedding.Vector{1}},
	})
	db.conn.Exec(`UPDATE embedding_cache SET created_at = datetime('now', '-30 days') WHERE hash = 'old'`)

	n, err := db.PruneEmbeddings(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneEmbeddings: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	run := &Run{ID: "run-1", Hypothesis: "Freelancers struggling to get paid on time", Mode: "standard",
		Scorer: "hybrid", Sources: []string{"freelance", "smallbusiness"}, Target: 200}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Fetched = 180
	run.CoreCount = 2
	run.RelatedCount = 1
	run.ClusterCount = 1
	run.ReportMarkdown = ptr("# Report")
	signals := []RunSignal{
		{ItemID: "a", Kind: "post", Tier: "related", Weight: 0.6},
		{ItemID: "b", Kind: "post", Tier: "core", Weight: 1},
		{ItemID: "c", Kind: "post", Tier: "core", Weight: 0.5, Recovered: true},
	}
	clusters := []RunCluster{{ClusterID: "k1", Label: "Late payment", Size: 2, Cohesion: 0.8,
		MemberIDs: []string{"a", "b"}, Excerpts: []string{"x", "y"}}}
	decisions := []RunDecision{
		{ItemID: "a", Stage: "quality", Verdict: "pass", Tier: "none"},
		{ItemID: "z", Stage: "quality", Verdict: "reject", Tier: "none", Reason: "too short"},
		{ItemID: "a", Stage: "problem", Verdict: "pass", Tier: "related"},
	}
	if err := db.CompleteRun(run, signals, clusters, decisions); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil || got == nil {
		t.Fatalf("GetRun: %v %v", got, err)
	}
	if got.Status != RunDone || got.Fetched != 180 || len(got.Sources) != 2 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.ReportMarkdown == nil || *got.ReportMarkdown != "# Report" {
		t.Error("expected report markdown")
	}

	sigs, _ := db.GetRunSignals("run-1")
	if len(sigs) != 3 || sigs[0].ItemID != "b" || !sigs[1].Recovered {
		t.Errorf("expected core signals first by weight, got %+v", sigs)
	}

	cl, _ := db.GetRunClusters("run-1")
	if len(cl) != 1 || len(cl[0].MemberIDs) != 2 {
		t.Errorf("unexpected clusters: %+v", cl)
	}

	counts, _ := db.GetRunStageCounts("run-1")
	if len(counts) != 3 || counts[0].Stage != "quality" {
		t.Errorf("unexpected stage counts: %+v", counts)
	}
}

func TestFailRun(t *testing.T) {
	db := openTestDB(t)
	db.CreateRun(&Run{ID: "r", Hypothesis: "h", Mode: "standard", Scorer: "classifier"})
	if err := db.FailRun("r", errors.New("all sources failed")); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	got, _ := db.GetRun("r")
	if got.Status != RunFailed || got.Error == nil {
		t.Errorf("expected failed run with error, got %+v", got)
	}
	stats, _ := db.GetStats()
	if stats.FailedRuns != 1 || stats.LastRunAt == nil {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetRun("nope")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestListRunsAndDelete(t *testing.T) {
	db := openTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		db.CreateRun(&Run{ID: id, Hypothesis: "h", Mode: "standard", Scorer: "classifier"})
	}
	db.CompleteRun(&Run{ID: "a"}, []RunSignal{{ItemID: "x", Kind: "post", Tier: "core"}}, nil, nil)

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	if err := db.DeleteRun("a"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	sigs, _ := db.GetRunSignals("a")
	if len(sigs) != 0 {
		t.Error("expected signals removed with run")
	}
}
