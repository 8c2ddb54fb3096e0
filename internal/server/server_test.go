package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/painscout/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func newServer(t *testing.T, db *database.DB) *Server {
	t.Helper()
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func storeRun(t *testing.T, db *database.DB, id string, markdown *string) {
	t.Helper()
	run := &database.Run{ID: id, Hypothesis: "Freelancers struggling to get paid", Mode: "standard", Scorer: "classifier", Sources: []string{"freelance"}, Target: 100}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	run.CoreCount = 1
	run.ReportMarkdown = markdown
	signals := []database.RunSignal{{ItemID: "a", Title: "Client ghosted me", Container: "freelance", Tier: "core", Weight: 1}}
	if err := db.CompleteRun(run, signals, nil, nil); err != nil {
		t.Fatalf("complete run: %v", err)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	storeRun(t, db, "run-one", ptr("# report"))
	srv := newServer(t, db)

	rec := get(srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Research Runs") {
		t.Error("expected 'Research Runs' in response body")
	}
	if !strings.Contains(body, "/run/run-one") {
		t.Error("expected a link to the stored run")
	}
}

func TestIndexEmpty(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/")
	if !strings.Contains(rec.Body.String(), "No runs yet") {
		t.Error("expected empty notice")
	}
}

func TestUnknownPath(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRunRouteRendersStoredMarkdown(t *testing.T) {
	db := openTestDB(t)
	storeRun(t, db, "run-one", ptr("# Freelancers struggling to get paid\n\n## 1. Chasing invoices\n\n> never paid"))
	srv := newServer(t, db)

	rec := get(srv, "/run/run-one")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>1. Chasing invoices</h2>") {
		t.Errorf("expected rendered heading, got:\n%s", body)
	}
	if !strings.Contains(body, "<blockquote>") {
		t.Error("expected rendered blockquote")
	}
}

func TestRunRouteRebuildsMissingReport(t *testing.T) {
	db := openTestDB(t)
	storeRun(t, db, "run-two", nil)
	srv := newServer(t, db)

	body := get(srv, "/run/run-two").Body.String()
	if !strings.Contains(body, "Client ghosted me") {
		t.Errorf("expected signal from rebuilt report, got:\n%s", body)
	}
}

func TestRunRouteFailedRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateRun(&database.Run{ID: "bad", Hypothesis: "h", Sources: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.FailRun("bad", errors.New("all sources failed")); err != nil {
		t.Fatal(err)
	}

	body := get(newServer(t, db), "/run/bad").Body.String()
	if !strings.Contains(body, "Run failed: all sources failed") {
		t.Errorf("expected failure message, got:\n%s", body)
	}
}

func TestRunRouteMissing(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/run/does-not-exist")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteRun(t *testing.T) {
	db := openTestDB(t)
	storeRun(t, db, "run-one", ptr("# report"))
	srv := newServer(t, db)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/run/run-one/delete", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	run, err := db.GetRun("run-one")
	if err != nil {
		t.Fatal(err)
	}
	if run != nil {
		t.Error("expected run to be deleted")
	}
}

func TestDeleteRequiresPost(t *testing.T) {
	db := openTestDB(t)
	storeRun(t, db, "run-one", ptr("# report"))
	srv := newServer(t, db)

	get(srv, "/run/run-one/delete")
	if run, _ := db.GetRun("run-one"); run == nil {
		t.Error("GET should not delete a run")
	}
}

func TestMetricsRoute(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default collectors in metrics output")
	}
}

func TestStaticFiles(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
