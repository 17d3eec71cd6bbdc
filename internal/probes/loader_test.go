package probes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

const sampleProbes = "Probe remote \\r\\n TCP\nmatch ssh m/^SSH-/\n"

func writeCache(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "nmap", "nmap-service-probes")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func newTestLoader(dir, url string) *Loader {
	loader := NewLoader(dir, url, 5*time.Second)
	loader.HTTPClient.RetryMax = 0
	return loader
}

func TestLoadPrefersCache(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir, "Probe cached x\n")

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(sampleProbes))
	}))
	defer server.Close()

	db := newTestLoader(dir, server.URL).Load(context.Background())

	if db.Source() != SourceCache {
		t.Errorf("Expected cache source, got %s", db.Source())
	}
	if db.Probes()[0].Name != "cached" {
		t.Errorf("Expected cached probe, got %s", db.Probes()[0].Name)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("Expected no remote fetch when the cache is present")
	}
}

func TestLoadFetchesAndPersists(t *testing.T) {
	dir := t.TempDir()
	// A cache without probes is treated as missing
	writeCache(t, dir, "# empty\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleProbes))
	}))
	defer server.Close()

	loader := newTestLoader(dir, server.URL)
	db := loader.Load(context.Background())

	if db.Source() != SourceRemote {
		t.Fatalf("Expected remote source, got %s", db.Source())
	}
	if db.Probes()[0].Name != "remote" {
		t.Errorf("Expected remote probe, got %s", db.Probes()[0].Name)
	}

	data, err := os.ReadFile(loader.CachePath())
	if err != nil {
		t.Fatalf("Expected probe file to be cached: %v", err)
	}
	if string(data) != sampleProbes {
		t.Errorf("Cached content mismatch: %q", data)
	}
}

func TestLoadFallsBackToBuiltin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	db := newTestLoader(dir, server.URL).Load(context.Background())

	if db.Source() != SourceBuiltin {
		t.Fatalf("Expected builtin source, got %s", db.Source())
	}
	if db.Probes()[0].Name != "basic" {
		t.Errorf("Expected basic probe, got %s", db.Probes()[0].Name)
	}
	if _, err := os.Stat(filepath.Join(dir, "nmap", "nmap-service-probes")); !os.IsNotExist(err) {
		t.Error("Expected nothing to be cached after a failed fetch")
	}
}

func TestLoadRejectsOversizedDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleProbes))
	}))
	defer server.Close()

	dir := t.TempDir()
	loader := newTestLoader(dir, server.URL)
	// Cut inside the match line: a truncated file would still parse
	loader.MaxDownloadSize = int64(len(sampleProbes) - 4)

	db := loader.Load(context.Background())

	if db.Source() != SourceBuiltin {
		t.Fatalf("Expected builtin source, got %s", db.Source())
	}
	if _, err := os.Stat(loader.CachePath()); !os.IsNotExist(err) {
		t.Error("Expected a truncated download not to be cached")
	}
}

func TestLoadAcceptsDownloadAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleProbes))
	}))
	defer server.Close()

	loader := newTestLoader(t.TempDir(), server.URL)
	loader.MaxDownloadSize = int64(len(sampleProbes))

	if db := loader.Load(context.Background()); db.Source() != SourceRemote {
		t.Errorf("Expected remote source, got %s", db.Source())
	}
}

func TestLoadWithoutSource(t *testing.T) {
	db := newTestLoader(t.TempDir(), "").Load(context.Background())
	if db.Source() != SourceBuiltin {
		t.Errorf("Expected builtin source, got %s", db.Source())
	}
}

func TestDefaultDataDirXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on Linux")
	}

	t.Setenv("XDG_DATA_HOME", "/srv/data")
	if got := DefaultDataDir(); got != "/srv/data" {
		t.Errorf("Expected XDG_DATA_HOME to be used, got %s", got)
	}

	loader := &Loader{}
	if got := loader.CachePath(); got != "/srv/data/nmap/nmap-service-probes" {
		t.Errorf("Unexpected cache path %s", got)
	}
}

func TestSharedLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir, "Probe once x\n")

	first := Shared(context.Background(), newTestLoader(dir, ""))
	second := Shared(context.Background(), newTestLoader(t.TempDir(), ""))

	if first != second {
		t.Error("Expected the same database instance on every call")
	}
}
