package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/allsafeASM/rmap/internal/probes"
	"github.com/allsafeASM/rmap/internal/scanners"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScanner struct {
	units []models.ScanProgress
	db    *probes.Database
}

func (f *fakeScanner) Scan(ctx context.Context, req models.ScanRequest) <-chan models.ScanProgress {
	out := make(chan models.ScanProgress, len(f.units))
	for _, u := range f.units {
		out <- u
	}
	close(out)
	return out
}

func (f *fakeScanner) Probes() *probes.Database {
	return f.db
}

func readLines(t *testing.T, resp *http.Response) []models.ScanResponse {
	t.Helper()
	var out []models.ScanResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var item models.ScanResponse
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			t.Fatalf("Invalid NDJSON line %q: %v", scanner.Text(), err)
		}
		out = append(out, item)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	return out
}

func TestNetworkScanStreamsNDJSON(t *testing.T) {
	fake := &fakeScanner{units: []models.ScanProgress{
		{Scanned: 1, Total: 4},
		{Scanned: 2, Total: 4, Results: []models.HostResult{{Host: "10.0.0.2", Status: models.HostStatusUp}}},
	}}
	server := httptest.NewServer(NewServer(fake).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/network/scan", "application/json", strings.NewReader(`{"ip_addresses":["10.0.0.0/30"],"ports":[22,80]}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != ContentTypeNDJSON {
		t.Errorf("Expected %s, got %s", ContentTypeNDJSON, ct)
	}
	if resp.Header.Get(ScanIDHeader) == "" {
		t.Error("Expected a scan ID header")
	}

	items := readLines(t, resp)
	if len(items) != 2 {
		t.Fatalf("Expected 2 stream items, got %d", len(items))
	}
	if items[0].Scanned != "1" || items[0].Total != "4" || items[0].Results == nil {
		t.Errorf("Unexpected first item %+v", items[0])
	}
	if len(items[1].Results) != 1 || items[1].Results[0].Host != "10.0.0.2" {
		t.Errorf("Unexpected second item %+v", items[1])
	}
}

func TestNetworkScanRejectsMalformedBody(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeScanner{}).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/network/scan", "application/json", strings.NewReader(`{"ip_addresses":`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Errorf("Expected an error body, got %v (%v)", body, err)
	}
}

func TestNetworkScanAgainstLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte("SSH-2.0-OpenSSH_8.9\r\n"))
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	db := probes.NewDatabase(probes.Builtin(), probes.SourceBuiltin)
	scanner := scanners.NewNetworkScanner(db, nil, scanners.Options{})
	server := httptest.NewServer(NewServer(scanner).Handler())
	defer server.Close()

	body := fmt.Sprintf(`{"ip_addresses":["127.0.0.1"],"ports":[%d],"detect_services":true}`, port)
	resp, err := http.Post(server.URL+"/v1/network/scan", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	items := readLines(t, resp)
	if len(items) != 1 {
		t.Fatalf("Expected 1 stream item, got %d", len(items))
	}
	if items[0].Scanned != "1" || items[0].Total != "1" {
		t.Errorf("Unexpected counters %+v", items[0])
	}
	if len(items[0].Results) != 1 || len(items[0].Results[0].Ports) != 1 {
		t.Fatalf("Expected one open port, got %+v", items[0].Results)
	}
	if got := items[0].Results[0].Ports[0].Port; got != uint32(port) {
		t.Errorf("Expected port %d, got %d", port, got)
	}
}

func TestListProbes(t *testing.T) {
	db := probes.NewDatabase(probes.Builtin(), probes.SourceBuiltin)
	server := httptest.NewServer(NewServer(&fakeScanner{db: db}).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/probes")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Source string      `json:"source"`
		Count  int         `json:"count"`
		Probes []probeView `json:"probes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Source != string(probes.SourceBuiltin) {
		t.Errorf("Expected builtin source, got %s", body.Source)
	}
	if body.Count != db.Len() || len(body.Probes) != db.Len() {
		t.Errorf("Expected %d probes, got %d", db.Len(), body.Count)
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	NewServer(&fakeScanner{}).Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
