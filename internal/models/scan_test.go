package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestScanProgressResponse(t *testing.T) {
	progress := ScanProgress{Scanned: 3, Total: 768}

	resp := progress.Response()
	if resp.Scanned != "3" || resp.Total != "768" {
		t.Errorf("Expected decimal counters 3/768, got %s/%s", resp.Scanned, resp.Total)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Errorf("Expected empty results array, got %s", data)
	}
}
