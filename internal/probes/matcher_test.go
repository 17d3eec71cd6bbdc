package probes

import (
	"regexp"
	"testing"
)

func TestMatchBanner(t *testing.T) {
	probes := []Probe{
		{
			Name: "first",
			Matches: []Match{
				{Service: "ssh", Pattern: regexp.MustCompile(`^SSH-`)},
				{Service: "openssh", Pattern: regexp.MustCompile(`OpenSSH`)},
			},
		},
		{
			Name: "second",
			Matches: []Match{
				{Service: "ftp", Pattern: regexp.MustCompile(`^220 `), Version: "vsftpd 3.0"},
			},
		},
	}

	tests := []struct {
		name        string
		banner      string
		wantService string
		wantVersion string
	}{
		{"first match wins", "SSH-2.0-OpenSSH_8.9\r\n", "ssh", "SSH-2.0-OpenSSH_8.9\r\n"},
		{"later rule", "Welcome OpenSSH", "openssh", "Welcome OpenSSH"},
		{"static version", "220 ready", "ftp", "vsftpd 3.0"},
		{"no match", "HTTP/1.1 200 OK", "unknown", ""},
		{"empty banner", "", "unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, version := MatchBanner([]byte(tt.banner), probes)
			if service != tt.wantService || version != tt.wantVersion {
				t.Errorf("MatchBanner(%q) = (%q, %q), want (%q, %q)",
					tt.banner, service, version, tt.wantService, tt.wantVersion)
			}
		})
	}
}

func TestMatchBannerInvalidUTF8(t *testing.T) {
	probes := []Probe{{Matches: []Match{{Service: "ssh", Pattern: regexp.MustCompile(`^SSH-`)}}}}

	service, version := MatchBanner([]byte("SSH-\xff\xfe"), probes)
	if service != "ssh" {
		t.Errorf("Expected ssh, got %q", service)
	}
	if version != "SSH-\uFFFD" {
		t.Errorf("Expected lossy decoded version, got %q", version)
	}
}

func TestBuiltinDatabase(t *testing.T) {
	db := NewDatabase(Builtin(), SourceBuiltin)

	if db.Len() != 1 || db.Source() != SourceBuiltin {
		t.Fatalf("Unexpected builtin database: len=%d source=%s", db.Len(), db.Source())
	}

	active := db.ActiveProbe("tcp")
	if active == nil || active.Name != "basic" {
		t.Fatalf("Expected basic active probe, got %+v", active)
	}

	tests := []struct {
		banner string
		want   string
	}{
		{"HTTP/1.1 400 Bad Request\r\nServer: Apache/2.4\r\n", "http"},
		{"HTTP/1.1 200 OK\r\nServer: nginx/1.25\r\n", "http"},
		{"SSH-2.0-OpenSSH_9.6\r\n", "ssh"},
		{"220 mail ESMTP", "unknown"},
	}
	for _, tt := range tests {
		if service, _ := db.Identify(ProtocolTCP, []byte(tt.banner)); service != tt.want {
			t.Errorf("Identify(%q) = %q, want %q", tt.banner, service, tt.want)
		}
	}

	if db.ActiveProbe("UDP") != nil {
		t.Error("Expected no UDP probe in builtin database")
	}
}
