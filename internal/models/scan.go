package models

import "strconv"

// Port states and labels reported by the scanner
const (
	PortStateOpen  = "open"
	ProtocolTCP    = "tcp"
	HostStatusUp   = "up"
	ServiceUnknown = "unknown"
)

// Risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// OS guesses
const (
	OSWindows = "Windows (heuristic)"
	OSLinux   = "Linux (heuristic)"
	OSUnknown = "Unknown"
)

// ScanRequest describes a network scan
type ScanRequest struct {
	IPAddresses    []string `json:"ip_addresses"`
	Ports          []uint32 `json:"ports"`
	FullScan       bool     `json:"full_scan"`
	DetectServices bool     `json:"detect_services"`
}

// PortResult is a single open port on a host
type PortResult struct {
	Port     uint32 `json:"port"`
	State    string `json:"state"`
	Service  string `json:"service"`
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// HostResult is the aggregated view of one host with at least one open port
type HostResult struct {
	Host     string       `json:"host"`
	Hostname string       `json:"hostname"`
	Status   string       `json:"status"`
	OS       string       `json:"os"`
	LastSeen string       `json:"last_seen"`
	Risk     string       `json:"risk"`
	Ports    []PortResult `json:"ports"`
}

// ScanProgress is one stream unit, emitted once per completed host
type ScanProgress struct {
	Scanned int
	Total   int
	Results []HostResult
}

// ScanResponse is the wire form of a stream unit. Counters are decimal
// strings.
type ScanResponse struct {
	Scanned string       `json:"scanned"`
	Total   string       `json:"total"`
	Results []HostResult `json:"results"`
}

// Response converts a progress unit into its wire form
func (p ScanProgress) Response() ScanResponse {
	results := p.Results
	if results == nil {
		results = []HostResult{}
	}
	return ScanResponse{
		Scanned: strconv.Itoa(p.Scanned),
		Total:   strconv.Itoa(p.Total),
		Results: results,
	}
}
