package config

// DefaultProbeSourceURL is where the probe database is fetched from when no
// local copy exists.
const DefaultProbeSourceURL = "https://raw.githubusercontent.com/nmap/nmap/master/nmap-service-probes"

// DefaultDNSResolvers are used for reverse lookups when DNS_RESOLVERS is unset
var DefaultDNSResolvers = []string{
	"udp:1.1.1.1:53",         // Cloudflare
	"udp:1.0.0.1:53",         // Cloudflare
	"udp:8.8.8.8:53",         // Google
	"udp:8.8.4.4:53",         // Google
	"udp:9.9.9.9:53",         // Quad9
	"udp:149.112.112.112:53", // Quad9
}

// ScannerConfig holds tuning knobs for the network scanning engine
type ScannerConfig struct {
	MaxConcurrentHosts int
	MaxConcurrentDials int
	PortWorkersPerHost int
	ConnectRateLimit   int // connects per second, 0 disables
	StreamBuffer       int
	MaxTargetHosts     int
	// Probe database
	ProbeCacheDir     string
	ProbeSourceURL    string
	ProbeFetchTimeout int // seconds
	// Reverse DNS
	DNSResolvers []string
	DNSRateLimit int // lookups per second
}

// LoadScannerConfig loads scanner configuration from environment variables
func LoadScannerConfig() ScannerConfig {
	return ScannerConfig{
		MaxConcurrentHosts: getEnvAsInt("MAX_CONCURRENT_HOSTS", 64),
		MaxConcurrentDials: getEnvAsInt("MAX_CONCURRENT_DIALS", 1024),
		PortWorkersPerHost: getEnvAsInt("PORT_WORKERS_PER_HOST", 256),
		ConnectRateLimit:   getEnvAsInt("CONNECT_RATE_LIMIT", 0),
		StreamBuffer:       getEnvAsInt("STREAM_BUFFER", 32),
		MaxTargetHosts:     getEnvAsInt("MAX_TARGET_HOSTS", 65536),
		ProbeCacheDir:      getEnv("PROBE_CACHE_DIR", ""),
		ProbeSourceURL:     getEnv("PROBE_SOURCE_URL", DefaultProbeSourceURL),
		ProbeFetchTimeout:  getEnvAsInt("PROBE_FETCH_TIMEOUT", 30),
		DNSResolvers:       getEnvAsSlice("DNS_RESOLVERS", DefaultDNSResolvers),
		DNSRateLimit:       getEnvAsInt("DNS_RATE_LIMIT", 100),
	}
}

// ValidateScannerConfig validates scanner configuration
func (c *ScannerConfig) ValidateScannerConfig() error {
	return validateRanges([]rangeRule{
		{"MAX_CONCURRENT_HOSTS", c.MaxConcurrentHosts, 1, 4096, "Max concurrent hosts", ""},
		{"MAX_CONCURRENT_DIALS", c.MaxConcurrentDials, 1, 65535, "Max concurrent dials", ""},
		{"PORT_WORKERS_PER_HOST", c.PortWorkersPerHost, 1, 65535, "Port workers per host", ""},
		{"CONNECT_RATE_LIMIT", c.ConnectRateLimit, 0, 1000000, "Connect rate limit", "per second"},
		{"STREAM_BUFFER", c.StreamBuffer, 1, 4096, "Stream buffer", ""},
		{"MAX_TARGET_HOSTS", c.MaxTargetHosts, 1, 1 << 24, "Max target hosts", ""},
		{"PROBE_FETCH_TIMEOUT", c.ProbeFetchTimeout, 1, 600, "Probe fetch timeout", "seconds"},
		{"DNS_RATE_LIMIT", c.DNSRateLimit, 1, 100000, "DNS rate limit", "per second"},
	})
}
