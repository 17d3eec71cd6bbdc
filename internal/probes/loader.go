package probes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/allsafeASM/rmap/internal/utils"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mitchellh/go-homedir"
	"github.com/projectdiscovery/gologger"
)

const (
	probeFileDir  = "nmap"
	probeFileName = "nmap-service-probes"
	// DefaultMaxDownloadSize bounds the remote download
	DefaultMaxDownloadSize = 32 << 20
)

// Loader resolves the probe database from, in order, the local cache file,
// the remote source and the built-in fallback. Load never fails.
type Loader struct {
	// DataDir holds nmap/nmap-service-probes. Empty means the platform
	// data directory.
	DataDir    string
	SourceURL  string
	HTTPClient *retryablehttp.Client
	// MaxDownloadSize rejects larger downloads. Zero means
	// DefaultMaxDownloadSize.
	MaxDownloadSize int64
}

// NewLoader creates a loader whose remote fetch is bounded by timeout
func NewLoader(dataDir, sourceURL string, timeout time.Duration) *Loader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = timeout

	return &Loader{
		DataDir:    dataDir,
		SourceURL:  sourceURL,
		HTTPClient: client,
	}
}

// CachePath returns the location of the local probe file
func (l *Loader) CachePath() string {
	dir := l.DataDir
	if dir == "" {
		dir = DefaultDataDir()
	}
	return filepath.Join(dir, probeFileDir, probeFileName)
}

// Load returns a probe database, falling back tier by tier
func (l *Loader) Load(ctx context.Context) *Database {
	path := l.CachePath()

	probes, err := l.loadCache(path)
	if err == nil {
		gologger.Info().Msgf("Loaded %d service probes from %s", len(probes), path)
		return NewDatabase(probes, SourceCache)
	}
	gologger.Debug().Msgf("Probe cache unavailable: %v", err)

	if l.SourceURL != "" {
		probes, err = l.fetchRemote(ctx, path)
		if err == nil {
			gologger.Info().Msgf("Fetched %d service probes from %s", len(probes), l.SourceURL)
			return NewDatabase(probes, SourceRemote)
		}
		gologger.Warning().Msgf("Failed to fetch service probes: %v", err)
	}

	probes = Builtin()
	gologger.Info().Msgf("Using %d built-in service probes", len(probes))
	return NewDatabase(probes, SourceBuiltin)
}

func (l *Loader) loadCache(path string) ([]Probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	probes, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("no probes defined in %s", path)
	}
	return probes, nil
}

func (l *Loader) fetchRemote(ctx context.Context, path string) ([]Probe, error) {
	client := l.HTTPClient
	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, l.SourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download probes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, l.SourceURL)
	}

	limit := l.MaxDownloadSize
	if limit <= 0 {
		limit = DefaultMaxDownloadSize
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read probe download: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("probe download from %s exceeds %d bytes", l.SourceURL, limit)
	}

	probes, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("no probes defined in download from %s", l.SourceURL)
	}

	if err := utils.WriteFileAtomic(path, data); err != nil {
		gologger.Warning().Msgf("Failed to cache service probes at %s: %v", path, err)
	} else {
		gologger.Debug().Msgf("Cached service probes at %s", path)
	}

	return probes, nil
}

// DefaultDataDir returns the per-user data directory of the platform:
// $XDG_DATA_HOME or ~/.local/share on Linux, ~/Library/Application Support
// on macOS and %LOCALAPPDATA% on Windows.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir
		}
		if home, err := homedir.Dir(); err == nil {
			return filepath.Join(home, "AppData", "Local")
		}
		return "."
	case "darwin":
		if home, err := homedir.Dir(); err == nil {
			return filepath.Join(home, "Library", "Application Support")
		}
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir
		}
		if home, err := homedir.Dir(); err == nil {
			return filepath.Join(home, ".local", "share")
		}
	}
	return os.TempDir()
}

var shared struct {
	once sync.Once
	db   *Database
}

// Shared loads the process-wide probe database on first use and returns the
// same instance on every later call, whatever loader is passed.
func Shared(ctx context.Context, loader *Loader) *Database {
	shared.once.Do(func() {
		shared.db = loader.Load(ctx)
	})
	return shared.db
}
