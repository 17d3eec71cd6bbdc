package scanners

import (
	"context"
	"sync"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/allsafeASM/rmap/internal/probes"
	"github.com/projectdiscovery/gologger"
	"github.com/remeh/sizedwaitgroup"
)

// Options tunes the resources a single scan may use
type Options struct {
	MaxConcurrentHosts int
	MaxConcurrentDials int
	PortWorkersPerHost int
	ConnectRateLimit   int // per second, 0 disables
	StreamBuffer       int
	MaxTargetHosts     int
}

// DefaultOptions returns the limits used when an option is left at zero
func DefaultOptions() Options {
	return Options{
		MaxConcurrentHosts: 64,
		MaxConcurrentDials: 1024,
		PortWorkersPerHost: 256,
		StreamBuffer:       32,
		MaxTargetHosts:     65536,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrentHosts <= 0 {
		o.MaxConcurrentHosts = d.MaxConcurrentHosts
	}
	if o.MaxConcurrentDials <= 0 {
		o.MaxConcurrentDials = d.MaxConcurrentDials
	}
	if o.PortWorkersPerHost <= 0 {
		o.PortWorkersPerHost = d.PortWorkersPerHost
	}
	if o.StreamBuffer <= 0 {
		o.StreamBuffer = d.StreamBuffer
	}
	if o.MaxTargetHosts <= 0 {
		o.MaxTargetHosts = d.MaxTargetHosts
	}
	if o.ConnectRateLimit < 0 {
		o.ConnectRateLimit = 0
	}
	return o
}

// NetworkScanner orchestrates scans over a host×port matrix. It holds no
// per-scan state, so one instance serves concurrent scans.
type NetworkScanner struct {
	probes   *probes.Database
	resolver HostnameResolver
	options  Options
}

// NewNetworkScanner creates a scanner sharing db and resolver across scans.
// Either may be nil.
func NewNetworkScanner(db *probes.Database, resolver HostnameResolver, options Options) *NetworkScanner {
	return &NetworkScanner{
		probes:   db,
		resolver: resolver,
		options:  options.withDefaults(),
	}
}

// Probes returns the probe database used for service detection
func (s *NetworkScanner) Probes() *probes.Database {
	return s.probes
}

// Plan expands a request into the hosts and ports it will cover
func (s *NetworkScanner) Plan(req models.ScanRequest) (hosts []string, ports []uint32) {
	return ExpandTargets(req.IPAddresses, s.options.MaxTargetHosts), ResolvePorts(req.Ports, req.FullScan)
}

// Scan starts a scan and streams one progress unit per completed host. A
// unit carries the host's result only when it has open ports. The channel
// is closed once every host finished or ctx is done.
func (s *NetworkScanner) Scan(ctx context.Context, req models.ScanRequest) <-chan models.ScanProgress {
	out := make(chan models.ScanProgress, s.options.StreamBuffer)
	go s.run(ctx, req, out)
	return out
}

func (s *NetworkScanner) run(ctx context.Context, req models.ScanRequest, out chan<- models.ScanProgress) {
	defer close(out)

	hosts, ports := s.Plan(req)
	total := len(hosts) * len(ports)

	gologger.Info().Msgf("Scanning %d hosts across %d ports (detect services: %t)", len(hosts), len(ports), req.DetectServices)
	if len(hosts) == 0 {
		return
	}

	hostScanner := NewHostScanner(
		NewPortScanner(s.probes, NewDialGate(s.options.MaxConcurrentDials, s.options.ConnectRateLimit)),
		s.resolver,
		s.options.PortWorkersPerHost,
	)

	var (
		emitMu  sync.Mutex
		scanned int
		up      int
	)

	swg := sizedwaitgroup.New(s.options.MaxConcurrentHosts)
	for _, host := range hosts {
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}

		go func(host string) {
			defer swg.Done()

			result := hostScanner.ScanHost(ctx, host, ports, req.DetectServices)
			if ctx.Err() != nil {
				return
			}

			// Counting and sending under one lock keeps scanned monotonic in
			// stream order.
			emitMu.Lock()
			defer emitMu.Unlock()

			scanned++
			progress := models.ScanProgress{Scanned: scanned, Total: total}
			if result != nil {
				up++
				progress.Results = []models.HostResult{*result}
				gologger.Debug().Msgf("Host %s is up with %d open ports", host, len(result.Ports))
			}

			select {
			case out <- progress:
			case <-ctx.Done():
			}
		}(host)
	}

	swg.Wait()

	if ctx.Err() != nil {
		gologger.Warning().Msgf("Scan cancelled after %d of %d hosts: %v", scanned, len(hosts), ctx.Err())
		return
	}
	gologger.Info().Msgf("Scan finished: %d of %d hosts up", up, len(hosts))
}
