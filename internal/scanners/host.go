package scanners

import (
	"context"
	"sync"
	"time"

	"github.com/allsafeASM/rmap/internal/models"
)

// HostScanner probes every requested port of one host and aggregates the
// open ones into a profile.
type HostScanner struct {
	ports    *PortScanner
	resolver HostnameResolver
	workers  int
}

// NewHostScanner creates a host scanner running up to workers port checks
// at once. resolver may be nil.
func NewHostScanner(ports *PortScanner, resolver HostnameResolver, workers int) *HostScanner {
	if workers <= 0 {
		workers = 1
	}
	return &HostScanner{ports: ports, resolver: resolver, workers: workers}
}

// ScanHost returns nil when no port is open or ctx ends first. Ports appear
// in the order their checks completed.
func (h *HostScanner) ScanHost(ctx context.Context, host string, ports []uint32, detectServices bool) *models.HostResult {
	open := h.scanPorts(ctx, host, ports, detectServices)
	if len(open) == 0 || ctx.Err() != nil {
		return nil
	}

	var hostname string
	if h.resolver != nil {
		hostname = h.resolver.LookupHostname(ctx, host)
	}

	return &models.HostResult{
		Host:     host,
		Hostname: hostname,
		Status:   models.HostStatusUp,
		OS:       GuessOS(open),
		LastSeen: time.Now().UTC().Format(time.RFC3339),
		Risk:     EvaluateRisk(open),
		Ports:    open,
	}
}

func (h *HostScanner) scanPorts(ctx context.Context, host string, ports []uint32, detectServices bool) []models.PortResult {
	workers := min(len(ports), h.workers)
	if workers == 0 {
		return nil
	}

	jobs := make(chan uint32)
	results := make(chan models.PortResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := range jobs {
				if result := h.ports.ScanPort(ctx, host, port, detectServices); result != nil {
					results <- *result
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, port := range ports {
			select {
			case jobs <- port:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var open []models.PortResult
	for result := range results {
		open = append(open, result)
	}
	return open
}
