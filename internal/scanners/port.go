package scanners

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/allsafeASM/rmap/internal/probes"
)

const (
	// ConnectTimeout bounds every connection attempt. Ports are tried once.
	ConnectTimeout = time.Second
	// ReadTimeout bounds the probe exchange after a successful connect
	ReadTimeout = time.Second
	// bannerBufferSize caps how much of a response is matched
	bannerBufferSize = 1024
)

// neutralPayload is sent when the database has no probe for TCP
var neutralPayload = []byte("\n")

// PortScanner checks single ports and optionally fingerprints the service
// behind them.
type PortScanner struct {
	probes *probes.Database
	gate   *DialGate
}

// NewPortScanner creates a port scanner. Both arguments may be nil.
func NewPortScanner(db *probes.Database, gate *DialGate) *PortScanner {
	return &PortScanner{probes: db, gate: gate}
}

// ScanPort makes one connection attempt to host:port. It returns nil when
// the port is not reachable within ConnectTimeout.
func (p *PortScanner) ScanPort(ctx context.Context, host string, port uint32, detectServices bool) *models.PortResult {
	if err := p.gate.Acquire(ctx); err != nil {
		return nil
	}
	defer p.gate.Release()

	dialer := net.Dialer{Timeout: ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)))
	if err != nil {
		return nil
	}
	defer conn.Close()

	result := &models.PortResult{
		Port:     port,
		State:    models.PortStateOpen,
		Service:  models.ServiceUnknown,
		Protocol: models.ProtocolTCP,
	}

	if detectServices {
		result.Service, result.Version = p.detectService(ctx, conn)
	}

	return result
}

// detectService sends the active probe payload and matches the reply. Any
// I/O failure leaves the service unknown.
func (p *PortScanner) detectService(ctx context.Context, conn net.Conn) (string, string) {
	if err := conn.SetDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return models.ServiceUnknown, ""
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	payload := neutralPayload
	if p.probes != nil {
		if probe := p.probes.ActiveProbe(probes.ProtocolTCP); probe != nil {
			payload = probe.Payload
		}
	}

	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return models.ServiceUnknown, ""
		}
	}

	buf := make([]byte, bannerBufferSize)
	n, _ := conn.Read(buf)
	if n == 0 || p.probes == nil {
		return models.ServiceUnknown, ""
	}

	return p.probes.Identify(probes.ProtocolTCP, buf[:n])
}
