// Package probes loads the service probe database and matches response
// banners against it.
package probes

import (
	"regexp"
	"strings"
)

// ProtocolTCP is the protocol a probe gets when its definition names none,
// and the only protocol the port scanner consults.
const ProtocolTCP = "TCP"

// Source records which tier produced a probe database
type Source string

const (
	SourceCache   Source = "cache"
	SourceRemote  Source = "remote"
	SourceBuiltin Source = "builtin"
)

// Probe is a payload sent to an open port together with the patterns that
// identify services by their response.
type Probe struct {
	Name     string
	Payload  []byte
	Protocol string
	Matches  []Match
	// Fallback names other probes whose matches could apply. Parsed and kept
	// but never consulted during matching.
	Fallback []string
}

// Match identifies a service from a banner
type Match struct {
	Service string
	Pattern *regexp.Regexp
	// Version is a static version string. When empty the matched banner is
	// reported as the version.
	Version string
}

// Database is an immutable, ordered probe set. It is safe for concurrent use.
type Database struct {
	probes     []Probe
	byProtocol map[string][]Probe
	source     Source
}

// NewDatabase wraps probes in declaration order. The slice must not be
// modified afterwards.
func NewDatabase(probes []Probe, source Source) *Database {
	byProtocol := make(map[string][]Probe)
	for _, p := range probes {
		key := strings.ToUpper(p.Protocol)
		byProtocol[key] = append(byProtocol[key], p)
	}

	return &Database{
		probes:     probes,
		byProtocol: byProtocol,
		source:     source,
	}
}

// Probes returns every probe in declaration order. Callers must treat the
// result as read-only.
func (d *Database) Probes() []Probe {
	return d.probes
}

// ForProtocol returns the probes of one protocol in declaration order
func (d *Database) ForProtocol(protocol string) []Probe {
	return d.byProtocol[strings.ToUpper(protocol)]
}

// ActiveProbe returns the first probe of the protocol, or nil if there is none
func (d *Database) ActiveProbe(protocol string) *Probe {
	probes := d.ForProtocol(protocol)
	if len(probes) == 0 {
		return nil
	}
	return &probes[0]
}

// Identify matches a banner against the probes of the given protocol
func (d *Database) Identify(protocol string, banner []byte) (service, version string) {
	return MatchBanner(banner, d.ForProtocol(protocol))
}

func (d *Database) Source() Source {
	return d.source
}

func (d *Database) Len() int {
	return len(d.probes)
}
