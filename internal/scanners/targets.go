package scanners

import (
	"net"
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/mapcidr"
)

// MaxPort is the highest valid TCP port
const MaxPort = 65535

// DefaultPorts are scanned when a request names no ports and is not a full scan
var DefaultPorts = []uint32{22, 80, 443}

// ResolvePorts returns the ports to probe on every host. A full scan covers
// 1..65535. Otherwise explicit ports are used in request order with entries
// outside 1..65535 dropped, and an empty result falls back to DefaultPorts.
func ResolvePorts(requested []uint32, fullScan bool) []uint32 {
	if fullScan {
		ports := make([]uint32, 0, MaxPort)
		for port := uint32(1); port <= MaxPort; port++ {
			ports = append(ports, port)
		}
		return ports
	}

	ports := make([]uint32, 0, len(requested))
	for _, port := range requested {
		if port == 0 || port > MaxPort {
			gologger.Debug().Msgf("Dropping out of range port %d", port)
			continue
		}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return append([]uint32(nil), DefaultPorts...)
	}
	return ports
}

// ExpandTargets turns IP and CIDR strings into individual host addresses.
// Entries are tried as CIDR first, then as a bare IP; anything else is
// dropped. Duplicates collapse to their first occurrence and at most
// maxHosts addresses are returned. A prefix holding more than maxHosts
// addresses is dropped as a whole.
func ExpandTargets(targets []string, maxHosts int) []string {
	seen := make(map[string]struct{})
	var hosts []string

	for _, target := range targets {
		for _, host := range expandTarget(strings.TrimSpace(target), maxHosts) {
			if _, ok := seen[host]; ok {
				continue
			}
			if len(hosts) >= maxHosts {
				gologger.Warning().Msgf("Target list exceeds %d hosts, remaining targets dropped", maxHosts)
				return hosts
			}
			seen[host] = struct{}{}
			hosts = append(hosts, host)
		}
	}

	return hosts
}

func expandTarget(target string, maxHosts int) []string {
	if target == "" {
		return nil
	}

	if _, ipnet, err := net.ParseCIDR(target); err == nil {
		return expandCIDR(ipnet, maxHosts)
	}

	if ip := net.ParseIP(target); ip != nil {
		return []string{ip.String()}
	}

	gologger.Debug().Msgf("Dropping unparseable target %q", target)
	return nil
}

// expandCIDR lists the host addresses of a prefix. IPv4 prefixes shorter
// than /31 leave out the network and broadcast addresses.
func expandCIDR(ipnet *net.IPNet, maxHosts int) []string {
	count := mapcidr.CountIPsInCIDR(true, true, ipnet)
	if !count.IsInt64() || count.Int64() > int64(maxHosts) {
		gologger.Warning().Msgf("Dropping %s: %s addresses exceed the limit of %d", ipnet, count, maxHosts)
		return nil
	}

	ips, err := mapcidr.IPAddressesAsStream(ipnet.String())
	if err != nil {
		gologger.Debug().Msgf("Dropping %s: %v", ipnet, err)
		return nil
	}

	var network, broadcast string
	ones, bits := ipnet.Mask.Size()
	if bits == 32 && ones < 31 {
		network, broadcast = ipv4Bounds(ipnet)
	}

	hosts := make([]string, 0, count.Int64())
	for ip := range ips {
		if ip == network || ip == broadcast {
			continue
		}
		hosts = append(hosts, ip)
	}
	return hosts
}

func ipv4Bounds(ipnet *net.IPNet) (network, broadcast string) {
	base := ipnet.IP.To4()
	mask := net.IP(ipnet.Mask).To4()
	if base == nil || mask == nil {
		return "", ""
	}

	last := make(net.IP, net.IPv4len)
	for i := range base {
		last[i] = base[i] | ^mask[i]
	}
	return base.Mask(ipnet.Mask).String(), last.String()
}
