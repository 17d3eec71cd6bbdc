package probes

import "regexp"

// Builtin returns the fallback probe set used when neither the local cache
// nor the remote source is available.
func Builtin() []Probe {
	return []Probe{
		{
			Name:     "basic",
			Payload:  []byte("\r\n"),
			Protocol: ProtocolTCP,
			Matches: []Match{
				{Service: "http", Pattern: regexp.MustCompile(`(?i)Server:.*Apache|nginx`)},
				{Service: "ssh", Pattern: regexp.MustCompile(`(?i)^SSH-`)},
			},
		},
	}
}
