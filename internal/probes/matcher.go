package probes

import "strings"

// MatchBanner walks probes and their matches in declaration order and
// returns the first hit. The version is the rule's static version, or the
// banner text itself when the rule has none. Without a hit it returns
// ("unknown", "").
func MatchBanner(banner []byte, probes []Probe) (service, version string) {
	text := strings.ToValidUTF8(string(banner), "\uFFFD")

	for _, probe := range probes {
		for _, m := range probe.Matches {
			if m.Pattern == nil || !m.Pattern.MatchString(text) {
				continue
			}
			if m.Version != "" {
				return m.Service, m.Version
			}
			return m.Service, text
		}
	}

	return "unknown", ""
}
