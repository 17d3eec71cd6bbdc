package probes

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/projectdiscovery/gologger"
)

const maxLineSize = 1 << 20

var matchLineRegex = regexp.MustCompile(`match\s+(\S+)\s+m/(.+)/`)

// payloadEscapes are applied in order. The escaped backslash goes last.
var payloadEscapes = []struct{ from, to string }{
	{`\r`, "\r"},
	{`\n`, "\n"},
	{`\0`, "\x00"},
	{`\\`, `\`},
}

// ParseString parses probe definitions held in memory
func ParseString(content string) []Probe {
	probes, _ := Parse(strings.NewReader(content))
	return probes
}

// Parse reads probe definitions line by line:
//
//	Probe <name> <payload> [<protocol>]
//	match <service> m/<pattern>/
//	fallback <probe>,<probe>
//
// Blank lines, comments and unknown directives are skipped. A match whose
// pattern does not compile drops only that rule. The returned error reports
// read failures; probes parsed before the failure are still returned.
func Parse(r io.Reader) ([]Probe, error) {
	var (
		probes  []Probe
		current *Probe
	)

	flush := func() {
		if current != nil {
			probes = append(probes, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Probe "):
			flush()
			current = parseProbeLine(line)
		case strings.HasPrefix(line, "match "):
			if current == nil {
				continue
			}
			if m, ok := parseMatchLine(line, lineNo); ok {
				current.Matches = append(current.Matches, m)
			}
		case strings.HasPrefix(line, "fallback "):
			if current == nil {
				continue
			}
			current.Fallback = strings.Split(strings.TrimPrefix(line, "fallback "), ",")
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return probes, fmt.Errorf("failed to read probe definitions at line %d: %w", lineNo, err)
	}

	return probes, nil
}

// parseProbeLine returns nil for a Probe line without a payload; following
// match lines are then ignored until the next valid Probe.
func parseProbeLine(line string) *Probe {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return nil
	}

	protocol := ProtocolTCP
	if len(parts) > 3 {
		protocol = parts[3]
	}

	return &Probe{
		Name:     parts[1],
		Payload:  unescapePayload(parts[2]),
		Protocol: protocol,
	}
}

func parseMatchLine(line string, lineNo int) (Match, bool) {
	groups := matchLineRegex.FindStringSubmatch(line)
	if groups == nil {
		gologger.Debug().Msgf("Skipping malformed match rule on line %d", lineNo)
		return Match{}, false
	}

	pattern, err := regexp.Compile(groups[2])
	if err != nil {
		gologger.Debug().Msgf("Skipping match rule for %s on line %d: %v", groups[1], lineNo, err)
		return Match{}, false
	}

	return Match{Service: groups[1], Pattern: pattern}, true
}

func unescapePayload(raw string) []byte {
	for _, esc := range payloadEscapes {
		raw = strings.ReplaceAll(raw, esc.from, esc.to)
	}
	return []byte(raw)
}
