package scanners

import (
	"strings"

	"github.com/allsafeASM/rmap/internal/models"
)

// mediumRiskPortThreshold is the open port count above which a host is
// rated medium risk
const mediumRiskPortThreshold = 10

// GuessOS infers an operating system family from open ports and service
// labels. Windows indicators are checked before Linux ones.
func GuessOS(ports []models.PortResult) string {
	for _, p := range ports {
		if p.Port == 445 || strings.Contains(p.Service, "Microsoft") {
			return models.OSWindows
		}
	}
	for _, p := range ports {
		if p.Port == 22 || strings.Contains(p.Service, "OpenSSH") {
			return models.OSLinux
		}
	}
	return models.OSUnknown
}

// EvaluateRisk rates a host high when telnet is exposed, medium when it has
// more than ten open ports and low otherwise.
func EvaluateRisk(ports []models.PortResult) string {
	for _, p := range ports {
		if p.Port == 23 || p.Service == "telnet" {
			return models.RiskHigh
		}
	}
	if len(ports) > mediumRiskPortThreshold {
		return models.RiskMedium
	}
	return models.RiskLow
}
