// Package speedtest runs speedtest-cli and turns its --simple text output
// into numeric readings.
package speedtest

import (
	"strconv"
	"strings"
)

// Sentinel is stored for any metric that could not be parsed or converted.
const Sentinel float64 = -1

// unitRule maps a unit prefix to its bit/s multiplier (binary, 1024-based).
type unitRule struct {
	prefix     string
	multiplier float64
}

// Order matters: the first matching prefix wins.
var unitRules = []unitRule{
	{prefix: "bit", multiplier: 1},
	{prefix: "kbit", multiplier: 1024},
	{prefix: "mbit", multiplier: 1024 * 1024},
	{prefix: "gbit", multiplier: 1024 * 1024 * 1024},
}

// NormalizeToBitPerSecond converts value, expressed in unit, to bit/s.
// unit is matched case-insensitively by prefix, so "Mbit", "mbits" and "MBit"
// all select the Mbit rule. Returns Sentinel for an unknown unit or a value
// that is not a decimal number.
func NormalizeToBitPerSecond(value, unit string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return Sentinel
	}

	lower := strings.ToLower(unit)
	for _, rule := range unitRules {
		if strings.HasPrefix(lower, rule.prefix) {
			return v * rule.multiplier
		}
	}
	return Sentinel
}
