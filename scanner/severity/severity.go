// Package severity scores findings that carry a severity and a confidence
// category. Pattern database matches and engine alerts are not scored here,
// their risk labels are passed through as reported.
package severity

import (
	"math"
	"strings"

	"gitlab.com/vulnscan/vscan"
)

const (
	// HighThreshold is the lowest score labeled High
	HighThreshold = 7.6
	// MediumThreshold is the lowest score labeled Medium
	MediumThreshold = 4.1

	defaultBase       = 3.0
	defaultMultiplier = 0.5
)

var baseScores = map[string]float64{
	"HIGH":   9.0,
	"MEDIUM": 6.0,
	"LOW":    3.0,
}

var confidenceMultipliers = map[string]float64{
	"HIGH":   1.0,
	"MEDIUM": 0.8,
	"LOW":    0.5,
}

// Score maps a severity and confidence category to a score rounded to one
// decimal and its risk label. Unknown categories fall back to Low.
func Score(severity, confidence string) (float64, vscan.Risk) {
	base, ok := baseScores[strings.ToUpper(strings.TrimSpace(severity))]
	if !ok {
		base = defaultBase
	}
	mult, ok := confidenceMultipliers[strings.ToUpper(strings.TrimSpace(confidence))]
	if !ok {
		mult = defaultMultiplier
	}
	score := math.Round(base*mult*10) / 10
	return score, RiskFor(score)
}

// RiskFor a locally computed score
func RiskFor(score float64) vscan.Risk {
	switch {
	case score >= HighThreshold:
		return vscan.RiskHigh
	case score >= MediumThreshold:
		return vscan.RiskMedium
	}
	return vscan.RiskLow
}
