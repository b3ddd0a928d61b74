package engine

import (
	"fmt"
	"strconv"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

// Factor weights, fixed and summing to 1.0. The thresholds that classify
// the weighted sum are configurable; the weights are not.
var factorWeights = map[string]float64{
	domain.FactorAmount:     0.25,
	domain.FactorTime:       0.20,
	domain.FactorLocation:   0.15,
	domain.FactorFrequency:  0.15,
	domain.FactorDevice:     0.10,
	domain.FactorNetwork:    0.10,
	domain.FactorBehavioral: 0.05,
}

// aggregateScore combines the factor scores into the weighted risk score.
func aggregateScore(factors map[string]float64) float64 {
	var score float64
	for name, weight := range factorWeights {
		score += factors[name] * weight
	}
	return score
}

// riskLevel classifies a score. Thresholds are evaluated highest to
// lowest, first match wins, lower bound inclusive.
func riskLevel(score float64, cfg domain.DetectionConfig) domain.RiskLevel {
	switch {
	case score >= cfg.CriticalThreshold:
		return domain.RiskCritical
	case score >= cfg.HighThreshold:
		return domain.RiskHigh
	case score >= cfg.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

var baseRecommendations = map[domain.RiskLevel][]string{
	domain.RiskCritical: {
		"Block the transaction immediately",
		"Freeze outgoing transfers pending review",
		"Escalate to the fraud response team",
	},
	domain.RiskHigh: {
		"Hold the transaction for manual review",
		"Contact the customer through a verified channel",
	},
	domain.RiskMedium: {
		"Monitor account activity closely",
		"Verify the transaction with the registered owner",
	},
	domain.RiskLow: {
		"No action required",
	},
}

// recommendations builds the ordered action list: the fixed per-level
// table, then up to three conditional extras for individual factors
// above 0.5, in amount/device/location priority order.
func recommendations(level domain.RiskLevel, factors map[string]float64) []string {
	recs := make([]string, len(baseRecommendations[level]))
	copy(recs, baseRecommendations[level])

	if factors[domain.FactorAmount] > 0.5 {
		recs = append(recs, "Confirm the amount matches the customer's intent")
	}
	if factors[domain.FactorDevice] > 0.5 {
		recs = append(recs, "Re-verify the device with two-factor authentication")
	}
	if factors[domain.FactorLocation] > 0.5 {
		recs = append(recs, "Confirm the customer's current location")
	}

	return recs
}

// alertTypeFor maps a risk level to its alert type. Alerts are only
// created for medium and above, but the mapping is total.
func alertTypeFor(level domain.RiskLevel) domain.AlertType {
	switch level {
	case domain.RiskCritical:
		return domain.AlertCritical
	case domain.RiskHigh:
		return domain.AlertSuspicious
	case domain.RiskMedium:
		return domain.AlertWarning
	default:
		return domain.AlertInfo
	}
}

// alertMessage renders the level-specific human-readable message.
func alertMessage(level domain.RiskLevel, tx *domain.Transaction, score float64) string {
	amount := formatTZS(tx.AbsAmount())
	pct := score * 100

	switch level {
	case domain.RiskCritical:
		return fmt.Sprintf("Critical fraud risk on %s transaction of TZS %s (risk score: %.1f%%)", tx.Platform, amount, pct)
	case domain.RiskHigh:
		return fmt.Sprintf("Suspicious %s transaction of TZS %s (risk score: %.1f%%)", tx.Platform, amount, pct)
	case domain.RiskMedium:
		return fmt.Sprintf("Unusual %s transaction of TZS %s (risk score: %.1f%%)", tx.Platform, amount, pct)
	default:
		return fmt.Sprintf("%s transaction of TZS %s within normal behavior (risk score: %.1f%%)", tx.Platform, amount, pct)
	}
}

// formatTZS renders an amount with thousands separators. Mobile-money
// amounts are whole shillings; fractions are rounded away.
func formatTZS(amount float64) string {
	s := strconv.FormatInt(int64(amount+0.5), 10)

	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}

	if neg {
		return "-" + string(out)
	}
	return string(out)
}
