package engine

import (
	"math"
	"strings"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

// The seven factor calculators. Each is a pure function mapping
// (transaction, profile, context) to an anomaly score in [0,1].
// Thresholds and constants are part of the scoring contract and
// deliberately hand-tuned, not learned.

// amountFactor measures deviation from the historical average amount.
// With no prior history there is no expectation to violate. A computed
// average of zero is still an expectation.
func amountFactor(tx *domain.Transaction, p *domain.UserBehaviorProfile) float64 {
	if !p.HasHistory() {
		return 0
	}

	avg := p.AverageAmount
	amt := tx.AbsAmount()
	deviation := math.Abs(amt-avg) / (avg + 1)

	if amt > avg*3 {
		return math.Min(1, deviation*2)
	}
	return math.Min(1, deviation)
}

// timeFactor scores the hour of day. Late-night hours are inherently
// risky regardless of history; otherwise an hour near a common hour is
// normal and a far one is unusual.
func timeFactor(tx *domain.Transaction, p *domain.UserBehaviorProfile) float64 {
	hour := tx.Hour()

	if hour >= 23 || hour <= 6 {
		return 0.8
	}

	if !p.HasHourData() {
		return 0.3
	}

	for _, common := range p.CommonHours {
		if abs(hour-common) <= 2 {
			return 0.1
		}
	}
	return 0.6
}

// locationFactor compares the transaction location with the known set.
func locationFactor(tx *domain.Transaction, p *domain.UserBehaviorProfile) float64 {
	loc := tx.Metadata.LocationLabel()
	if loc == domain.UnknownLabel {
		return 0.5
	}

	if !p.HasLocationData() {
		return 0.3
	}

	if p.KnowsLocation(loc) {
		return 0.1
	}
	return 0.7
}

// frequencyFactor compares the trailing-24h transaction count, current
// transaction included, against the typical daily frequency.
func frequencyFactor(count24h int, p *domain.UserBehaviorProfile) float64 {
	typical := p.DailyFrequency
	if typical <= 0 {
		typical = 5
	}

	switch {
	case count24h > typical*3:
		return 0.9
	case count24h > typical*2:
		return 0.6
	default:
		return 0.2
	}
}

// deviceFactor flags transactions claiming a device other than this one.
// Only an exact fingerprint match is familiar; an absent device ID is a
// mismatch like any other.
func deviceFactor(tx *domain.Transaction, localFingerprint string) float64 {
	if tx.Metadata.DeviceID == localFingerprint {
		return 0.1
	}
	return 0.8
}

// networkFactor scores the network type. Anonymizing networks dominate.
func networkFactor(tx *domain.Transaction) float64 {
	network := strings.ToLower(tx.Metadata.NetworkLabel())

	if strings.Contains(network, "vpn") || strings.Contains(network, "tor") {
		return 0.9
	}
	if network == domain.UnknownLabel {
		return 0.5
	}
	return 0.2
}

// behavioralFactor measures how rarely this platform is used relative to
// the rest of the history.
func behavioralFactor(tx *domain.Transaction, p *domain.UserBehaviorProfile) float64 {
	if !p.HasPlatformData() {
		return 0.3
	}

	total := 0
	for _, n := range p.PlatformUsage {
		total += n
	}
	if total == 0 {
		return 0.3
	}

	share := float64(p.PlatformUsage[string(tx.Platform)]) / float64(total)
	if share < 0.1 {
		return 0.7
	}
	return 0.2
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
