package domain

import (
	"time"
)

// RiskLevel is the ordered classification of an aggregate risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether l is at or above the given level.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[l] >= riskRank[other]
}

// Factor names, keys of RiskAssessment.Factors.
const (
	FactorAmount     = "amount_anomaly"
	FactorTime       = "time_anomaly"
	FactorLocation   = "location_anomaly"
	FactorFrequency  = "frequency_anomaly"
	FactorDevice     = "device_anomaly"
	FactorNetwork    = "network_anomaly"
	FactorBehavioral = "behavioral_anomaly"
)

// RiskAssessment is the output of scoring one transaction. Created once,
// immutable, embedded by reference inside at most one FraudAlert.
type RiskAssessment struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`

	// Score is the weighted sum of the seven factor scores, in [0,1].
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`

	// Factors maps factor name to its anomaly score in [0,1].
	Factors map[string]float64 `json:"factors"`

	// Flags lists the names of screening rules that matched. Advisory
	// only: flags never alter the score or the level.
	Flags []string `json:"flags,omitempty"`

	Recommendations []string  `json:"recommendations"`
	Timestamp       time.Time `json:"timestamp"`
}

// FraudStats is the aggregate read computed on demand from in-memory state.
type FraudStats struct {
	TotalTransactions   int     `json:"total_transactions"`
	FraudRate           float64 `json:"fraud_rate"`
	BlockedTransactions int     `json:"blocked_transactions"`
	AlertsGenerated     int     `json:"alerts_generated"`
}
