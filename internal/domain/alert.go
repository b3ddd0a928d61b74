package domain

import (
	"errors"
	"time"
)

// AlertType classifies a fraud alert. Derived from the assessment's risk
// level at creation time; only an explicit resolution changes it afterward.
type AlertType string

const (
	AlertCritical   AlertType = "critical"
	AlertSuspicious AlertType = "suspicious"
	AlertWarning    AlertType = "warning"
	AlertInfo       AlertType = "info"
	AlertResolvedT  AlertType = "resolved"
)

// ErrAlertResolved is returned when resolving an already-resolved alert.
// Resolved is a terminal state.
var ErrAlertResolved = errors.New("alert already resolved")

// FraudAlert is a notification-worthy event, created only when the risk
// level reaches medium or above.
type FraudAlert struct {
	ID          string          `json:"id"`
	Transaction *Transaction    `json:"transaction"`
	Assessment  *RiskAssessment `json:"assessment"`
	Type        AlertType       `json:"type"`
	Message     string          `json:"message"`
	Timestamp   time.Time       `json:"timestamp"`
	Read        bool            `json:"read"`

	// Resolution fields, all empty until Resolve is called.
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

// MarkRead flags the alert as seen. Idempotent.
func (a *FraudAlert) MarkRead() {
	a.Read = true
}

// Resolve closes the alert, overwriting its type. Resolving implies read,
// and may be invoked directly from the unread state.
func (a *FraudAlert) Resolve(by, resolution string) error {
	if a.ResolvedAt != nil {
		return ErrAlertResolved
	}
	now := time.Now().UTC()
	a.Read = true
	a.Type = AlertResolvedT
	a.ResolvedBy = by
	a.ResolvedAt = &now
	a.Resolution = resolution
	return nil
}

// Resolved reports whether the alert has reached its terminal state.
func (a *FraudAlert) Resolved() bool {
	return a.ResolvedAt != nil
}
