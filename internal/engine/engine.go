// Package engine implements the risk-scoring pipeline: factor
// calculation, aggregation, alert emission and profile maintenance.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
	"github.com/mlinzi-tz/mlinzi/internal/fingerprint"
	"github.com/mlinzi-tz/mlinzi/internal/profile"
	"github.com/mlinzi-tz/mlinzi/internal/screening"
)

var (
	// ErrAlertNotFound is returned when an alert ID is not in the recent list.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrNilTransaction is returned when AnalyzeTransaction gets nil input.
	ErrNilTransaction = errors.New("transaction is required")
)

const assessmentCacheTTL = time.Hour

// Service is the risk-scoring engine. It owns the transaction history,
// the behavior profile and the recent-alerts list; external callers only
// ever see snapshots. One instance per installation.
type Service struct {
	mu sync.Mutex

	cfg      domain.DetectionConfig
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	profiles *profile.Store
	screener *screening.Engine
	logger   *slog.Logger

	deviceFingerprint string

	history      []*domain.Transaction
	recentAlerts []*domain.FraudAlert

	alertsGenerated int
	criticalAlerts  int

	initialized bool
}

// NewService wires the engine against its backends. Call Initialize (or
// just AnalyzeTransaction, which initializes lazily) before use.
func NewService(
	cfg domain.DetectionConfig,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	screener *screening.Engine,
	logger *slog.Logger,
) *Service {
	if cfg.MaxRecentAlerts <= 0 {
		cfg.MaxRecentAlerts = domain.DefaultDetectionConfig().MaxRecentAlerts
	}

	return &Service{
		cfg:               cfg,
		repo:              repo,
		cache:             cache,
		bus:               bus,
		profiles:          profile.NewStore(repo, logger),
		screener:          screener,
		logger:            logger,
		deviceFingerprint: fingerprint.Device(),
	}
}

// Initialize loads persisted state: the behavior profile, the full
// transaction history, recent alerts and screening rules. Idempotent.
// On failure the engine stays uninitialized and the next call retries.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	s.profiles.Load(ctx)

	history, err := s.repo.ListTransactionsSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to load transaction history: %w", err)
	}
	// Stored newest-first; the history list is append-order oldest-first.
	s.history = s.history[:0]
	for i := len(history) - 1; i >= 0; i-- {
		s.history = append(s.history, history[i])
	}

	alerts, err := s.repo.ListAlerts(ctx, s.cfg.MaxRecentAlerts)
	if err != nil {
		return fmt.Errorf("failed to load recent alerts: %w", err)
	}
	s.recentAlerts = alerts

	// The recent list is bounded; the stats counters cover all time.
	total, critical, err := s.repo.CountAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count alerts: %w", err)
	}
	s.alertsGenerated = total
	s.criticalAlerts = critical

	rules, err := s.repo.ListScreeningRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load screening rules: %w", err)
	}
	if s.screener != nil {
		if err := s.screener.ReloadRules(rules); err != nil {
			return fmt.Errorf("failed to compile screening rules: %w", err)
		}
	}

	s.initialized = true
	s.logger.Info("risk engine initialized",
		"history_size", len(s.history),
		"recent_alerts", len(s.recentAlerts),
		"screening_rules", len(rules),
		"device_fingerprint", s.deviceFingerprint[:min(12, len(s.deviceFingerprint))],
	)
	return nil
}

// AnalyzeTransaction runs the full scoring pipeline for one transaction
// and returns its assessment. The in-memory state is authoritative;
// persistence and broadcast failures are logged and never fail the call.
func (s *Service) AnalyzeTransaction(ctx context.Context, tx *domain.Transaction) (*domain.RiskAssessment, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initializeLocked(ctx); err != nil {
		// Score against the in-memory state; the flag stays false so
		// the next call retries the load.
		s.logger.Warn("state load failed, scoring with in-memory state", "error", err)
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.StatusPending
	}

	p := s.profiles.Current()

	factors := map[string]float64{
		domain.FactorAmount:     amountFactor(tx, p),
		domain.FactorTime:       timeFactor(tx, p),
		domain.FactorLocation:   locationFactor(tx, p),
		domain.FactorFrequency:  frequencyFactor(s.count24hLocked(tx)+1, p),
		domain.FactorDevice:     deviceFactor(tx, s.deviceFingerprint),
		domain.FactorNetwork:    networkFactor(tx),
		domain.FactorBehavioral: behavioralFactor(tx, p),
	}

	score := aggregateScore(factors)
	level := riskLevel(score, s.cfg)

	assessment := &domain.RiskAssessment{
		ID:              uuid.New().String(),
		TransactionID:   tx.ID,
		Score:           score,
		Level:           level,
		Factors:         factors,
		Recommendations: recommendations(level, factors),
		Timestamp:       time.Now().UTC(),
	}
	if s.screener != nil {
		assessment.Flags = s.screener.Screen(tx, p)
	}

	s.persistScoring(ctx, tx, assessment)

	if level.AtLeast(domain.RiskMedium) {
		s.emitAlertLocked(ctx, tx, assessment)
	}

	s.history = append(s.history, tx)
	s.profiles.Update(ctx, s.history)

	s.publish(ctx, domain.TopicAssessmentCompleted, assessment)

	if count, err := s.cache.IncrementCounter(ctx, "tx:daily", 24*time.Hour); err == nil {
		s.logger.Debug("transaction scored",
			"tx_id", tx.ID,
			"score", score,
			"level", level,
			"daily_count", count,
		)
	}

	return assessment, nil
}

// count24hLocked counts history entries within 24h of the transaction.
func (s *Service) count24hLocked(tx *domain.Transaction) int {
	cutoff := tx.Timestamp.Add(-24 * time.Hour)
	n := 0
	for _, h := range s.history {
		if !h.Timestamp.Before(cutoff) && !h.Timestamp.After(tx.Timestamp) {
			n++
		}
	}
	return n
}

// persistScoring mirrors the transaction and its assessment to storage
// and the read-side cache. Best-effort only.
func (s *Service) persistScoring(ctx context.Context, tx *domain.Transaction, a *domain.RiskAssessment) {
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		s.logger.Warn("failed to persist transaction", "tx_id", tx.ID, "error", err)
	}
	if err := s.repo.SaveAssessment(ctx, a); err != nil {
		s.logger.Warn("failed to persist assessment", "assessment_id", a.ID, "error", err)
	}
	if err := s.cache.SetAssessment(ctx, a, assessmentCacheTTL); err != nil {
		s.logger.Warn("failed to cache assessment", "assessment_id", a.ID, "error", err)
	}
}

// emitAlertLocked builds the alert, records it in the bounded recent
// list, persists it and broadcasts it once.
func (s *Service) emitAlertLocked(ctx context.Context, tx *domain.Transaction, a *domain.RiskAssessment) {
	alert := &domain.FraudAlert{
		ID:          uuid.New().String(),
		Transaction: tx,
		Assessment:  a,
		Type:        alertTypeFor(a.Level),
		Message:     alertMessage(a.Level, tx, a.Score),
		Timestamp:   time.Now().UTC(),
	}

	// Newest first, oldest evicted.
	s.recentAlerts = append([]*domain.FraudAlert{alert}, s.recentAlerts...)
	if len(s.recentAlerts) > s.cfg.MaxRecentAlerts {
		s.recentAlerts = s.recentAlerts[:s.cfg.MaxRecentAlerts]
	}

	s.alertsGenerated++
	if alert.Type == domain.AlertCritical {
		s.criticalAlerts++
	}

	if err := s.repo.SaveAlert(ctx, alert); err != nil {
		s.logger.Warn("failed to persist alert", "alert_id", alert.ID, "error", err)
	}

	s.publish(ctx, domain.TopicAlertCreated, alert)

	s.logger.Info("fraud alert created",
		"alert_id", alert.ID,
		"type", alert.Type,
		"tx_id", tx.ID,
		"score", a.Score,
	)
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, data); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// RecentAlerts returns a snapshot of the bounded recent-alerts list,
// newest first.
func (s *Service) RecentAlerts() []*domain.FraudAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.FraudAlert, len(s.recentAlerts))
	copy(out, s.recentAlerts)
	return out
}

// MarkAlertRead flags an alert as seen. Idempotent.
func (s *Service) MarkAlertRead(ctx context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert := s.findAlertLocked(alertID)
	if alert == nil {
		return ErrAlertNotFound
	}

	alert.MarkRead()
	s.persistAlertUpdate(ctx, alert)
	return nil
}

// ResolveAlert closes an alert. Resolution is terminal: a second resolve
// returns domain.ErrAlertResolved.
func (s *Service) ResolveAlert(ctx context.Context, alertID, by, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert := s.findAlertLocked(alertID)
	if alert == nil {
		return ErrAlertNotFound
	}

	if err := alert.Resolve(by, resolution); err != nil {
		return err
	}

	s.persistAlertUpdate(ctx, alert)
	return nil
}

func (s *Service) findAlertLocked(alertID string) *domain.FraudAlert {
	for _, a := range s.recentAlerts {
		if a.ID == alertID {
			return a
		}
	}
	return nil
}

func (s *Service) persistAlertUpdate(ctx context.Context, alert *domain.FraudAlert) {
	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		s.logger.Warn("failed to persist alert update", "alert_id", alert.ID, "error", err)
	}
	s.publish(ctx, domain.TopicAlertUpdated, alert)
}

// Stats computes the aggregate fraud statistics from in-memory state.
// With no transactions every field is zero.
func (s *Service) Stats() domain.FraudStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.history)
	if total == 0 {
		return domain.FraudStats{}
	}

	blocked := 0
	for _, tx := range s.history {
		if tx.Status == domain.StatusBlocked {
			blocked++
		}
	}

	return domain.FraudStats{
		TotalTransactions:   total,
		FraudRate:           float64(s.criticalAlerts) / float64(total),
		BlockedTransactions: blocked,
		AlertsGenerated:     s.alertsGenerated,
	}
}

// Profile returns a read-only snapshot of the behavior profile.
func (s *Service) Profile() *domain.UserBehaviorProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles.Current()
}

// GetAssessment serves read-side assessment lookups, cache first.
func (s *Service) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	if a, err := s.cache.GetAssessment(ctx, assessmentID); err == nil && a != nil {
		return a, nil
	}
	return s.repo.GetAssessment(ctx, assessmentID)
}

// ReloadRules re-reads screening rules from storage and swaps them in.
func (s *Service) ReloadRules(ctx context.Context) (int, error) {
	if s.screener == nil {
		return 0, nil
	}

	rules, err := s.repo.ListScreeningRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load screening rules: %w", err)
	}
	if err := s.screener.ReloadRules(rules); err != nil {
		return 0, err
	}
	return s.screener.RulesCount(), nil
}
