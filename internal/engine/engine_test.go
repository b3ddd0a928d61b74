package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/bus"
	"github.com/mlinzi-tz/mlinzi/internal/cache"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
	"github.com/mlinzi-tz/mlinzi/internal/repository"
	"github.com/mlinzi-tz/mlinzi/internal/screening"
)

type testEnv struct {
	svc  *Service
	repo domain.Repository
	bus  domain.EventBus
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "engine.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(1000)
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	screener, err := screening.NewEngine()
	if err != nil {
		t.Fatalf("failed to create screening engine: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(domain.DefaultDetectionConfig(), repo, c, b, screener, logger)

	return &testEnv{svc: svc, repo: repo, bus: b}
}

// suspiciousTx is a large night transfer from an unfamiliar device over
// a VPN, on a fresh installation with no history.
func suspiciousTx() *domain.Transaction {
	return &domain.Transaction{
		Amount:    850000,
		Platform:  domain.PlatformHaloPesa,
		Type:      domain.TypeSend,
		Timestamp: time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC),
		Metadata: domain.TxMetadata{
			DeviceID:    "other-device",
			NetworkType: "vpn",
		},
	}
}

func TestAnalyzeSuspiciousNightTransfer(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	a, err := env.svc.AnalyzeTransaction(ctx, suspiciousTx())
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}

	// amount 0 (no history), time 0.8, location 0.5 (absent),
	// frequency 0.2, device 0.8, network 0.9, behavioral 0.3
	if math.Abs(a.Score-0.45) > 1e-9 {
		t.Errorf("expected score 0.45, got %.4f", a.Score)
	}
	// 0.45 < 0.60
	if a.Level != domain.RiskLow {
		t.Errorf("expected level low, got %s", a.Level)
	}
	if len(a.Factors) != 7 {
		t.Errorf("expected 7 factors, got %d", len(a.Factors))
	}
	if a.Factors[domain.FactorAmount] != 0 {
		t.Errorf("expected zero amount factor with no history, got %.2f", a.Factors[domain.FactorAmount])
	}
	if a.Factors[domain.FactorNetwork] != 0.9 {
		t.Errorf("expected network factor 0.9, got %.2f", a.Factors[domain.FactorNetwork])
	}
}

func TestAnalyzeAlertEmission(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	// Lower thresholds so the 0.45 scenario crosses into medium.
	env.svc.cfg.MediumThreshold = 0.40

	var mu sync.Mutex
	var received []*domain.Message
	env.bus.Subscribe(ctx, domain.TopicAlertCreated, func(_ context.Context, msg *domain.Message) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	})

	a, err := env.svc.AnalyzeTransaction(ctx, suspiciousTx())
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}
	if a.Level != domain.RiskMedium {
		t.Fatalf("expected level medium, got %s", a.Level)
	}

	alerts := env.svc.RecentAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 recent alert, got %d", len(alerts))
	}
	if alerts[0].Type != domain.AlertWarning {
		t.Errorf("expected warning alert for medium risk, got %s", alerts[0].Type)
	}
	if alerts[0].Assessment.ID != a.ID {
		t.Error("expected alert to embed the assessment")
	}

	// Channel bus delivers asynchronously.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for alert broadcast")
		case <-time.After(10 * time.Millisecond):
		}
	}

	persisted, err := env.repo.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("expected alert persisted, got %d", len(persisted))
	}
}

func TestLowRiskProducesNoAlert(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	tx := &domain.Transaction{
		Amount:    5000,
		Platform:  domain.PlatformMPesa,
		Type:      domain.TypeSend,
		Timestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Metadata:  domain.TxMetadata{NetworkType: "mobile_data", Location: "Dar es Salaam"},
	}

	a, err := env.svc.AnalyzeTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}
	if a.Level != domain.RiskLow {
		t.Fatalf("expected low risk, got %s (%.2f)", a.Level, a.Score)
	}
	if len(env.svc.RecentAlerts()) != 0 {
		t.Error("expected no alert for low risk")
	}
}

func TestProfileUpdatedAfterScoring(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	env.svc.AnalyzeTransaction(ctx, suspiciousTx())

	p := env.svc.Profile()
	if p.AverageAmount != 850000 {
		t.Errorf("expected average 850000 after one transaction, got %.0f", p.AverageAmount)
	}
	if p.PlatformUsage["HaloPesa"] != 1 {
		t.Errorf("expected platform usage recorded, got %v", p.PlatformUsage)
	}
	if len(p.CommonHours) != 1 || p.CommonHours[0] != 2 {
		t.Errorf("expected hour 2 recorded, got %v", p.CommonHours)
	}
}

func TestSecondTransactionSeesHistory(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	first := suspiciousTx()
	env.svc.AnalyzeTransaction(ctx, first)

	second := suspiciousTx()
	second.Timestamp = first.Timestamp.Add(time.Hour)
	a, err := env.svc.AnalyzeTransaction(ctx, second)
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}

	// Same amount as the established average: tiny deviation, not zero
	// by the no-history rule.
	if a.Factors[domain.FactorAmount] >= 0.01 {
		t.Errorf("expected near-zero amount factor, got %.4f", a.Factors[domain.FactorAmount])
	}
	// Platform share is now 100%.
	if a.Factors[domain.FactorBehavioral] != 0.2 {
		t.Errorf("expected behavioral 0.2, got %.2f", a.Factors[domain.FactorBehavioral])
	}
}

func TestRecentAlertsBounded(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.svc.cfg.MediumThreshold = 0.40
	env.svc.cfg.MaxRecentAlerts = 3

	base := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx := suspiciousTx()
		tx.Timestamp = base.Add(time.Duration(i*30) * 24 * time.Hour)
		env.svc.AnalyzeTransaction(ctx, tx)
	}

	alerts := env.svc.RecentAlerts()
	if len(alerts) != 3 {
		t.Fatalf("expected recent list capped at 3, got %d", len(alerts))
	}
	// Newest first
	if !alerts[0].Timestamp.After(alerts[2].Timestamp) && !alerts[0].Timestamp.Equal(alerts[2].Timestamp) {
		t.Error("expected newest-first ordering")
	}

	stats := env.svc.Stats()
	if stats.AlertsGenerated != 5 {
		t.Errorf("expected 5 alerts generated despite the cap, got %d", stats.AlertsGenerated)
	}
}

func TestMarkAlertRead(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.svc.cfg.MediumThreshold = 0.40

	env.svc.AnalyzeTransaction(ctx, suspiciousTx())
	alert := env.svc.RecentAlerts()[0]

	if err := env.svc.MarkAlertRead(ctx, alert.ID); err != nil {
		t.Fatalf("MarkAlertRead failed: %v", err)
	}
	if !env.svc.RecentAlerts()[0].Read {
		t.Error("expected alert marked read")
	}

	// Idempotent
	if err := env.svc.MarkAlertRead(ctx, alert.ID); err != nil {
		t.Errorf("expected idempotent mark-read, got: %v", err)
	}

	if err := env.svc.MarkAlertRead(ctx, "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got: %v", err)
	}
}

func TestResolveAlert(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.svc.cfg.MediumThreshold = 0.40

	env.svc.AnalyzeTransaction(ctx, suspiciousTx())
	alert := env.svc.RecentAlerts()[0]

	if err := env.svc.ResolveAlert(ctx, alert.ID, "analyst-1", "False positive"); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}

	resolved := env.svc.RecentAlerts()[0]
	if resolved.Type != domain.AlertResolvedT {
		t.Errorf("expected type resolved, got %s", resolved.Type)
	}
	if !resolved.Read {
		t.Error("expected resolve to imply read")
	}

	err := env.svc.ResolveAlert(ctx, alert.ID, "analyst-2", "again")
	if !errors.Is(err, domain.ErrAlertResolved) {
		t.Errorf("expected ErrAlertResolved on second resolve, got: %v", err)
	}
}

func TestStats(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	t.Run("EmptyIsAllZero", func(t *testing.T) {
		stats := env.svc.Stats()
		if stats != (domain.FraudStats{}) {
			t.Errorf("expected zero stats with no transactions, got %+v", stats)
		}
	})

	t.Run("CountsBlocked", func(t *testing.T) {
		tx := suspiciousTx()
		tx.Status = domain.StatusBlocked
		env.svc.AnalyzeTransaction(ctx, tx)

		normal := suspiciousTx()
		normal.Timestamp = tx.Timestamp.Add(time.Hour)
		env.svc.AnalyzeTransaction(ctx, normal)

		stats := env.svc.Stats()
		if stats.TotalTransactions != 2 {
			t.Errorf("expected 2 transactions, got %d", stats.TotalTransactions)
		}
		if stats.BlockedTransactions != 1 {
			t.Errorf("expected 1 blocked, got %d", stats.BlockedTransactions)
		}
		// No critical alerts emitted at these scores.
		if stats.FraudRate != 0 {
			t.Errorf("expected zero fraud rate, got %.2f", stats.FraudRate)
		}
	})
}

func TestScreeningFlagsAdvisoryOnly(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rule := &domain.ScreeningRule{
		ID:         "rule-1",
		Name:       "large_transfer",
		Expression: `amount > 500000.0`,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := env.repo.SaveScreeningRule(ctx, rule); err != nil {
		t.Fatalf("SaveScreeningRule failed: %v", err)
	}

	a, err := env.svc.AnalyzeTransaction(ctx, suspiciousTx())
	if err != nil {
		t.Fatalf("AnalyzeTransaction failed: %v", err)
	}

	if len(a.Flags) != 1 || a.Flags[0] != "large_transfer" {
		t.Fatalf("expected matched rule flag, got %v", a.Flags)
	}
	// The flag must not move the score.
	if math.Abs(a.Score-0.45) > 1e-9 {
		t.Errorf("expected flags not to alter the score, got %.4f", a.Score)
	}
}

func TestInitializeRestoresState(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "engine.db")
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	open := func() (*Service, func()) {
		repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
		if err != nil {
			t.Fatalf("failed to create repository: %v", err)
		}
		c := cache.NewLRUCache(100)
		b := bus.NewChannelBus(10)
		screener, _ := screening.NewEngine()
		svc := NewService(domain.DefaultDetectionConfig(), repo, c, b, screener, logger)
		return svc, func() { b.Close(); c.Close(); repo.Close() }
	}

	first, cleanup := open()
	first.cfg.MediumThreshold = 0.40
	first.AnalyzeTransaction(ctx, suspiciousTx())

	// A second alert over the critical threshold, so restored counters
	// have to tell critical alerts apart from the rest.
	first.cfg.CriticalThreshold = 0.40
	later := suspiciousTx()
	later.Timestamp = later.Timestamp.Add(30 * 24 * time.Hour)
	first.AnalyzeTransaction(ctx, later)
	cleanup()

	second, cleanup2 := open()
	defer cleanup2()
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if len(second.RecentAlerts()) != 2 {
		t.Errorf("expected restart to restore recent alerts, got %d", len(second.RecentAlerts()))
	}
	if p := second.Profile(); p.AverageAmount != 850000 {
		t.Errorf("expected restart to restore profile, got %.0f", p.AverageAmount)
	}

	stats := second.Stats()
	if stats.TotalTransactions != 2 {
		t.Errorf("expected restored history, got %d transactions", stats.TotalTransactions)
	}
	if stats.AlertsGenerated != 2 {
		t.Errorf("expected restored alert counter, got %d", stats.AlertsGenerated)
	}
	if stats.FraudRate != 0.5 {
		t.Errorf("expected fraud rate 0.5 from one critical of two, got %.2f", stats.FraudRate)
	}
}

// unavailableRepo simulates a storage outage: every read and write fails
// until down is cleared.
type unavailableRepo struct {
	down bool
}

func (r *unavailableRepo) outage() error {
	if r.down {
		return errors.New("storage unavailable")
	}
	return nil
}

func (r *unavailableRepo) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	return r.outage()
}

func (r *unavailableRepo) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	if err := r.outage(); err != nil {
		return nil, err
	}
	return nil, repository.ErrNotFound
}

func (r *unavailableRepo) ListTransactionsSince(ctx context.Context, since time.Time) ([]*domain.Transaction, error) {
	return nil, r.outage()
}

func (r *unavailableRepo) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	return r.outage()
}

func (r *unavailableRepo) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	if err := r.outage(); err != nil {
		return nil, err
	}
	return nil, repository.ErrNotFound
}

func (r *unavailableRepo) SaveAlert(ctx context.Context, alert *domain.FraudAlert) error {
	return r.outage()
}

func (r *unavailableRepo) UpdateAlert(ctx context.Context, alert *domain.FraudAlert) error {
	return r.outage()
}

func (r *unavailableRepo) ListAlerts(ctx context.Context, limit int) ([]*domain.FraudAlert, error) {
	return nil, r.outage()
}

func (r *unavailableRepo) CountAlerts(ctx context.Context) (int, int, error) {
	return 0, 0, r.outage()
}

func (r *unavailableRepo) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	return r.outage()
}

func (r *unavailableRepo) GetScreeningRule(ctx context.Context, ruleID string) (*domain.ScreeningRule, error) {
	if err := r.outage(); err != nil {
		return nil, err
	}
	return nil, repository.ErrNotFound
}

func (r *unavailableRepo) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	return nil, r.outage()
}

func (r *unavailableRepo) DeleteScreeningRule(ctx context.Context, ruleID string) error {
	return r.outage()
}

func (r *unavailableRepo) GetDocument(ctx context.Context, key string) ([]byte, error) {
	if err := r.outage(); err != nil {
		return nil, err
	}
	return nil, repository.ErrNotFound
}

func (r *unavailableRepo) PutDocument(ctx context.Context, key string, doc []byte) error {
	return r.outage()
}

func (r *unavailableRepo) Ping(ctx context.Context) error { return r.outage() }

func (r *unavailableRepo) Close() error { return nil }

func TestStorageOutageStillScores(t *testing.T) {
	ctx := context.Background()
	repo := &unavailableRepo{down: true}

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })
	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })
	screener, err := screening.NewEngine()
	if err != nil {
		t.Fatalf("failed to create screening engine: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(domain.DefaultDetectionConfig(), repo, c, b, screener, logger)

	a, err := svc.AnalyzeTransaction(ctx, suspiciousTx())
	if err != nil {
		t.Fatalf("expected degraded scoring during the outage, got: %v", err)
	}
	if math.Abs(a.Score-0.45) > 1e-9 {
		t.Errorf("expected score 0.45 against default state, got %.4f", a.Score)
	}
	if svc.initialized {
		t.Error("expected initialization to stay pending during the outage")
	}

	// The load is retried once storage comes back.
	repo.down = false
	next := suspiciousTx()
	next.Timestamp = next.Timestamp.Add(time.Hour)
	if _, err := svc.AnalyzeTransaction(ctx, next); err != nil {
		t.Fatalf("AnalyzeTransaction after recovery failed: %v", err)
	}
	if !svc.initialized {
		t.Error("expected initialization to succeed after recovery")
	}
}

func TestGetAssessment(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	a, _ := env.svc.AnalyzeTransaction(ctx, suspiciousTx())

	got, err := env.svc.GetAssessment(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got.ID != a.ID || got.Score != a.Score {
		t.Error("expected assessment round-trip")
	}

	_, err = env.svc.GetAssessment(ctx, "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown assessment, got: %v", err)
	}
}

func TestNilTransaction(t *testing.T) {
	env := setupEngine(t)
	if _, err := env.svc.AnalyzeTransaction(context.Background(), nil); !errors.Is(err, ErrNilTransaction) {
		t.Errorf("expected ErrNilTransaction, got: %v", err)
	}
}
