// Package profile maintains the installation's behavior profile: the
// rolling summary of transaction history the factor calculators compare
// against. The in-memory profile is authoritative; persistence is a
// best-effort mirror so a restart starts warm instead of cold.
package profile

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

// Store owns the behavior profile. Callers must serialize access; the
// engine holds its own lock around every Store call.
type Store struct {
	repo    domain.Repository
	logger  *slog.Logger
	profile *domain.UserBehaviorProfile
}

// NewStore creates a profile store backed by the given repository.
func NewStore(repo domain.Repository, logger *slog.Logger) *Store {
	return &Store{
		repo:    repo,
		logger:  logger,
		profile: domain.NewUserBehaviorProfile(),
	}
}

// Load reads the persisted profile document. Load never fails: a missing
// or undecodable document yields zero-valued defaults, and the engine
// rebuilds the summary from history on the next update.
func (s *Store) Load(ctx context.Context) {
	doc, err := s.repo.GetDocument(ctx, domain.ProfileDocumentKey)
	if err != nil {
		s.logger.Info("no persisted behavior profile, starting fresh", "reason", err)
		s.profile = domain.NewUserBehaviorProfile()
		return
	}

	p := domain.NewUserBehaviorProfile()
	if err := json.Unmarshal(doc, p); err != nil {
		s.logger.Warn("failed to decode behavior profile, starting fresh", "error", err)
		s.profile = domain.NewUserBehaviorProfile()
		return
	}

	s.profile = p
}

// Current returns a read-only snapshot of the profile.
func (s *Store) Current() *domain.UserBehaviorProfile {
	return s.profile.Clone()
}

// Update recomputes the profile from the full transaction history. Known
// locations are never touched here: the set holds whatever the persisted
// document carried at load time.
func (s *Store) Update(ctx context.Context, history []*domain.Transaction) {
	now := time.Now().UTC()

	var sum float64
	hours := map[int]struct{}{}
	platforms := map[string]int{}
	var last30 int

	cutoff := now.AddDate(0, 0, -30)
	for _, tx := range history {
		sum += tx.AbsAmount()
		hours[tx.Hour()] = struct{}{}
		platforms[string(tx.Platform)]++
		if !tx.Timestamp.Before(cutoff) {
			last30++
		}
	}

	p := s.profile
	if len(history) > 0 {
		p.AverageAmount = sum / float64(len(history))
	} else {
		p.AverageAmount = 0
	}

	p.CommonHours = p.CommonHours[:0]
	for h := 0; h < 24; h++ {
		if _, ok := hours[h]; ok {
			p.CommonHours = append(p.CommonHours, h)
		}
	}

	p.PlatformUsage = platforms
	p.DailyFrequency = int(math.Round(float64(last30) / 30.0))
	p.UpdatedAt = now

	s.persist(ctx)
}

// persist mirrors the profile to storage. Failures are logged only; the
// in-memory profile stays authoritative.
func (s *Store) persist(ctx context.Context) {
	doc, err := json.Marshal(s.profile)
	if err != nil {
		s.logger.Warn("failed to encode behavior profile", "error", err)
		return
	}

	if err := s.repo.PutDocument(ctx, domain.ProfileDocumentKey, doc); err != nil {
		s.logger.Warn("failed to persist behavior profile", "error", err)
	}
}
