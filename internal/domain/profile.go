package domain

import (
	"time"
)

// ProfileDocumentKey is the well-known storage key for the serialized
// behavior profile.
const ProfileDocumentKey = "profile:behavior"

// UserBehaviorProfile is the rolling summary of historical transaction
// behavior, one per installation. Every field is derived deterministically
// from the full transaction history at the time of the last update.
type UserBehaviorProfile struct {
	// AverageAmount is the mean absolute transaction amount over all history.
	AverageAmount float64 `json:"average_amount"`

	// CommonHours is the deduplicated set of hours (0-23) seen in history.
	CommonHours []int `json:"common_hours"`

	// PlatformUsage maps platform name to its transaction count.
	PlatformUsage map[string]int `json:"platform_usage"`

	// DailyFrequency is transactions per day over the trailing 30 days,
	// rounded to the nearest integer.
	DailyFrequency int `json:"daily_frequency"`

	// KnownLocations is the set of location labels considered familiar.
	// The update path does not maintain this set; it only ever holds
	// whatever the persisted document carried at load time.
	KnownLocations []string `json:"known_locations"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserBehaviorProfile returns a profile with zero-valued defaults, used
// when no persisted document exists or the stored one cannot be decoded.
func NewUserBehaviorProfile() *UserBehaviorProfile {
	return &UserBehaviorProfile{
		CommonHours:    []int{},
		PlatformUsage:  map[string]int{},
		KnownLocations: []string{},
	}
}

// HasHistory reports whether the profile has ever been recomputed from
// transaction history. Fresh and defaulted profiles have not.
func (p *UserBehaviorProfile) HasHistory() bool {
	return !p.UpdatedAt.IsZero()
}

// HasHourData reports whether any common transaction hours are recorded.
func (p *UserBehaviorProfile) HasHourData() bool {
	return len(p.CommonHours) > 0
}

// HasPlatformData reports whether any platform usage is recorded.
func (p *UserBehaviorProfile) HasPlatformData() bool {
	return len(p.PlatformUsage) > 0
}

// HasLocationData reports whether any known locations are recorded.
func (p *UserBehaviorProfile) HasLocationData() bool {
	return len(p.KnownLocations) > 0
}

// KnowsLocation reports whether the given label is in the known set.
func (p *UserBehaviorProfile) KnowsLocation(label string) bool {
	for _, l := range p.KnownLocations {
		if l == label {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used for read-only snapshots handed to callers.
func (p *UserBehaviorProfile) Clone() *UserBehaviorProfile {
	cp := &UserBehaviorProfile{
		AverageAmount:  p.AverageAmount,
		DailyFrequency: p.DailyFrequency,
		UpdatedAt:      p.UpdatedAt,
		CommonHours:    make([]int, len(p.CommonHours)),
		PlatformUsage:  make(map[string]int, len(p.PlatformUsage)),
		KnownLocations: make([]string, len(p.KnownLocations)),
	}
	copy(cp.CommonHours, p.CommonHours)
	copy(cp.KnownLocations, p.KnownLocations)
	for k, v := range p.PlatformUsage {
		cp.PlatformUsage[k] = v
	}
	return cp
}
