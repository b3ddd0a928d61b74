package engine

import (
	"math"
	"testing"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

func txAt(hour int, amount float64) *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-test",
		Amount:    amount,
		Platform:  domain.PlatformMPesa,
		Type:      domain.TypeSend,
		Timestamp: time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC),
	}
}

func profileWith(mut func(*domain.UserBehaviorProfile)) *domain.UserBehaviorProfile {
	p := domain.NewUserBehaviorProfile()
	if mut != nil {
		mut(p)
	}
	return p
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAmountFactor(t *testing.T) {
	// A profile recomputed from history carries UpdatedAt; only a fresh
	// or defaulted profile means "no prior history".
	historical := func(avg float64) *domain.UserBehaviorProfile {
		return profileWith(func(p *domain.UserBehaviorProfile) {
			p.AverageAmount = avg
			p.UpdatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		})
	}

	t.Run("NoHistory", func(t *testing.T) {
		got := amountFactor(txAt(12, 850000), profileWith(nil))
		if got != 0 {
			t.Errorf("expected 0 with no history, got %.4f", got)
		}
	})

	t.Run("NearAverage", func(t *testing.T) {
		got := amountFactor(txAt(12, 110000), historical(100000))
		want := 10000.0 / 100001.0
		if !almostEqual(got, want) {
			t.Errorf("expected %.6f, got %.6f", want, got)
		}
	})

	t.Run("OverTripleDoubles", func(t *testing.T) {
		got := amountFactor(txAt(12, 400000), historical(100000))
		// deviation = 300000/100001, doubled and clamped to 1
		if got != 1 {
			t.Errorf("expected clamp at 1, got %.4f", got)
		}
	})

	t.Run("ZeroAverageWithHistory", func(t *testing.T) {
		// History of all-zero amounts: deviation is |amt|/1, not the
		// no-history short-circuit.
		if got := amountFactor(txAt(12, 2000), historical(0)); got != 1 {
			t.Errorf("expected clamp at 1 against a zero average, got %.4f", got)
		}
		if got := amountFactor(txAt(12, 0), historical(0)); got != 0 {
			t.Errorf("expected 0 for a zero amount on a zero average, got %.4f", got)
		}
	})

	t.Run("SignedAmountUsesMagnitude", func(t *testing.T) {
		pos := amountFactor(txAt(12, 110000), historical(100000))
		neg := amountFactor(txAt(12, -110000), historical(100000))
		if pos != neg {
			t.Errorf("expected sign-invariant factor, got %.4f vs %.4f", pos, neg)
		}
	})
}

func TestTimeFactor(t *testing.T) {
	t.Run("NightHours", func(t *testing.T) {
		for _, hour := range []int{23, 0, 2, 6} {
			got := timeFactor(txAt(hour, 1000), profileWith(nil))
			if got != 0.8 {
				t.Errorf("hour %d: expected 0.8, got %.2f", hour, got)
			}
		}
	})

	t.Run("NightBeatsHistory", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) { p.CommonHours = []int{2} })
		if got := timeFactor(txAt(2, 1000), p); got != 0.8 {
			t.Errorf("expected night hour to dominate history, got %.2f", got)
		}
	})

	t.Run("NoHourData", func(t *testing.T) {
		if got := timeFactor(txAt(12, 1000), profileWith(nil)); got != 0.3 {
			t.Errorf("expected 0.3 with no data, got %.2f", got)
		}
	})

	t.Run("NearCommonHour", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) { p.CommonHours = []int{10} })
		if got := timeFactor(txAt(12, 1000), p); got != 0.1 {
			t.Errorf("expected 0.1 within 2h of common hour, got %.2f", got)
		}
	})

	t.Run("FarFromCommonHours", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) { p.CommonHours = []int{9} })
		if got := timeFactor(txAt(15, 1000), p); got != 0.6 {
			t.Errorf("expected 0.6 far from common hours, got %.2f", got)
		}
	})
}

func TestLocationFactor(t *testing.T) {
	withLoc := func(loc string) *domain.Transaction {
		tx := txAt(12, 1000)
		tx.Metadata.Location = loc
		return tx
	}

	known := profileWith(func(p *domain.UserBehaviorProfile) {
		p.KnownLocations = []string{"Dar es Salaam", "Dodoma"}
	})

	t.Run("AbsentLocation", func(t *testing.T) {
		if got := locationFactor(withLoc(""), known); got != 0.5 {
			t.Errorf("expected 0.5 for absent location, got %.2f", got)
		}
	})

	t.Run("UnknownSentinel", func(t *testing.T) {
		if got := locationFactor(withLoc("unknown"), known); got != 0.5 {
			t.Errorf("expected 0.5 for unknown sentinel, got %.2f", got)
		}
	})

	t.Run("EmptyProfile", func(t *testing.T) {
		if got := locationFactor(withLoc("Mwanza"), profileWith(nil)); got != 0.3 {
			t.Errorf("expected 0.3 with empty location set, got %.2f", got)
		}
	})

	t.Run("KnownLocation", func(t *testing.T) {
		if got := locationFactor(withLoc("Dodoma"), known); got != 0.1 {
			t.Errorf("expected 0.1 for known location, got %.2f", got)
		}
	})

	t.Run("NewLocation", func(t *testing.T) {
		if got := locationFactor(withLoc("Arusha"), known); got != 0.7 {
			t.Errorf("expected 0.7 for unfamiliar location, got %.2f", got)
		}
	})
}

func TestFrequencyFactor(t *testing.T) {
	t.Run("DefaultTypical", func(t *testing.T) {
		p := profileWith(nil) // DailyFrequency 0 -> typical 5
		cases := []struct {
			count int
			want  float64
		}{
			{1, 0.2},
			{10, 0.2},
			{11, 0.6},
			{15, 0.6},
			{16, 0.9},
		}
		for _, c := range cases {
			if got := frequencyFactor(c.count, p); got != c.want {
				t.Errorf("count %d: expected %.1f, got %.1f", c.count, c.want, got)
			}
		}
	})

	t.Run("ProfileTypical", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) { p.DailyFrequency = 2 })
		if got := frequencyFactor(7, p); got != 0.9 {
			t.Errorf("expected 0.9 beyond triple typical, got %.1f", got)
		}
	})
}

func TestDeviceFactor(t *testing.T) {
	const local = "local-fp"

	t.Run("Mismatch", func(t *testing.T) {
		tx := txAt(12, 1000)
		tx.Metadata.DeviceID = "someone-else"
		if got := deviceFactor(tx, local); got != 0.8 {
			t.Errorf("expected 0.8 on mismatch, got %.1f", got)
		}
	})

	t.Run("Match", func(t *testing.T) {
		tx := txAt(12, 1000)
		tx.Metadata.DeviceID = local
		if got := deviceFactor(tx, local); got != 0.1 {
			t.Errorf("expected 0.1 on match, got %.1f", got)
		}
	})

	t.Run("AbsentIsMismatch", func(t *testing.T) {
		// No "unknown" branch here: anything that is not the local
		// fingerprint, including an empty device ID, scores 0.8.
		if got := deviceFactor(txAt(12, 1000), local); got != 0.8 {
			t.Errorf("expected 0.8 with no device ID, got %.1f", got)
		}
	})
}

func TestNetworkFactor(t *testing.T) {
	withNet := func(n string) *domain.Transaction {
		tx := txAt(12, 1000)
		tx.Metadata.NetworkType = n
		return tx
	}

	cases := []struct {
		network string
		want    float64
	}{
		{"vpn", 0.9},
		{"VPN over wifi", 0.9},
		{"Tor", 0.9},
		{"", 0.5},
		{"unknown", 0.5},
		{"mobile_data", 0.2},
		{"wifi", 0.2},
	}

	for _, c := range cases {
		if got := networkFactor(withNet(c.network)); got != c.want {
			t.Errorf("network %q: expected %.1f, got %.1f", c.network, c.want, got)
		}
	}
}

func TestBehavioralFactor(t *testing.T) {
	t.Run("NoPlatformData", func(t *testing.T) {
		if got := behavioralFactor(txAt(12, 1000), profileWith(nil)); got != 0.3 {
			t.Errorf("expected 0.3 with no data, got %.1f", got)
		}
	})

	t.Run("RarePlatform", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) {
			p.PlatformUsage = map[string]int{"Tigo Pesa": 95, "M-Pesa": 5}
		})
		if got := behavioralFactor(txAt(12, 1000), p); got != 0.7 {
			t.Errorf("expected 0.7 below 10%% share, got %.1f", got)
		}
	})

	t.Run("UsualPlatform", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) {
			p.PlatformUsage = map[string]int{"M-Pesa": 90, "Tigo Pesa": 10}
		})
		if got := behavioralFactor(txAt(12, 1000), p); got != 0.2 {
			t.Errorf("expected 0.2 for a usual platform, got %.1f", got)
		}
	})

	t.Run("UnseenPlatform", func(t *testing.T) {
		p := profileWith(func(p *domain.UserBehaviorProfile) {
			p.PlatformUsage = map[string]int{"Tigo Pesa": 10}
		})
		if got := behavioralFactor(txAt(12, 1000), p); got != 0.7 {
			t.Errorf("expected 0.7 for an unseen platform, got %.1f", got)
		}
	})
}
