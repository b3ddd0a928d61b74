package fingerprint

import "testing"

func TestDevice(t *testing.T) {
	t.Run("Stable", func(t *testing.T) {
		first := Device()
		second := Device()
		if first != second {
			t.Errorf("expected stable fingerprint, got %q then %q", first, second)
		}
	})

	t.Run("NonEmpty", func(t *testing.T) {
		fp := Device()
		if fp == "" {
			t.Fatal("expected non-empty fingerprint")
		}
		if fp != Unknown && len(fp) != 64 {
			t.Errorf("expected 64-char sha256 hex or the unknown sentinel, got %d chars", len(fp))
		}
	})
}
