// Package fingerprint derives a stable identifier for the device the
// engine runs on. The identifier feeds the device factor: transactions
// carrying a different device ID than the local fingerprint score high.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
)

// Unknown is returned when no host information could be gathered. The
// device factor treats it as "no expectation" rather than a mismatch.
const Unknown = "unknown_device"

var (
	once   sync.Once
	cached string
)

// Device returns the fingerprint of the local host, computed once per
// process. The fingerprint is a SHA-256 over stable host attributes, so
// restarts on the same machine produce the same value.
func Device() string {
	once.Do(func() {
		cached = compute()
	})
	return cached
}

func compute() string {
	info, err := host.Info()
	if err != nil || info == nil {
		return Unknown
	}

	seed := fmt.Sprintf("%s|%s|%s|%s|%s",
		info.HostID,
		info.Hostname,
		info.OS,
		info.Platform,
		info.KernelArch,
	)
	if seed == "||||" {
		return Unknown
	}

	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
