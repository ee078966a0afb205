package loader

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Minimum kernel for sleepable LSM programs calling bpf_d_path.
const (
	minKernelMajor = 5
	minKernelMinor = 11
)

// Availability describes whether the guard's hooks can run here.
type Availability struct {
	Available       bool
	Reason          string
	Details         []string
	Recommendations []string
	KernelVersion   string
	HasBTF          bool
	HasBPFLSM       bool
	HasPermissions  bool
}

var (
	availabilityOnce   sync.Once
	availabilityResult *Availability
)

// CheckAvailability runs the environment checks once and caches the result.
func CheckAvailability() *Availability {
	availabilityOnce.Do(func() {
		availabilityResult = checkAvailability()
	})
	return availabilityResult
}

// parseKernelVersion extracts major and minor from a uname release string
// such as "6.8.0-45-generic".
func parseKernelVersion(release string) (int, int, bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minorDigits := parts[1]
	if i := strings.IndexFunc(minorDigits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minorDigits = minorDigits[:i]
	}
	minor, err := strconv.Atoi(minorDigits)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func isKernelVersionSufficient(release string) bool {
	major, minor, ok := parseKernelVersion(release)
	if !ok {
		return false
	}
	if major != minKernelMajor {
		return major > minKernelMajor
	}
	return minor >= minKernelMinor
}

// lsmListHasBPF reports whether the active LSM list names bpf.
func lsmListHasBPF(list string) bool {
	for _, name := range strings.Split(strings.TrimSpace(list), ",") {
		if name == "bpf" {
			return true
		}
	}
	return false
}

func checkBPFLSM() bool {
	data, err := os.ReadFile("/sys/kernel/security/lsm")
	if err != nil {
		return false
	}
	return lsmListHasBPF(string(data))
}

func checkBTFAvailability() bool {
	_, err := os.Stat("/sys/kernel/btf/vmlinux")
	return err == nil
}

func minKernel() string {
	return fmt.Sprintf("%d.%d", minKernelMajor, minKernelMinor)
}
