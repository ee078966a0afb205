//go:build linux
// +build linux

package loader

import (
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/features"
	"golang.org/x/sys/unix"
)

func checkAvailability() *Availability {
	result := &Availability{}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		result.Details = append(result.Details, fmt.Sprintf("Failed to check kernel version: %v", err))
	} else {
		result.KernelVersion = unix.ByteSliceToString(uts.Release[:])
		result.Details = append(result.Details, fmt.Sprintf("Kernel version: %s", result.KernelVersion))
		if !isKernelVersionSufficient(result.KernelVersion) {
			result.Reason = "Kernel version too old for sleepable BPF LSM programs"
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Upgrade to Linux kernel %s or newer", minKernel()))
			return result
		}
	}

	result.HasPermissions = os.Geteuid() == 0
	if !result.HasPermissions {
		result.Reason = "Insufficient permissions for eBPF"
		result.Recommendations = append(result.Recommendations,
			"Run as root, or grant CAP_BPF, CAP_PERFMON and CAP_MAC_ADMIN")
		return result
	}

	result.HasBTF = checkBTFAvailability()
	if !result.HasBTF {
		result.Reason = "Kernel BTF not available"
		result.Recommendations = append(result.Recommendations,
			"Use a kernel built with CONFIG_DEBUG_INFO_BTF=y")
		return result
	}

	if err := features.HaveProgramType(ebpf.LSM); err != nil {
		result.Reason = "BPF LSM programs not supported"
		result.Details = append(result.Details, err.Error())
		result.Recommendations = append(result.Recommendations,
			"Use a kernel built with CONFIG_BPF_LSM=y")
		return result
	}

	result.HasBPFLSM = checkBPFLSM()
	if !result.HasBPFLSM {
		result.Reason = "bpf is not in the active LSM list"
		result.Recommendations = append(result.Recommendations,
			"Boot with lsm=...,bpf on the kernel command line")
		return result
	}

	result.Available = true
	result.Reason = "All eBPF requirements met"
	return result
}
