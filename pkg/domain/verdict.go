package domain

import "golang.org/x/sys/unix"

// DenyReason explains a Deny verdict.
type DenyReason uint8

const (
	ReasonNone DenyReason = iota
	// ReasonPolicyMiss means every populated slot was scanned without a match.
	ReasonPolicyMiss
	// ReasonEndOfList means the scan stopped at an empty slot without a match.
	ReasonEndOfList
	// ReasonResolveFailed means the path or identifier could not be resolved.
	ReasonResolveFailed
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonPolicyMiss:
		return "policy_miss"
	case ReasonEndOfList:
		return "end_of_list"
	case ReasonResolveFailed:
		return "resolve_failed"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a single hook invocation. It is never persisted.
type Verdict struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns an allowing verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Deny returns a denying verdict with the given reason.
func Deny(reason DenyReason) Verdict {
	return Verdict{Reason: reason}
}

// Errno is the value returned to the kernel: 0 to allow, -EACCES to deny.
func (v Verdict) Errno() int32 {
	if v.Allowed {
		return 0
	}
	return -int32(unix.EACCES)
}

func (v Verdict) String() string {
	if v.Allowed {
		return "allow"
	}
	return "deny(" + v.Reason.String() + ")"
}
