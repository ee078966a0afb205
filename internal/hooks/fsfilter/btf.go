package fsfilter

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf/btf"
)

// ErrMemberNotFound is returned when a struct lacks the requested member.
var ErrMemberNotFound = errors.New("struct member not found")

// FilePathOffset returns the byte offset of f_path within the kernel's
// struct file. The layout changes between kernel releases.
func FilePathOffset(spec *btf.Spec) (int32, error) {
	var file *btf.Struct
	if err := spec.TypeByName("file", &file); err != nil {
		return 0, fmt.Errorf("failed to find struct file: %w", err)
	}
	return StructMemberOffset(file, "f_path")
}

// StructMemberOffset finds a member of s by name, descending into anonymous
// structs and unions.
func StructMemberOffset(s *btf.Struct, name string) (int32, error) {
	if off, ok := memberOffset(s.Members, name); ok {
		return off, nil
	}
	return 0, fmt.Errorf("%s.%s: %w", s.Name, name, ErrMemberNotFound)
}

func memberOffset(members []btf.Member, name string) (int32, bool) {
	for _, m := range members {
		if m.Name == name {
			return int32(m.Offset.Bytes()), true
		}
		if m.Name != "" {
			continue
		}

		var nested []btf.Member
		switch t := btf.UnderlyingType(m.Type).(type) {
		case *btf.Struct:
			nested = t.Members
		case *btf.Union:
			nested = t.Members
		default:
			continue
		}
		if off, ok := memberOffset(nested, name); ok {
			return int32(m.Offset.Bytes()) + off, true
		}
	}
	return 0, false
}
