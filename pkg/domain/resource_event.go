package domain

import (
	"encoding/binary"
	"fmt"
)

// ResourceEventSize is the wire size of a ResourceEvent record.
const ResourceEventSize = 24

// ResourceEvent is the record produced by the resource accountant and carried
// by the event channel. Layout matches the kernel struct:
//
//	struct event_t { u64 cgroup_id; u64 cpu_time_ns; u64 rss_bytes; };
type ResourceEvent struct {
	CgroupID  uint64 `json:"cgroup_id"`
	CPUTimeNs uint64 `json:"cpu_time_ns"`
	RSSBytes  uint64 `json:"rss_bytes"`
}

// MarshalBinary encodes the event in kernel (little endian) layout.
func (e ResourceEvent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ResourceEventSize)
	e.Put(buf)
	return buf, nil
}

// Put encodes the event into buf, which must hold ResourceEventSize bytes.
func (e ResourceEvent) Put(buf []byte) {
	_ = buf[ResourceEventSize-1]
	binary.LittleEndian.PutUint64(buf[0:8], e.CgroupID)
	binary.LittleEndian.PutUint64(buf[8:16], e.CPUTimeNs)
	binary.LittleEndian.PutUint64(buf[16:24], e.RSSBytes)
}

// UnmarshalBinary decodes a raw ring buffer sample. Trailing bytes are ignored.
func (e *ResourceEvent) UnmarshalBinary(data []byte) error {
	if len(data) < ResourceEventSize {
		return fmt.Errorf("got %d bytes, need %d: %w", len(data), ResourceEventSize, ErrShortRecord)
	}
	e.CgroupID = binary.LittleEndian.Uint64(data[0:8])
	e.CPUTimeNs = binary.LittleEndian.Uint64(data[8:16])
	e.RSSBytes = binary.LittleEndian.Uint64(data[16:24])
	return nil
}
