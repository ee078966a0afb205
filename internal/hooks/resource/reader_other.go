//go:build !linux
// +build !linux

package resource

import (
	"context"

	"github.com/cilium/ebpf"
	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/pkg/domain"
	"go.uber.org/zap"
)

// Reader is unavailable off linux.
type Reader struct {
	*base.BaseHook
}

func NewReader(eventsMap, dropsMap *ebpf.Map, ch *base.EventChannel, cfg Config, logger *zap.Logger) (*Reader, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (r *Reader) Start(ctx context.Context) error { return domain.ErrUnsupportedPlatform }

func (r *Reader) Stop() error { return nil }

func (r *Reader) KernelDrops() (uint64, error) { return 0, domain.ErrUnsupportedPlatform }
