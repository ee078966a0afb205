//go:build !linux
// +build !linux

package loader

import (
	"context"

	"github.com/pyisolate/guard/internal/hooks/base"
	"github.com/pyisolate/guard/internal/hooks/resource"
	"github.com/pyisolate/guard/pkg/domain"
)

type state struct{}

func (l *Loader) Load(ctx context.Context) error { return domain.ErrUnsupportedPlatform }

func (l *Loader) Attach() error { return domain.ErrNotLoaded }

func (l *Loader) NewEventReader(ch *base.EventChannel) (*resource.Reader, error) {
	return nil, domain.ErrNotLoaded
}

func (l *Loader) Close() error { return nil }
