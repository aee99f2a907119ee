package decimals

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Source is one way of learning a mint's decimals.
type Source interface {
	GetDecimals(ctx context.Context, mint string) (int32, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, mint string) (int32, error)

func (f SourceFunc) GetDecimals(ctx context.Context, mint string) (int32, error) {
	return f(ctx, mint)
}

// Resolver tries each source in order and caches the first answer for the
// process lifetime. Fallbacks are not cached.
type Resolver struct {
	log      *logrus.Entry
	sources  []Source
	fallback int32
	cache    sync.Map
}

func NewResolver(log *logrus.Entry, fallback int32, sources ...Source) *Resolver {
	return &Resolver{
		log:      log.WithField("component", "decimals"),
		sources:  sources,
		fallback: fallback,
	}
}

// Resolve never fails: when no source answers it returns the fallback and
// reports approximated=true.
func (r *Resolver) Resolve(ctx context.Context, mint string) (decimals int32, approximated bool) {
	if v, ok := r.cache.Load(mint); ok {
		return v.(int32), false
	}

	for i, src := range r.sources {
		d, err := src.GetDecimals(ctx, mint)
		if err != nil {
			r.log.WithFields(logrus.Fields{"mint": mint, "source": i}).WithError(err).Debug("Decimals source failed")
			continue
		}
		if d < 0 || d > 18 {
			r.log.WithFields(logrus.Fields{"mint": mint, "source": i, "decimals": d}).Warn("Decimals source returned out of range value")
			continue
		}
		r.cache.Store(mint, d)
		return d, false
	}

	r.log.WithFields(logrus.Fields{"mint": mint, "fallback": r.fallback}).Warn("Could not resolve token decimals, using fallback")
	return r.fallback, true
}
