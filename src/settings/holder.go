package settings

import (
	"context"
	"sync/atomic"

	logger "github.com/sirupsen/logrus"
)

// Holder shares the current settings between loops. Reload failures keep the
// previous value; only the initial load is fatal.
type Holder struct {
	src     Source
	current atomic.Pointer[TradeSettings]
}

func NewHolder(ctx context.Context, src Source) (*Holder, error) {
	s, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}
	h := &Holder{src: src}
	h.current.Store(s)
	return h, nil
}

// Static wraps fixed settings, mostly for tests and one-shot commands.
func Static(s *TradeSettings) *Holder {
	h := &Holder{}
	h.current.Store(s)
	return h
}

func (h *Holder) Current() *TradeSettings {
	return h.current.Load()
}

func (h *Holder) Reload(ctx context.Context) {
	if h.src == nil {
		return
	}
	s, err := Load(ctx, h.src)
	if err != nil {
		logger.WithError(err).Error("Trade config reload failed, keeping previous settings")
		return
	}
	h.current.Store(s)
}
