package power

import "context"

// Source delivers OS power/lock events.
//
// Start begins delivery; events arrive on Events() until Stop is called or
// the Start context is canceled. Start is idempotent. Implementations must
// never block on Events(): if the consumer is slow, drop rather than stall
// the OS notification loop.
type Source interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan Event
}

// ChanSource is a Source fed by hand. Used in tests and as a bridge for
// platforms without a native implementation.
type ChanSource struct {
	ch chan Event
}

func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanSource{ch: make(chan Event, buffer)}
}

func (s *ChanSource) Start(ctx context.Context) error { return nil }
func (s *ChanSource) Stop()                           {}
func (s *ChanSource) Events() <-chan Event            { return s.ch }

// Emit injects an event, dropping if the buffer is full.
func (s *ChanSource) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}
