package poller

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
)

const defaultInterval = 5 * time.Second

// FetchFunc loads the current snapshot for the polled phone.
type FetchFunc func(ctx context.Context) ([]domain.ConversationRow, error)

// ApplyFunc hands the fetched rows to the view; the view's own signature
// gating decides whether anything changes.
type ApplyFunc func(rows []domain.ConversationRow)

// Poller refreshes a view on a fixed interval when the realtime hub is
// unavailable. Ticks are submitted to a shared worker pool so many degraded
// views never pile up goroutines; a tick that finds the previous fetch still
// running is skipped.
type Poller struct {
	phone    string
	interval time.Duration
	pool     *ants.Pool
	fetch    FetchFunc
	apply    ApplyFunc

	cancel  context.CancelFunc
	busy    chan struct{}
	stopped chan struct{}
}

func New(phone string, interval time.Duration, pool *ants.Pool, fetch FetchFunc, apply ApplyFunc) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		phone:    phone,
		interval: interval,
		pool:     pool,
		fetch:    fetch,
		apply:    apply,
		busy:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Start begins polling until Stop is called or ctx ends. The first poll fires
// immediately so a degraded view is never blank for a full interval.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.stopped)
		p.tick(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
	zap.L().Info("poller: started", zap.String("phone", p.phone), zap.Duration("interval", p.interval))
}

func (p *Poller) tick(ctx context.Context) {
	select {
	case p.busy <- struct{}{}:
	default:
		zap.L().Debug("poller: previous fetch still running, skipping tick", zap.String("phone", p.phone))
		return
	}
	err := p.pool.Submit(func() {
		defer func() { <-p.busy }()
		fetchCtx, cancel := context.WithTimeout(ctx, p.interval*2)
		defer cancel()
		rows, err := p.fetch(fetchCtx)
		if err != nil {
			zap.L().Warn("poller: fetch failed", zap.String("phone", p.phone), zap.Error(err))
			return
		}
		p.apply(rows)
	})
	if err != nil {
		<-p.busy
		zap.L().Warn("poller: pool rejected tick", zap.Error(err))
	}
}

// Stop cancels the loop and waits for it to exit. A fetch already in flight
// finishes on its own; its apply goes through the same gated path and is
// harmless.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.stopped
	zap.L().Info("poller: stopped", zap.String("phone", p.phone))
}
