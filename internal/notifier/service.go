package notifier

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"medbot/internal/domain"
	"medbot/internal/eventbus"
	kit "medbot/internal/transport"
	logx "medbot/pkg/logx"
	"medbot/pkg/tgui"
)

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	render  RenderFunc
	log     logx.Logger
	bus     eventbus.Publisher
}

func New(cfg Config, adapter kit.Adapter, render RenderFunc, log logx.Logger, bus eventbus.Publisher) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if render == nil {
		render = plainReminder
	}
	s := &Service{adapter: adapter, render: render, log: log, bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps the config. In-flight sends finish with the old limiter.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limiter != nil && s.cfg.RatePerSec == cfg.RatePerSec {
		s.cfg = cfg
		return
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Notify sends the reminder for e to its owner's private chat.
func (s *Service) Notify(ctx context.Context, e domain.ScheduledEvent) error {
	msg := s.render(e)
	if _, err := s.Send(ctx, e.UserID, msg); err != nil {
		return &domain.DeliveryError{UserID: e.UserID, EventID: e.ID, Err: err}
	}
	return nil
}

// Send delivers msg to chatID with rate limiting and retries. It returns the
// last error once attempts are exhausted.
func (s *Service) Send(ctx context.Context, chatID int64, msg tgui.Message) (kit.MessageRef, error) {
	if s.adapter == nil {
		return kit.MessageRef{}, errors.New("notifier: no adapter")
	}
	cfg, lim := s.snapshot()
	attempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return kit.MessageRef{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		ref, err := msg.Send(callCtx, s.adapter, kit.ChatTarget{ChatID: chatID})
		cancel()
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if errors.Is(err, kit.ErrRecipientUnavailable) || ctx.Err() != nil || attempt == attempts {
			break
		}

		s.log.Debug("send failed, retrying",
			logx.Int64("chat_id", chatID),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err),
		)
		eventbus.Emit(s.bus, eventbus.NotifyRetried, eventbus.RetryInfo{ChatID: chatID, Attempt: attempt, Err: err.Error()})

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return kit.MessageRef{}, ctx.Err()
		case <-t.C:
		}
	}
	return kit.MessageRef{}, lastErr
}

// retryDelay is base*2^(attempt-1) capped at RetryMaxDelay, with 0.7..1.3
// jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}

func plainReminder(e domain.ScheduledEvent) tgui.Message {
	return tgui.New().Line("⏰ " + e.Label()).Build()
}
