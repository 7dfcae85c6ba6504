package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BatmanBruc/dmg-bot/internal/metrics"
	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

// Outcome is what one status check concluded about an order.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	// OutcomeStale means the local record no longer tracks this order.
	OutcomeStale Outcome = "stale"
)

type OrderChecker interface {
	CheckOrder(ctx context.Context, key types.AccountKey, orderID string) (Outcome, error)
}

const (
	DefaultInterval    = 60 * time.Second
	DefaultMaxChecks   = 1440
	DefaultMaxNotFound = 10
)

type Config struct {
	Interval    time.Duration
	MaxChecks   int
	MaxNotFound int
}

// Session polls one order. At most one session is active per account key.
type Session struct {
	Key       types.AccountKey
	OrderID   string
	StartedAt time.Time

	maxChecks int
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	state  State
	checks int
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

func (s *Session) finish(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = state
	close(s.done)
	return true
}

type Poller struct {
	checker OrderChecker
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  bool
	sessions map[string]*Session
}

func NewPoller(checker OrderChecker, cfg Config, log *zap.Logger, m *metrics.Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxChecks <= 0 {
		cfg.MaxChecks = DefaultMaxChecks
	}
	if cfg.MaxNotFound <= 0 {
		cfg.MaxNotFound = DefaultMaxNotFound
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		checker:  checker,
		cfg:      cfg,
		log:      log.Named("poller"),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		running:  true,
		sessions: make(map[string]*Session),
	}
}

// Budget is how long a session polls before it expires.
func (p *Poller) Budget() time.Duration {
	return p.cfg.Interval * time.Duration(p.cfg.MaxChecks)
}

// Start begins polling orderID for key, cancelling any session already
// active for that key.
func (p *Poller) Start(key types.AccountKey, orderID string) *Session {
	return p.start(key, orderID, time.Now(), p.cfg.MaxChecks)
}

// Resume re-arms polling for an order created at since, with the check budget
// reduced by the time already elapsed. It returns nil when nothing is left.
func (p *Poller) Resume(key types.AccountKey, orderID string, since time.Time) *Session {
	elapsed := int(time.Since(since) / p.cfg.Interval)
	remaining := p.cfg.MaxChecks - elapsed
	if remaining <= 0 {
		return nil
	}
	return p.start(key, orderID, since, remaining)
}

func (p *Poller) start(key types.AccountKey, orderID string, startedAt time.Time, maxChecks int) *Session {
	ctx, cancel := context.WithCancel(p.ctx)
	s := &Session{
		Key:       key,
		OrderID:   orderID,
		StartedAt: startedAt,
		maxChecks: maxChecks,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateActive,
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		cancel()
		s.finish(StateCancelled)
		return s
	}
	prev := p.sessions[key.String()]
	p.sessions[key.String()] = s
	p.wg.Add(1)
	p.mu.Unlock()

	if prev != nil {
		p.log.Info("superseding poll session",
			zap.String("key", key.String()),
			zap.String("previous_order_id", prev.OrderID),
			zap.String("order_id", orderID))
		prev.cancel()
	}

	p.metrics.PollStarted()
	p.log.Info("poll session started",
		zap.String("key", key.String()),
		zap.String("order_id", orderID),
		zap.Int("max_checks", maxChecks))

	go p.run(ctx, s)
	return s
}

// Cancel stops the active session for key, if any.
func (p *Poller) Cancel(key types.AccountKey) bool {
	p.mu.Lock()
	s := p.sessions[key.String()]
	p.mu.Unlock()
	if s == nil {
		return false
	}
	s.cancel()
	return true
}

func (p *Poller) Active(key types.AccountKey) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[key.String()]
	return s, ok
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.Info("stopping poller")
	p.cancel()
	p.wg.Wait()
	p.log.Info("poller stopped")
}

func (p *Poller) run(ctx context.Context, s *Session) {
	defer p.wg.Done()
	defer s.cancel()

	state := p.loop(ctx, s)
	if s.finish(state) {
		p.metrics.PollFinished(string(state))
		p.log.Info("poll session finished",
			zap.String("key", s.Key.String()),
			zap.String("order_id", s.OrderID),
			zap.String("state", string(state)),
			zap.Int("checks", s.Checks()))
	}

	p.mu.Lock()
	if p.sessions[s.Key.String()] == s {
		delete(p.sessions, s.Key.String())
	}
	p.mu.Unlock()
}

func (p *Poller) loop(ctx context.Context, s *Session) State {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	notFound := 0
	log := p.log.With(zap.String("key", s.Key.String()), zap.String("order_id", s.OrderID))

	for {
		select {
		case <-ctx.Done():
			return StateCancelled
		case <-ticker.C:
		}

		s.mu.Lock()
		s.checks++
		checks := s.checks
		s.mu.Unlock()

		outcome, err := p.checker.CheckOrder(ctx, s.Key, s.OrderID)
		switch {
		case ctx.Err() != nil:
			return StateCancelled
		case errors.Is(err, types.ErrOrderNotFound):
			notFound++
			p.metrics.PollCheck("not_found")
			log.Warn("order not found", zap.Int("consecutive", notFound))
			if notFound >= p.cfg.MaxNotFound {
				return StateExpired
			}
		case err != nil:
			notFound = 0
			p.metrics.PollCheck("error")
			log.Warn("order check failed", zap.Int("check", checks), zap.Error(err))
		default:
			notFound = 0
			p.metrics.PollCheck(string(outcome))
			switch outcome {
			case OutcomeCompleted, OutcomeAlreadyCompleted:
				return StateCompleted
			case OutcomeStale:
				return StateCancelled
			}
		}

		if checks >= s.maxChecks {
			return StateExpired
		}
	}
}
