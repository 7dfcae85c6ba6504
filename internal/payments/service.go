package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/BatmanBruc/dmg-bot/internal/keylock"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/metrics"
	"github.com/BatmanBruc/dmg-bot/internal/notify"
	"github.com/BatmanBruc/dmg-bot/internal/pricing"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

var (
	ErrInvalidKey      = errors.New("invalid account key")
	ErrAlreadyEntitled = errors.New("account already has a completed payment")
	ErrNoPendingOrder  = errors.New("no pending order")
	ErrNotEntitled     = errors.New("account has no completed payment")
	ErrRevoked         = errors.New("payment was revoked")
)

const (
	SourcePoller   = "poller"
	SourceWebhook  = "webhook"
	SourceCheckNow = "check_now"
	SourceAdmin    = "admin"

	referencePrefix    = "DMG"
	referenceRandomLen = 6
	maxReferenceLen    = 25
	referenceAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type UsageResetter interface {
	Reset(ctx context.Context, key types.AccountKey) error
}

type RoleActuator interface {
	Grant(ctx context.Context, key types.AccountKey) bool
	Revoke(ctx context.Context, key types.AccountKey) bool
	Notify(ctx context.Context, userID, content string) bool
}

type Poller interface {
	Start(key types.AccountKey, orderID string) *scheduler.Session
	Resume(key types.AccountKey, orderID string, since time.Time) *scheduler.Session
	Cancel(key types.AccountKey) bool
}

type Deps struct {
	Provider types.PaymentProvider
	Payments types.PaymentStore
	Usage    UsageResetter
	Roles    RoleActuator
	Alerts   notify.Alerter
	Plan     pricing.Plan
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

type OrderResult struct {
	OrderID     string
	ApprovalURL string
	Reference   string
}

type Service struct {
	provider types.PaymentProvider
	payments types.PaymentStore
	usage    UsageResetter
	roles    RoleActuator
	alerts   notify.Alerter
	plan     pricing.Plan
	metrics  *metrics.Metrics
	log      *zap.Logger
	poller   Poller

	locks *keylock.Map
	now   func() time.Time
}

var _ scheduler.OrderChecker = (*Service)(nil)

func NewService(d Deps) *Service {
	alerts := d.Alerts
	if alerts == nil {
		alerts = notify.Nop{}
	}
	return &Service{
		provider: d.Provider,
		payments: d.Payments,
		usage:    d.Usage,
		roles:    d.Roles,
		alerts:   alerts,
		plan:     d.Plan,
		metrics:  d.Metrics,
		log:      d.Log.Named("payments"),
		locks:    &keylock.Map{},
		now:      time.Now,
	}
}

// AttachPoller wires the poller after construction; the poller needs the
// service as its OrderChecker.
func (s *Service) AttachPoller(p Poller) {
	s.poller = p
}

func (s *Service) Plan() pricing.Plan {
	return s.plan
}

func (s *Service) providerName() string {
	if s.provider == nil {
		return "none"
	}
	return s.provider.Name()
}

// CreateOrder opens a provider order for key and starts polling it.
func (s *Service) CreateOrder(ctx context.Context, key types.AccountKey, displayName string) (*OrderResult, error) {
	if !key.Valid() {
		return nil, ErrInvalidKey
	}
	log := s.log.With(zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID))

	existing, err := s.payments.GetPayment(ctx, key)
	if err != nil {
		log.Warn("read payment before order failed", zap.Error(err))
	} else if existing.IsCompleted() {
		s.metrics.OrderCreated(s.providerName(), "already_entitled")
		return nil, ErrAlreadyEntitled
	}

	if s.provider == nil {
		s.metrics.OrderCreated(s.providerName(), "not_configured")
		return nil, types.ErrProviderNotConfigured
	}

	reference, err := NewReference(key)
	if err != nil {
		return nil, err
	}

	order, err := s.provider.CreateOrder(ctx, types.OrderRequest{
		Key:         key,
		Reference:   reference,
		CustomID:    key.CustomID(),
		Amount:      s.plan.Amount,
		Currency:    s.plan.Currency,
		Description: "Premium access",
		DisplayName: displayName,
	})
	if err != nil {
		s.metrics.OrderCreated(s.providerName(), "error")
		log.Error("create provider order failed", zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("create order: %w", err)
	}

	now := s.now().UTC()
	rec := &types.PaymentRecord{
		UserID:    key.UserID,
		GuildID:   key.GuildID,
		Status:    types.PaymentPending,
		Amount:    s.plan.Amount,
		Currency:  s.plan.Currency,
		Reference: reference,
		OrderID:   order.ID,
		Provider:  s.provider.Name(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := s.locks.Lock(key.String())
	current, err := s.payments.GetPayment(ctx, key)
	if err == nil && current.IsCompleted() {
		unlock()
		s.metrics.OrderCreated(s.providerName(), "already_entitled")
		return nil, ErrAlreadyEntitled
	}
	err = s.payments.PutPayment(ctx, rec)
	unlock()
	if err != nil {
		s.metrics.OrderCreated(s.providerName(), "store_error")
		log.Error("persist pending payment failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("persist pending payment: %w", err)
	}

	if s.poller != nil {
		s.poller.Start(key, order.ID)
	}

	s.metrics.OrderCreated(s.providerName(), "created")
	log.Info("order created", zap.String("order_id", order.ID), zap.String("reference", reference))

	return &OrderResult{
		OrderID:     order.ID,
		ApprovalURL: order.ApprovalURL,
		Reference:   reference,
	}, nil
}

// Finalize marks the payment for key completed and applies the side effects:
// demo reset, role grant, a direct message and an operator alert. It is a
// no-op returning alreadyCompleted=true when the record is already completed.
func (s *Service) Finalize(ctx context.Context, key types.AccountKey, orderID, source string) (alreadyCompleted bool, err error) {
	return s.finalize(ctx, key, orderID, source, false)
}

func (s *Service) finalize(ctx context.Context, key types.AccountKey, orderID, source string, manual bool) (bool, error) {
	if !key.Valid() {
		return false, ErrInvalidKey
	}
	log := s.log.With(
		zap.String("user_id", key.UserID),
		zap.String("guild_id", key.GuildID),
		zap.String("order_id", orderID),
		zap.String("source", source))

	unlock := s.locks.Lock(key.String())
	rec, err := s.payments.GetPayment(ctx, key)
	if err != nil {
		unlock()
		s.metrics.Finalized(source, "error")
		return false, fmt.Errorf("read payment: %w", err)
	}
	if rec.IsCompleted() {
		unlock()
		s.metrics.Finalized(source, "already_completed")
		log.Info("payment already completed")
		return true, nil
	}
	if rec != nil && rec.Status == types.PaymentRevoked && !manual && (orderID == "" || rec.OrderID == orderID) {
		unlock()
		s.metrics.Finalized(source, "revoked")
		log.Warn("ignoring completion for revoked payment")
		return false, ErrRevoked
	}

	now := s.now().UTC()
	if rec == nil {
		rec = &types.PaymentRecord{
			UserID:    key.UserID,
			GuildID:   key.GuildID,
			Amount:    s.plan.Amount,
			Currency:  s.plan.Currency,
			Provider:  s.providerName(),
			CreatedAt: now,
		}
		if manual {
			rec.Provider = "manual"
		}
	}
	switch {
	case rec.OrderID == "":
		rec.OrderID = orderID
	case orderID != "" && rec.OrderID != orderID:
		log.Warn("paid order differs from tracked order", zap.String("tracked_order_id", rec.OrderID))
	}
	if rec.Reference == "" {
		if ref, err := NewReference(key); err == nil {
			rec.Reference = ref
		}
	}
	rec.Status = types.PaymentCompleted
	rec.UpdatedAt = now

	err = s.payments.PutPayment(ctx, rec)
	unlock()
	if err != nil {
		s.metrics.Finalized(source, "error")
		return false, fmt.Errorf("persist completed payment: %w", err)
	}
	log.Info("payment completed")

	if s.usage != nil {
		if err := s.usage.Reset(ctx, key); err != nil {
			log.Error("reset demo usage failed", zap.Error(err))
		}
	}
	if s.roles != nil {
		if !s.roles.Grant(ctx, key) {
			log.Error("premium role grant failed; payment stays completed")
		}
		s.roles.Notify(ctx, key.UserID, messages.PaymentConfirmedDM(rec.Reference))
	}
	s.alerts.PaymentCompleted(ctx, rec, source)
	s.metrics.Finalized(source, "completed")

	return false, nil
}

// CheckOrder is one poll tick: it consults the local record, then the
// provider, capturing approved orders and finalizing paid ones.
func (s *Service) CheckOrder(ctx context.Context, key types.AccountKey, orderID string) (scheduler.Outcome, error) {
	return s.checkOrder(ctx, key, orderID, SourcePoller)
}

func (s *Service) checkOrder(ctx context.Context, key types.AccountKey, orderID, source string) (scheduler.Outcome, error) {
	rec, err := s.payments.GetPayment(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read payment: %w", err)
	}
	switch {
	case rec.IsCompleted():
		return scheduler.OutcomeAlreadyCompleted, nil
	case rec == nil, rec.Status == types.PaymentRevoked, rec.OrderID != orderID:
		return scheduler.OutcomeStale, nil
	}
	if s.provider == nil {
		return "", types.ErrProviderNotConfigured
	}

	order, err := s.provider.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	switch order.Status {
	case types.OrderApproved:
		order, err = s.provider.CaptureOrder(ctx, orderID)
		if err != nil {
			return "", err
		}
		if order.Status != types.OrderCompleted {
			return scheduler.OutcomePending, nil
		}
	case types.OrderCompleted:
	case types.OrderVoided:
		s.log.Info("order voided by provider", zap.String("key", key.String()), zap.String("order_id", orderID))
		return scheduler.OutcomeStale, nil
	default:
		return scheduler.OutcomePending, nil
	}

	already, err := s.Finalize(ctx, key, orderID, source)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			return scheduler.OutcomeStale, nil
		}
		return "", err
	}
	if already {
		return scheduler.OutcomeAlreadyCompleted, nil
	}
	return scheduler.OutcomeCompleted, nil
}

// CapturePaid is used by the webhook for approved orders: capture, then
// finalize when the capture completed.
func (s *Service) CapturePaid(ctx context.Context, key types.AccountKey, orderID string) (scheduler.Outcome, error) {
	if s.provider == nil {
		return "", types.ErrProviderNotConfigured
	}
	order, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != types.OrderCompleted {
		return scheduler.OutcomePending, nil
	}
	already, err := s.Finalize(ctx, key, orderID, SourceWebhook)
	if err != nil {
		return "", err
	}
	if already {
		return scheduler.OutcomeAlreadyCompleted, nil
	}
	return scheduler.OutcomeCompleted, nil
}

// CheckNow performs an on-demand status check of the pending order for key.
func (s *Service) CheckNow(ctx context.Context, key types.AccountKey) (scheduler.Outcome, error) {
	rec, err := s.payments.GetPayment(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read payment: %w", err)
	}
	switch {
	case rec.IsCompleted():
		return scheduler.OutcomeAlreadyCompleted, nil
	case rec == nil, rec.Status != types.PaymentPending, rec.OrderID == "":
		return "", ErrNoPendingOrder
	}

	outcome, err := s.checkOrder(ctx, key, rec.OrderID, SourceCheckNow)
	if err != nil {
		return "", err
	}
	if outcome != scheduler.OutcomePending && s.poller != nil {
		s.poller.Cancel(key)
	}
	return outcome, nil
}

// Revoke withdraws a completed payment: the record becomes revoked, polling
// stops and the premium role is removed.
func (s *Service) Revoke(ctx context.Context, key types.AccountKey, actorID string) error {
	if !key.Valid() {
		return ErrInvalidKey
	}
	unlock := s.locks.Lock(key.String())
	rec, err := s.payments.GetPayment(ctx, key)
	if err != nil {
		unlock()
		return fmt.Errorf("read payment: %w", err)
	}
	if !rec.IsCompleted() {
		unlock()
		return ErrNotEntitled
	}
	rec.Status = types.PaymentRevoked
	rec.UpdatedAt = s.now().UTC()
	err = s.payments.PutPayment(ctx, rec)
	unlock()
	if err != nil {
		return fmt.Errorf("persist revoked payment: %w", err)
	}

	if s.poller != nil {
		s.poller.Cancel(key)
	}
	if s.roles != nil && !s.roles.Revoke(ctx, key) {
		s.log.Error("premium role removal failed", zap.String("key", key.String()))
	}
	s.alerts.PaymentRevoked(ctx, key, actorID)
	s.log.Info("payment revoked", zap.String("key", key.String()), zap.String("actor_id", actorID))
	return nil
}

// Grant records a manual completed payment for key, as an administrator
// would for an off-platform purchase.
func (s *Service) Grant(ctx context.Context, key types.AccountKey, actorID string) (alreadyCompleted bool, err error) {
	s.log.Info("manual grant", zap.String("key", key.String()), zap.String("actor_id", actorID))
	already, err := s.finalize(ctx, key, "", SourceAdmin, true)
	if err == nil && s.poller != nil {
		s.poller.Cancel(key)
	}
	return already, err
}

// ResumePending re-arms polling for pending orders that still have poll
// budget left, so orders survive a restart.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	if s.poller == nil || s.provider == nil {
		return 0, nil
	}
	recs, err := s.payments.ListPayments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list payments: %w", err)
	}
	resumed := 0
	for _, rec := range recs {
		if rec.Status != types.PaymentPending || rec.OrderID == "" {
			continue
		}
		if rec.Provider != "" && rec.Provider != s.provider.Name() {
			continue
		}
		if s.poller.Resume(rec.Key(), rec.OrderID, rec.CreatedAt) != nil {
			resumed++
		}
	}
	if resumed > 0 {
		s.log.Info("resumed pending orders", zap.Int("count", resumed))
	}
	return resumed, nil
}

// NewReference builds a provider reference such as DMG-664-120-AB12CD.
func NewReference(key types.AccountKey) (string, error) {
	suffix := make([]byte, referenceRandomLen)
	alphabetLen := big.NewInt(int64(len(referenceAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("reference: %w", err)
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	ref := fmt.Sprintf("%s-%s-%s-%s", referencePrefix, lastN(key.GuildID, 3), lastN(key.UserID, 3), suffix)
	if len(ref) > maxReferenceLen {
		ref = ref[:maxReferenceLen]
	}
	return ref, nil
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
