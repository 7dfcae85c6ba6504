package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BatmanBruc/dmg-bot/internal/metrics"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/paypal"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/internal/stripepay"
	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 1 << 20

var (
	ErrMalformedCustomID    = errors.New("malformed custom id")
	errVerificationDisabled = errors.New("webhook verification is not configured")
	errStripeDisabled       = errors.New("stripe webhooks are not configured")
)

type Finalizer interface {
	Finalize(ctx context.Context, key types.AccountKey, orderID, source string) (bool, error)
	CapturePaid(ctx context.Context, key types.AccountKey, orderID string) (scheduler.Outcome, error)
}

type PayPalVerifier interface {
	WebhookConfigured() bool
	VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error
}

type StripeParser interface {
	WebhookConfigured() bool
	ParseWebhook(payload []byte, signature string) (*stripepay.SessionEvent, error)
}

type Config struct {
	// SkipPayPalVerify accepts unsigned PayPal deliveries when no webhook id
	// is configured. Local development only.
	SkipPayPalVerify bool
	RatePerSec       float64
	MaxBodyBytes     int64
}

type Server struct {
	finalizer Finalizer
	paypal    PayPalVerifier
	stripe    StripeParser
	cfg       Config
	gatherer  prometheus.Gatherer
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

type Options struct {
	Finalizer Finalizer
	PayPal    PayPalVerifier
	Stripe    StripeParser
	Config    Config
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

func NewServer(o Options) *Server {
	if o.Config.MaxBodyBytes <= 0 {
		o.Config.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		finalizer: o.Finalizer,
		paypal:    o.PayPal,
		stripe:    o.Stripe,
		cfg:       o.Config,
		gatherer:  o.Gatherer,
		metrics:   o.Metrics,
		log:       o.Log.Named("webhook"),
		now:       time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.RatePerSec > 0 {
				burst := int(s.cfg.RatePerSec)
				if burst < 1 {
					burst = 1
				}
				r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), burst*2)))
			}
			r.Use(middleware.RequestSize(s.cfg.MaxBodyBytes))

			r.Post("/provider", s.handlePayPal)
			r.Post("/stripe", s.handleStripe)
		})
	})

	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

// ParseCustomID decodes the "{userId}-{guildId}" custom field attached to
// orders. Both parts must be Discord snowflakes.
func ParseCustomID(customID string) (types.AccountKey, error) {
	userPart, guildPart, ok := strings.Cut(strings.TrimSpace(customID), "-")
	if !ok {
		return types.AccountKey{}, ErrMalformedCustomID
	}
	userID, err := snowflake.ParseString(userPart)
	if err != nil || userID <= 0 {
		return types.AccountKey{}, fmt.Errorf("%w: user id %q", ErrMalformedCustomID, userPart)
	}
	guildID, err := snowflake.ParseString(guildPart)
	if err != nil || guildID <= 0 {
		return types.AccountKey{}, fmt.Errorf("%w: guild id %q", ErrMalformedCustomID, guildPart)
	}
	return types.NewAccountKey(userID.String(), guildID.String()), nil
}

func (s *Server) handlePayPal(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	log := s.log.With(zap.String("request_id", reqID), zap.String("provider", paypal.ProviderName))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.verifyPayPal(r.Context(), r.Header, body); err != nil {
		s.metrics.WebhookEvent(paypal.ProviderName, "unknown", "rejected")
		log.Warn("webhook verification failed", zap.Error(err))
		if errors.Is(err, types.ErrProviderUnavailable) {
			respondError(w, http.StatusServiceUnavailable, errors.New("verification unavailable"))
			return
		}
		respondError(w, http.StatusUnauthorized, err)
		return
	}

	event, err := paypal.ParseEvent(body)
	if err != nil {
		s.metrics.WebhookEvent(paypal.ProviderName, "unknown", "malformed")
		log.Warn("malformed webhook payload", zap.Error(err))
		respondError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.EventType))

	switch event.EventType {
	case paypal.EventOrderCompleted, paypal.EventCaptureCompleted, paypal.EventOrderApproved:
	default:
		s.metrics.WebhookEvent(paypal.ProviderName, event.EventType, "ignored")
		log.Info("ignoring webhook event")
		respondStatus(w, "ignored")
		return
	}

	orderID, customID, err := event.OrderRef()
	if err != nil {
		s.metrics.WebhookEvent(paypal.ProviderName, event.EventType, "malformed")
		log.Warn("webhook event has no order reference", zap.Error(err))
		respondError(w, http.StatusBadRequest, err)
		return
	}
	key, err := ParseCustomID(customID)
	if err != nil {
		s.metrics.WebhookEvent(paypal.ProviderName, event.EventType, "malformed")
		log.Warn("webhook custom id unparseable", zap.String("custom_id", customID), zap.Error(err))
		respondError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With(zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID), zap.String("order_id", orderID))

	var status string
	if event.EventType == paypal.EventOrderApproved {
		var outcome scheduler.Outcome
		outcome, err = s.finalizer.CapturePaid(r.Context(), key, orderID)
		status = string(outcome)
	} else {
		var already bool
		already, err = s.finalizer.Finalize(r.Context(), key, orderID, payments.SourceWebhook)
		status = string(scheduler.OutcomeCompleted)
		if already {
			status = string(scheduler.OutcomeAlreadyCompleted)
		}
	}
	s.finish(w, log, paypal.ProviderName, event.EventType, status, err)
}

func (s *Server) verifyPayPal(ctx context.Context, headers http.Header, body []byte) error {
	if s.paypal != nil && s.paypal.WebhookConfigured() {
		return s.paypal.VerifyWebhook(ctx, headers, body)
	}
	if s.cfg.SkipPayPalVerify {
		s.log.Warn("accepting unverified paypal webhook")
		return nil
	}
	return errVerificationDisabled
}

func (s *Server) handleStripe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	log := s.log.With(zap.String("request_id", reqID), zap.String("provider", stripepay.ProviderName))

	if s.stripe == nil || !s.stripe.WebhookConfigured() {
		respondError(w, http.StatusServiceUnavailable, errStripeDisabled)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	event, err := s.stripe.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.metrics.WebhookEvent(stripepay.ProviderName, "unknown", "rejected")
		log.Warn("stripe webhook rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With(zap.String("event_type", event.Type))

	switch event.Type {
	case stripepay.EventCheckoutCompleted, stripepay.EventAsyncPaymentSucceded:
	default:
		s.metrics.WebhookEvent(stripepay.ProviderName, event.Type, "ignored")
		respondStatus(w, "ignored")
		return
	}
	if !event.Paid {
		s.metrics.WebhookEvent(stripepay.ProviderName, event.Type, "pending")
		log.Info("checkout completed without payment yet", zap.String("session_id", event.SessionID))
		respondStatus(w, string(scheduler.OutcomePending))
		return
	}

	key, err := ParseCustomID(event.CustomID)
	if err != nil {
		s.metrics.WebhookEvent(stripepay.ProviderName, event.Type, "malformed")
		log.Warn("stripe custom id unparseable", zap.String("custom_id", event.CustomID), zap.Error(err))
		respondError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With(zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID), zap.String("order_id", event.SessionID))

	already, err := s.finalizer.Finalize(r.Context(), key, event.SessionID, payments.SourceWebhook)
	status := string(scheduler.OutcomeCompleted)
	if already {
		status = string(scheduler.OutcomeAlreadyCompleted)
	}
	s.finish(w, log, stripepay.ProviderName, event.Type, status, err)
}

// finish maps the finalization result to a response. Failures return 500 so
// the provider redelivers; a revoked payment is acknowledged and dropped.
func (s *Server) finish(w http.ResponseWriter, log *zap.Logger, provider, eventType, status string, err error) {
	switch {
	case errors.Is(err, payments.ErrRevoked):
		s.metrics.WebhookEvent(provider, eventType, "revoked")
		respondStatus(w, "ignored")
	case err != nil:
		s.metrics.WebhookEvent(provider, eventType, "error")
		log.Error("webhook finalization failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, errors.New("finalization failed"))
	default:
		s.metrics.WebhookEvent(provider, eventType, status)
		log.Info("webhook processed", zap.String("status", status))
		respondStatus(w, status)
	}
}
