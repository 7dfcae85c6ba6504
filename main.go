package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/dmg-bot/internal/config"
	"github.com/BatmanBruc/dmg-bot/internal/demo"
	"github.com/BatmanBruc/dmg-bot/internal/entitlement"
	"github.com/BatmanBruc/dmg-bot/internal/features"
	"github.com/BatmanBruc/dmg-bot/internal/gate"
	"github.com/BatmanBruc/dmg-bot/internal/handlers"
	"github.com/BatmanBruc/dmg-bot/internal/logger"
	"github.com/BatmanBruc/dmg-bot/internal/metrics"
	"github.com/BatmanBruc/dmg-bot/internal/middleware"
	"github.com/BatmanBruc/dmg-bot/internal/notify"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/paypal"
	"github.com/BatmanBruc/dmg-bot/internal/pricing"
	"github.com/BatmanBruc/dmg-bot/internal/roles"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/internal/stripepay"
	"github.com/BatmanBruc/dmg-bot/internal/webhook"
	"github.com/BatmanBruc/dmg-bot/store"
	"github.com/BatmanBruc/dmg-bot/types"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	kv, err := store.Open(ctx, store.Options{
		Backend:       cfg.StoreBackend,
		DataDir:       cfg.DataDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   "dmg_bot",
		PostgresDSN:   cfg.PostgresDSN,
	}, log)
	if err != nil {
		log.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer kv.Close()
	records := store.NewRecords(kv)

	meter := demo.NewMeter(records, cfg.DemoQuota, log)
	resolver := entitlement.NewResolver(records, cfg.PremiumRoleID, cfg.SponsorRoleID, log)
	usageGate := gate.New(resolver, meter, m)

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal("failed to create discord session", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	actuator := roles.NewActuator(roles.NewDiscordMembership(session), cfg.PremiumRoleID, log)

	alerts, err := notify.NewTelegram(cfg.TelegramAlertToken, cfg.TelegramAlertChatID, log)
	if err != nil {
		log.Warn("telegram alerts disabled", zap.Error(err))
		alerts = notify.Nop{}
	}

	provider, paypalVerifier, stripeParser := buildProvider(cfg, log)

	svc := payments.NewService(payments.Deps{
		Provider: provider,
		Payments: records,
		Usage:    meter,
		Roles:    actuator,
		Alerts:   alerts,
		Plan:     pricing.NewPlan(cfg.PaymentAmount, cfg.PaymentCurrency),
		Metrics:  m,
		Log:      log,
	})
	poller := scheduler.NewPoller(svc, scheduler.Config{
		Interval:    cfg.PollInterval,
		MaxChecks:   cfg.PollMaxChecks,
		MaxNotFound: cfg.PollMaxNotFound,
	}, log, m)
	svc.AttachPoller(poller)
	defer poller.Stop()

	if n, err := svc.ResumePending(ctx); err != nil {
		log.Error("failed to resume pending orders", zap.Error(err))
	} else if n > 0 {
		log.Info("resumed polling for pending orders", zap.Int("count", n))
	}

	hooks := webhook.NewServer(webhook.Options{
		Finalizer: svc,
		PayPal:    paypalVerifier,
		Stripe:    stripeParser,
		Config: webhook.Config{
			SkipPayPalVerify: cfg.PayPalSkipVerify,
			RatePerSec:       cfg.WebhookRatePerSec,
		},
		Gatherer: prometheus.DefaultGatherer,
		Metrics:  m,
		Log:      log,
	})
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           hooks.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("webhook server listening", zap.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return httpServer.Shutdown(shutdownCtx)
	})

	h := handlers.NewHandlers(handlers.Options{
		Interactions: session,
		Gate:         usageGate,
		Meter:        meter,
		Entitlements: resolver,
		Payments:     svc,
		Members:      actuator,
		Features: features.NewClient(features.Config{
			APIKey: cfg.FeatureAPIKey,
			URLs: map[features.Kind]string{
				features.Chat:    cfg.FeatureChatURL,
				features.Speak:   cfg.FeatureSpeakURL,
				features.Imagine: cfg.FeatureImagineURL,
				features.Lipsync: cfg.FeatureLipsyncURL,
			},
			Timeout: cfg.FeatureTimeout,
		}),
		IsAdmin: cfg.IsAdmin,
		Log:     log,
	})

	mw := middleware.NewInteractionAnalyzer(log)
	handlerChain := mw.RecoverMiddleware(
		mw.IdentifyMiddleware(
			mw.AnalyzeInteractionMiddleware(
				mw.LogMiddleware(
					h.MainHandler,
				),
			),
		),
	)
	session.AddHandler(middleware.Adapt(ctx, cfg.FeatureTimeout+30*time.Second, handlerChain))

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		appID := r.User.ID
		if r.Application != nil && r.Application.ID != "" {
			appID = r.Application.ID
		}
		cmds, err := handlers.RegisterCommands(s, appID, cfg.DiscordGuildID)
		if err != nil {
			log.Error("failed to register commands", zap.Error(err))
			return
		}
		log.Info("bot ready", zap.String("user", r.User.Username), zap.Int("commands", len(cmds)))
	})

	if err := session.Open(); err != nil {
		log.Fatal("failed to open discord session", zap.Error(err))
	}
	defer session.Close()

	log.Info("bot started, press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		log.Error("webhook server stopped", zap.Error(err))
	}
	log.Info("shutting down")
}

// buildProvider selects the payment provider. Missing credentials leave the
// provider nil so payment commands answer "unavailable" instead of failing.
func buildProvider(cfg config.Config, log *zap.Logger) (types.PaymentProvider, webhook.PayPalVerifier, webhook.StripeParser) {
	switch cfg.PaymentProvider {
	case stripepay.ProviderName:
		if cfg.StripeSecretKey == "" {
			log.Warn("stripe selected but STRIPE_SECRET_KEY is not set")
			return nil, nil, nil
		}
		p := stripepay.New(stripepay.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.ReturnURL,
			CancelURL:     cfg.CancelURL,
		})
		return p, nil, p
	default:
		if !cfg.PayPalConfigured() {
			log.Warn("paypal credentials are not set, payments disabled")
			return nil, nil, nil
		}
		c := paypal.New(paypal.Config{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			Mode:         cfg.PayPalMode,
			WebhookID:    cfg.PayPalWebhookID,
			BrandName:    "DMG Bot",
			ReturnURL:    cfg.ReturnURL,
			CancelURL:    cfg.CancelURL,
			RatePerSec:   cfg.ProviderRatePerSec,
		})
		if cfg.PayPalWebhookID == "" {
			log.Warn("PAYPAL_WEBHOOK_ID is not set, webhook deliveries will be rejected unless verification is skipped")
		}
		return c, c, nil
	}
}
