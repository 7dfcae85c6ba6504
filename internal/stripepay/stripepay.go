package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BatmanBruc/dmg-bot/internal/pricing"
	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const ProviderName = "stripe"

const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventAsyncPaymentSucceded = "checkout.session.async_payment_succeeded"
)

var (
	ErrWebhookNotConfigured = errors.New("stripe webhook secret not configured")
	ErrMissingCustomID      = errors.New("session has no client_reference_id")
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// BaseURL overrides the Stripe API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

type Provider struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	configured    bool
}

func New(cfg Config) *Provider {
	var backends *stripe.Backends
	if cfg.BaseURL != "" || cfg.HTTPClient != nil {
		retries := int64(0)
		bc := &stripe.BackendConfig{
			HTTPClient:        cfg.HTTPClient,
			MaxNetworkRetries: &retries,
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, bc),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, bc),
		}
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &Provider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		configured:    cfg.SecretKey != "",
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

func mapSession(sess *stripe.CheckoutSession) *types.ProviderOrder {
	out := &types.ProviderOrder{
		ID:          sess.ID,
		ApprovalURL: sess.URL,
		CustomID:    sess.ClientReferenceID,
		Status:      types.OrderUnknown,
	}
	switch sess.Status {
	case stripe.CheckoutSessionStatusOpen:
		out.Status = types.OrderCreated
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			out.Status = types.OrderApproved
		} else {
			out.Status = types.OrderCompleted
		}
	case stripe.CheckoutSessionStatusExpired:
		out.Status = types.OrderVoided
	}
	return out
}

func wrap(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &types.ProviderError{Op: op, StatusCode: stripeErr.HTTPStatusCode, Err: err}
	}
	return &types.ProviderError{Op: op, Err: err}
}

func (p *Provider) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.ProviderOrder, error) {
	if !p.configured {
		return nil, types.ErrProviderNotConfigured
	}
	cents, err := pricing.MinorUnits(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("stripe amount: %w", err)
	}
	name := req.Description
	if name == "" {
		name = "Premium access"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.CustomID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"reference": req.Reference,
			"user_id":   req.Key.UserID,
			"guild_id":  req.Key.GuildID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("create-" + req.Reference)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrap("create checkout session", err)
	}
	return mapSession(sess), nil
}

func (p *Provider) GetOrder(ctx context.Context, orderID string) (*types.ProviderOrder, error) {
	if !p.configured {
		return nil, types.ErrProviderNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.api.CheckoutSessions.Get(orderID, params)
	if err != nil {
		return nil, wrap("get checkout session", err)
	}
	return mapSession(sess), nil
}

// CaptureOrder returns the session state. Checkout sessions in payment mode
// capture on completion, so there is nothing to collect.
func (p *Provider) CaptureOrder(ctx context.Context, orderID string) (*types.ProviderOrder, error) {
	return p.GetOrder(ctx, orderID)
}

func (p *Provider) WebhookConfigured() bool {
	return p.webhookSecret != ""
}

// SessionEvent is a verified checkout session webhook delivery.
type SessionEvent struct {
	Type      string
	SessionID string
	CustomID  string
	Paid      bool
}

// ParseWebhook verifies the Stripe-Signature header and decodes the session.
// Events that do not carry a checkout session come back with an empty SessionID.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*SessionEvent, error) {
	if !p.WebhookConfigured() {
		return nil, ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	out := &SessionEvent{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || event.Data == nil {
		return out, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, err
	}
	out.SessionID = sess.ID
	out.CustomID = sess.ClientReferenceID
	out.Paid = sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid
	if out.CustomID == "" {
		return out, ErrMissingCustomID
	}
	return out, nil
}
