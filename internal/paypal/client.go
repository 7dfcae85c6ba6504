package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	ProviderName = "paypal"
)

var (
	ErrMissingApprovalLink = errors.New("order has no approval link")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

type Config struct {
	ClientID     string
	ClientSecret string
	Mode         string
	// BaseURL overrides the endpoint picked from Mode.
	BaseURL    string
	WebhookID  string
	BrandName  string
	ReturnURL  string
	CancelURL  string
	RatePerSec float64
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	webhookID  string
	brandName  string
	returnURL  string
	cancelURL  string
	configured bool
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = SandboxBaseURL
		if strings.EqualFold(cfg.Mode, "live") {
			base = LiveBaseURL
		}
	}
	baseHTTP := cfg.HTTPClient
	if baseHTTP == nil {
		baseHTTP = &http.Client{Timeout: 30 * time.Second}
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, baseHTTP)
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = baseHTTP.Timeout

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	brand := cfg.BrandName
	if brand == "" {
		brand = "DreamMaker"
	}

	return &Client{
		baseURL:    base,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		webhookID:  strings.TrimSpace(cfg.WebhookID),
		brandName:  brand,
		returnURL:  cfg.ReturnURL,
		cancelURL:  cfg.CancelURL,
		configured: cfg.ClientID != "" && cfg.ClientSecret != "",
	}
}

func (c *Client) Name() string {
	return ProviderName
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string  `json:"reference_id,omitempty"`
	CustomID    string  `json:"custom_id,omitempty"`
	InvoiceID   string  `json:"invoice_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      *amount `json:"amount,omitempty"`
}

type applicationContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	UserAction         string `json:"user_action,omitempty"`
	ShippingPreference string `json:"shipping_preference,omitempty"`
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

func (o *order) toProvider() *types.ProviderOrder {
	out := &types.ProviderOrder{
		ID:     o.ID,
		Status: MapStatus(o.Status),
	}
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.ApprovalURL = l.Href
			break
		}
	}
	for _, pu := range o.PurchaseUnits {
		if pu.CustomID != "" {
			out.CustomID = pu.CustomID
			break
		}
	}
	return out
}

// MapStatus normalises a PayPal order status.
func MapStatus(status string) types.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return types.OrderCreated
	case "APPROVED":
		return types.OrderApproved
	case "COMPLETED":
		return types.OrderCompleted
	case "VOIDED":
		return types.OrderVoided
	default:
		return types.OrderUnknown
	}
}

func (c *Client) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.ProviderOrder, error) {
	if !c.configured {
		return nil, types.ErrProviderNotConfigured
	}
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.Reference,
			CustomID:    req.CustomID,
			InvoiceID:   req.Reference,
			Description: req.Description,
			Amount:      &amount{CurrencyCode: req.Currency, Value: req.Amount},
		}},
		ApplicationContext: &applicationContext{
			BrandName:          c.brandName,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
			ReturnURL:          c.returnURL,
			CancelURL:          c.cancelURL,
		},
	}
	headers := map[string]string{
		"PayPal-Request-Id": uuid.NewString(),
		"Prefer":            "return=representation",
	}

	var out order
	if err := c.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", body, headers, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &types.ProviderError{Op: "create order", Err: ErrMalformedResponse}
	}
	po := out.toProvider()
	if po.ApprovalURL == "" {
		return nil, &types.ProviderError{Op: "create order", Err: ErrMissingApprovalLink}
	}
	return po, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*types.ProviderOrder, error) {
	if !c.configured {
		return nil, types.ErrProviderNotConfigured
	}
	var out order
	if err := c.do(ctx, "get order", http.MethodGet, "/v2/checkout/orders/"+orderID, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &types.ProviderError{Op: "get order", Err: ErrMalformedResponse}
	}
	return out.toProvider(), nil
}

// CaptureOrder collects an approved order. The request id is derived from the
// order id, so concurrent captures from the poller and the webhook collapse
// into one on PayPal's side.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*types.ProviderOrder, error) {
	if !c.configured {
		return nil, types.ErrProviderNotConfigured
	}
	headers := map[string]string{
		"PayPal-Request-Id": "capture-" + orderID,
		"Prefer":            "return=representation",
	}
	var out order
	err := c.do(ctx, "capture order", http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, headers, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HasIssue("ORDER_ALREADY_CAPTURED") {
			return c.GetOrder(ctx, orderID)
		}
		return nil, err
	}
	if out.ID == "" {
		return nil, &types.ProviderError{Op: "capture order", Err: ErrMalformedResponse}
	}
	return out.toProvider(), nil
}

// APIError is the error body PayPal returns with non-2xx responses.
type APIError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Details[0].Issue)
	}
	if e.Name == "" && e.Message == "" {
		return "unexpected response"
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *APIError) HasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &types.ProviderError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &types.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		_ = json.Unmarshal(payload, apiErr)
		return &types.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: apiErr}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &types.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}
