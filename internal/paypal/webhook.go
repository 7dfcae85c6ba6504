package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BatmanBruc/dmg-bot/types"
)

const (
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventOrderCompleted   = "CHECKOUT.ORDER.COMPLETED"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

var (
	ErrWebhookNotConfigured = errors.New("paypal webhook id not configured")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrMissingCustomID      = errors.New("event has no custom_id")
	ErrMissingOrderID       = errors.New("event has no order id")
)

type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
}

func ParseEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.EventType) == "" {
		return nil, errors.New("event_type is empty")
	}
	return &ev, nil
}

type captureResource struct {
	ID                string `json:"id"`
	CustomID          string `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// OrderRef extracts the order id and the custom field set at order creation.
// Order events carry an order resource, capture events a capture resource.
func (e *WebhookEvent) OrderRef() (orderID, customID string, err error) {
	if strings.HasPrefix(e.EventType, "PAYMENT.CAPTURE.") {
		var c captureResource
		if err := json.Unmarshal(e.Resource, &c); err != nil {
			return "", "", err
		}
		orderID, customID = c.SupplementaryData.RelatedIDs.OrderID, c.CustomID
	} else {
		var o order
		if err := json.Unmarshal(e.Resource, &o); err != nil {
			return "", "", err
		}
		orderID = o.ID
		customID = o.toProvider().CustomID
	}
	if strings.TrimSpace(customID) == "" {
		return orderID, "", ErrMissingCustomID
	}
	if strings.TrimSpace(orderID) == "" {
		return "", customID, ErrMissingOrderID
	}
	return orderID, customID, nil
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

func (c *Client) WebhookConfigured() bool {
	return c.configured && c.webhookID != ""
}

// VerifyWebhook asks PayPal to check the transmission signature of a delivery.
func (c *Client) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if !c.WebhookConfigured() {
		return ErrWebhookNotConfigured
	}
	if !json.Valid(body) {
		return ErrInvalidSignature
	}
	req := verifyRequest{
		AuthAlgo:         headers.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          headers.Get("PAYPAL-CERT-URL"),
		TransmissionID:   headers.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: headers.Get("PAYPAL-TRANSMISSION-TIME"),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	if req.TransmissionID == "" || req.TransmissionSig == "" {
		return ErrInvalidSignature
	}
	var out verifyResponse
	if err := c.do(ctx, "verify webhook", http.MethodPost, "/v1/notifications/verify-webhook-signature", req, nil, &out); err != nil {
		if rejectedDelivery(err) {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return err
	}
	if !strings.EqualFold(out.VerificationStatus, "SUCCESS") {
		return ErrInvalidSignature
	}
	return nil
}

// rejectedDelivery reports whether PayPal refused the verify request because
// of what the delivery carried. Auth and throttling replies are our problem
// and stay retryable.
func rejectedDelivery(err error) bool {
	var pe *types.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return pe.StatusCode >= 400 && pe.StatusCode < 500
}
