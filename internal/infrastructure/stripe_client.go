package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	stripeBaseURL          = "https://api.stripe.com/v1"
	stripeRequestTimeout   = 15 * time.Second
	webhookSignatureSkewMs = 5 * 60 * 1000
)

// StripeClient speaks the Stripe REST API directly with form-encoded
// requests. Only the endpoints this service needs are covered.
type StripeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{
		apiKey:  apiKey,
		baseURL: stripeBaseURL,
		client:  &http.Client{Timeout: stripeRequestTimeout},
	}
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type StripeSubscription struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
	Items    struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// PriceID returns the subscription's first price id, or "".
func (s *StripeSubscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// PeriodEnd returns the latest current-period end across the line items.
func (s *StripeSubscription) PeriodEnd() time.Time {
	var latest int64
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > latest {
			latest = item.CurrentPeriodEnd
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.Unix(latest, 0).UTC()
}

type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type CheckoutCompletedSession struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("stripe api key not configured")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateCheckoutSession opens a hosted subscription checkout for the given
// price. The user id rides along as metadata on both the session and the
// subscription so the webhook can attribute it.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", input.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", input.SuccessURL)
	form.Set("cancel_url", input.CancelURL)
	form.Set("customer_email", input.CustomerEmail)
	form.Set("metadata[userId]", input.UserID)
	form.Set("metadata[tier]", input.Tier)
	form.Set("subscription_data[metadata][userId]", input.UserID)
	form.Set("allow_promotion_codes", "true")

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

type CheckoutSessionInput struct {
	PriceID       string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	UserID        string
	Tier          string
}

// CreatePortalSession opens the hosted billing portal for a customer.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var session PortalSession
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSubscription fetches a subscription by id.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*StripeSubscription, error) {
	var sub StripeSubscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetSubscriptionUserID stamps the owning user id onto subscription metadata.
func (c *StripeClient) SetSubscriptionUserID(ctx context.Context, id, userID string) error {
	form := url.Values{}
	form.Set("metadata[userId]", userID)
	return c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(id), form, nil)
}

// VerifyWebhookSignature checks the Stripe-Signature header against the
// shared webhook secret: HMAC-SHA256 over "<timestamp>.<payload>" with a
// bounded timestamp skew.
func VerifyWebhookSignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp int64
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid signature timestamp")
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	skew := now.UnixMilli() - timestamp*1000
	if skew < 0 {
		skew = -skew
	}
	if skew > webhookSignatureSkewMs {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

// ParseWebhookEvent verifies the signature and decodes the event envelope.
func ParseWebhookEvent(payload []byte, header, secret string, now time.Time) (*WebhookEvent, error) {
	if err := VerifyWebhookSignature(payload, header, secret, now); err != nil {
		return nil, err
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}
