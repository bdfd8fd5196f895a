// Package payment binds the external payment gateway.  The core only
// needs two calls: hand a charge off and receive an opaque reference,
// and push a refund.  Outcomes come back asynchronously over the broker
// or the webhook, never through these calls.
package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "time"

    "github.com/google/uuid"

    "github.com/cinecore/movie-booking/internal/model"
)

// Gateway is an HTTP client for the payment provider.  It implements
// booking.PaymentGateway.  When constructed with an empty base URL it
// runs in detached mode: charges are acknowledged with a locally
// generated reference and outcomes are expected through the webhook,
// which is how local development and the component tests run.
type Gateway struct {
    baseURL string
    client  *http.Client
}

// NewGateway returns a Gateway for the given provider base URL.
func NewGateway(baseURL string) *Gateway {
    return &Gateway{
        baseURL: baseURL,
        client:  &http.Client{Timeout: 10 * time.Second},
    }
}

type chargeRequest struct {
    BookingID   string `json:"booking_id"`
    AmountCents uint32 `json:"amount_cents"`
    Method      string `json:"method"`
}

type chargeResponse struct {
    Reference string `json:"reference"`
}

type refundRequest struct {
    BookingID   string `json:"booking_id"`
    Reference   string `json:"reference"`
    AmountCents uint32 `json:"amount_cents"`
}

// RequestPayment submits the charge and returns the provider's opaque
// reference.  The call returns as soon as the provider accepts the
// charge; settlement arrives later as a payment outcome event.
func (g *Gateway) RequestPayment(ctx context.Context, bookingID string, amountCents uint32, method model.PaymentMethod) (string, error) {
    if g.baseURL == "" {
        ref := "local-" + uuid.NewString()
        log.Printf("payment: gateway detached, issuing local reference %s for booking %s", ref, bookingID)
        return ref, nil
    }
    var resp chargeResponse
    err := g.post(ctx, "/v1/charges", chargeRequest{BookingID: bookingID, AmountCents: amountCents, Method: string(method)}, &resp)
    if err != nil {
        return "", err
    }
    if resp.Reference == "" {
        return "", fmt.Errorf("payment: provider returned empty reference for booking %s", bookingID)
    }
    return resp.Reference, nil
}

// Refund pushes a refund for a settled charge.  Callers retry on error;
// the provider deduplicates by reference.
func (g *Gateway) Refund(ctx context.Context, bookingID, paymentRef string, amountCents uint32) error {
    if g.baseURL == "" {
        log.Printf("payment: gateway detached, refund of %d cents for booking %s (ref %s) acknowledged locally", amountCents, bookingID, paymentRef)
        return nil
    }
    return g.post(ctx, "/v1/refunds", refundRequest{BookingID: bookingID, Reference: paymentRef, AmountCents: amountCents}, nil)
}

func (g *Gateway) post(ctx context.Context, path string, payload, out interface{}) error {
    body, err := json.Marshal(payload)
    if err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(req)
    if err != nil {
        return err
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        return fmt.Errorf("payment: provider returned %d for %s", resp.StatusCode, path)
    }
    if out == nil {
        return nil
    }
    return json.NewDecoder(resp.Body).Decode(out)
}
