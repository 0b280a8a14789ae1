package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const (
	peerInventory    = "inventory"
	endpointValidate = "validate_stock"
	maxResponseBytes = 1 << 10
	defaultTimeout   = 5 * time.Second
)

var (
	ErrUnauthorized      = errors.New("inventory: credential rejected (401)")
	ErrForbidden         = errors.New("inventory: credential lacks permission (403)")
	ErrUnexpectedStatus  = errors.New("inventory: unexpected response status")
	ErrMalformedResponse = errors.New("inventory: response is not a boolean")
	ErrUnavailable       = errors.New("inventory: service unavailable")
)

type Config struct {
	Scheme  string
	Host    string
	Path    string
	Timeout time.Duration
}

// URL joins scheme, host and path into the stock-check endpoint.
func (c Config) URL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	u := url.URL{Scheme: scheme, Host: c.Host, Path: c.Path}
	return u.String()
}

// Client performs the synchronous stock check against the inventory service.
// It never retries; a failed call aborts the payment.
type Client struct {
	endpoint string
	http     *http.Client

	log          observability.Logger
	tracer       observability.Tracer
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewClient(cfg Config, tel observability.Observability) *Client {
	if tel == nil {
		tel = observability.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:     cfg.URL(),
		http:         &http.Client{Timeout: timeout},
		log:          tel.Logger().With(observability.F("peer", peerInventory)),
		tracer:       tel.Tracer(),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// ValidateStock asks whether quantity units of productID can be reserved.
// credential is sent as the Authorization header exactly as received.
func (c *Client) ValidateStock(ctx context.Context, productID string, quantity int, credential string) (allowed bool, err error) {
	ctx, span := c.tracer.Start(ctx, "HTTP POST inventory.validate",
		attribute.String("peer.service", peerInventory),
		attribute.String("product.id", productID),
		attribute.Int("payment.quantity", quantity),
	)
	start := time.Now()
	outcome := "success"
	status := 0

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.Int("http.status_code", status), attribute.Bool("stock.allowed", allowed))
		span.End()

		c.extCounter.Add(1,
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpointValidate),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerInventory),
			observability.L("endpoint", endpointValidate),
		)
		if err != nil {
			logctx.FromOr(ctx, c.log).Error("inventory_request_failed",
				observability.F("outcome", outcome),
				observability.F("status_code", status),
				observability.F("product_id", productID),
				observability.F("error", err.Error()),
			)
		}
	}()

	body, err := json.Marshal(dompay.StockValidationRequest{ProductID: productID, Quantity: quantity})
	if err != nil {
		outcome = "encode_error"
		return false, fmt.Errorf("inventory: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		outcome = "request_error"
		return false, fmt.Errorf("inventory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "unavailable"
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		outcome = "unauthorized"
		return false, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		outcome = "forbidden"
		return false, ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		outcome = "unexpected_status"
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outcome = "unavailable"
		return false, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &allowed); err != nil {
		outcome = "malformed_response"
		return false, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(raw, 64))
	}
	if !allowed {
		outcome = "denied"
	}
	return allowed, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
