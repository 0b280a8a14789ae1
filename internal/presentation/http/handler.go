package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-payment/internal/application"
	appInventory "github.com/Zhima-Mochi/minishop-payment/internal/application/inventory"
	appPayment "github.com/Zhima-Mochi/minishop-payment/internal/application/payment"
	domainPayment "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/auth"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "payment.http"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("insufficient role")
)

// Services are the use cases the HTTP boundary exposes. ValidateStock and Metrics
// are optional; their routes are only mounted when set.
type Services struct {
	ProcessPayment application.UseCase[appPayment.ProcessPaymentInput, *domainPayment.Payment]
	GetPayment     application.UseCase[string, *domainPayment.Payment]
	ValidateStock  application.UseCase[appInventory.ValidateStockInput, bool]
	Metrics        http.Handler
}

type Handler struct {
	svc      Services
	verifier *auth.Verifier
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(svc Services, verifier *auth.Verifier, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		svc:      svc,
		verifier: verifier,
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Every route: Trace → Request Logger + Metrics → Access Log → Auth → Handler
	userOrAdmin := []string{auth.RoleUser, auth.RoleAdmin}
	h.handle(r, http.MethodPost, "/payment", requireAnyRole(h.handleProcessPayment, userOrAdmin...))
	h.handle(r, http.MethodGet, "/payment/{transactionId}", requireAnyRole(h.handleGetPayment, userOrAdmin...))
	if h.svc.ValidateStock != nil {
		h.handle(r, http.MethodPost, "/inventory/validate", h.handleValidateStock)
	}
	h.handle(r, http.MethodGet, "/health", h.handleHealth)
	if h.svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.svc.Metrics)
	}

	return r
}

func (h *Handler) handle(r chi.Router, method, route string, handler http.HandlerFunc) {
	chain := h.withTrace(
		ObservabilityMiddleware(h.log, func(r *http.Request) string {
			return r.Header.Get(headerRequestID)
		}, h.tel)(
			h.withAccessLog(
				h.withAuth(handler),
			),
		),
	)
	r.Method(method, route, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Store the route template for low-cardinality labels.
		chain.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), method+" "+route)))
	}))
}

type paymentResponse struct {
	TransactionID string      `json:"transactionId"`
	OrderID       string      `json:"orderId"`
	CustomerID    string      `json:"customerId"`
	TotalAmount   json.Number `json:"totalAmount"`
	PaymentMode   string      `json:"paymentMode"`
	PaymentStatus string      `json:"paymentStatus"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func toPaymentResponse(p *domainPayment.Payment) paymentResponse {
	return paymentResponse{
		TransactionID: p.TransactionID,
		OrderID:       p.OrderID,
		CustomerID:    p.CustomerID,
		TotalAmount:   json.Number(p.TotalAmount.String()),
		PaymentMode:   string(p.Mode),
		PaymentStatus: string(p.Status),
		CreatedAt:     p.CreatedAt,
	}
}

// handleProcessPayment reads its parameters from the query string or a form body.
func (h *Handler) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	in, err := parseProcessPayment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		in.Credential = p.Credential
	}

	payment, err := h.svc.ProcessPayment.Execute(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func parseProcessPayment(r *http.Request) (appPayment.ProcessPaymentInput, error) {
	var in appPayment.ProcessPaymentInput
	if err := r.ParseForm(); err != nil {
		return in, fmt.Errorf("parse parameters: %w", err)
	}

	var missing []string
	param := func(name string) string {
		v := strings.TrimSpace(r.Form.Get(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}
	orderID, productID, customerID := param("orderId"), param("productId"), param("customerId")
	quantity, amount, mode := param("quantity"), param("totalAmount"), param("paymentMode")
	if len(missing) > 0 {
		return in, fmt.Errorf("missing parameters: %s", strings.Join(missing, ", "))
	}

	for name, v := range map[string]string{"orderId": orderID, "productId": productID, "customerId": customerID} {
		if _, err := uuid.Parse(v); err != nil {
			return in, fmt.Errorf("%s must be a UUID", name)
		}
	}
	qty, err := strconv.Atoi(quantity)
	if err != nil {
		return in, errors.New("quantity must be an integer")
	}
	total, err := decimal.NewFromString(amount)
	if err != nil {
		return in, errors.New("totalAmount must be a decimal number")
	}
	pm, err := domainPayment.ParseMode(mode)
	if err != nil {
		return in, err
	}

	in.OrderID, in.ProductID, in.CustomerID = orderID, productID, customerID
	in.Quantity, in.TotalAmount, in.Mode = qty, total, pm
	return in, nil
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transactionId")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("transactionId must be a UUID"))
		return
	}

	payment, err := h.svc.GetPayment.Execute(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) handleValidateStock(w http.ResponseWriter, r *http.Request) {
	var req domainPayment.StockValidationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	allowed, err := h.svc.ValidateStock.Execute(r.Context(), appInventory.ValidateStockInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allowed)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}

		ctx, span := tracer.Start(parentCtx,
			route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, appPayment.ErrValidation),
		errors.Is(err, appInventory.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domainPayment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appPayment.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, appPayment.ErrStockNotValidated):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("status", status),
			observability.F("error", err.Error()),
		)
	}
	writeError(w, status, err)
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
