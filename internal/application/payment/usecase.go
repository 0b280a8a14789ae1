package payment

import (
	"context"
	"fmt"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService        = "payment-service"
	useCasePaymentProcess = "payment.process"
	paymentSpanName       = "ProcessPayment"
	spanPrefix            = "UC."
	publishPeer           = "event_bus"
	publishTimeout        = 300 * time.Millisecond
)

type ProcessPaymentInput struct {
	OrderID     string
	ProductID   string
	CustomerID  string
	Quantity    int
	TotalAmount decimal.Decimal
	Mode        dompay.Mode
	// Credential is the caller's Authorization header value, forwarded to the stock check.
	Credential string
}

// ProcessPaymentUseCase runs the payment saga: stock check, pending record, capture,
// status write and, on success only, the payment-completed event.
type ProcessPaymentUseCase struct {
	repo      dompay.Repository
	inventory InventoryClient
	methods   *Registry
	publisher domoutbox.Publisher
	ids       IDGenerator

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewProcessPaymentUseCase(
	repo dompay.Repository,
	inventory InventoryClient,
	methods *Registry,
	publisher domoutbox.Publisher,
	ids IDGenerator,
	tel observability.Observability,
) *ProcessPaymentUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &ProcessPaymentUseCase{
		repo:         repo,
		inventory:    inventory,
		methods:      methods,
		publisher:    publisher,
		ids:          ids,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute returns the stored payment whatever its capture outcome. Only a failed
// or denied stock check, an unknown mode and storage failures are errors.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, cmd ProcessPaymentInput) (_ *dompay.Payment, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePaymentProcess),
		observability.F("order_id", cmd.OrderID),
		observability.F("product_id", cmd.ProductID),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+paymentSpanName,
		attribute.String("use_case", useCasePaymentProcess),
		attribute.String("order.id", cmd.OrderID),
		attribute.String("product.id", cmd.ProductID),
		attribute.Int("payment.quantity", cmd.Quantity),
		attribute.String("payment.mode", string(cmd.Mode)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var (
		payment       *dompay.Payment
		failureReason string
		publishErr    error
	)

	defer func() {
		paymentStatus := ""
		transactionID := ""
		if payment != nil {
			paymentStatus = string(payment.Status)
			transactionID = payment.TransactionID
		}

		if span != nil {
			span.SetAttributes(
				attribute.String("payment.status", paymentStatus),
				attribute.String("payment.transaction_id", transactionID),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCasePaymentProcess),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(latency,
			observability.L("use_case", useCasePaymentProcess),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("quantity", cmd.Quantity),
			observability.F("amount", cmd.TotalAmount.String()),
			observability.F("payment_mode", string(cmd.Mode)),
		}
		if transactionID != "" {
			fields = append(fields,
				observability.F("transaction_id", transactionID),
				observability.F("payment_status", paymentStatus),
			)
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if failureReason != "" {
			fields = append(fields, observability.F("failure_reason", failureReason))
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if err = validateProcessInput(cmd); err != nil {
		outcome, statusText = "error", "VALIDATION_FAILED"
		return nil, err
	}

	// Nothing may be stored before stock is confirmed.
	allowed, stockErr := uc.inventory.ValidateStock(ctx, cmd.ProductID, cmd.Quantity, cmd.Credential)
	if stockErr != nil {
		outcome, statusText = "error", "STOCK_CHECK_FAILED"
		failureReason = stockErr.Error()
		return nil, fmt.Errorf("%w: %w", ErrStockNotValidated, stockErr)
	}
	if !allowed {
		outcome, statusText = "error", "STOCK_DENIED"
		return nil, fmt.Errorf("%w: %w", ErrStockNotValidated, ErrInsufficientStock)
	}
	span.AddEvent("payment.stock_validated")

	payment, err = dompay.New(uc.ids.NewID(), cmd.OrderID, cmd.CustomerID, cmd.TotalAmount, cmd.Mode)
	if err != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("payment: construct: %w", err)
	}
	if err = uc.repo.Create(ctx, payment); err != nil {
		outcome, statusText = "error", "REPO_CREATE_FAILED"
		payment = nil
		return nil, wrapRepositoryError(err)
	}

	method, ok := uc.methods.Lookup(cmd.Mode)
	if !ok {
		outcome, statusText = "error", "UNKNOWN_PAYMENT_MODE"
		return nil, fmt.Errorf("%w: %s", ErrUnknownPaymentMode, cmd.Mode)
	}

	captured, capErr := method.Capture(ctx, CaptureRequest{
		Payment:     payment.Clone(),
		OrderID:     cmd.OrderID,
		ProductID:   cmd.ProductID,
		CustomerID:  cmd.CustomerID,
		TotalAmount: cmd.TotalAmount,
	})
	switch {
	case capErr != nil:
		failureReason = capErr.Error()
		captured = dompay.StatusFailed
	case !captured.Terminal():
		failureReason = fmt.Sprintf("invalid capture outcome %q", captured)
		captured = dompay.StatusFailed
	}
	if err = payment.Captured(captured); err != nil {
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		return nil, err
	}

	if err = uc.repo.UpdateStatus(ctx, payment.TransactionID, dompay.StatusPending, payment.Status); err != nil {
		outcome, statusText = "error", "REPO_UPDATE_FAILED"
		return nil, wrapRepositoryError(err)
	}

	if payment.Status != dompay.StatusSuccess {
		statusText = "DECLINED"
		return payment, nil
	}

	publishErr = uc.publish(ctx, dompay.NewPaymentCompletedEvent(payment, cmd.ProductID, cmd.Quantity))
	if publishErr != nil {
		statusText = "EVENT_PUBLISH_FAILED"
	}
	span.AddEvent("payment.captured",
		trace.WithAttributes(attribute.String("payment.transaction_id", payment.TransactionID)),
	)

	return payment, nil
}

// ProcessPayment is the positional form used by the HTTP boundary.
func (uc *ProcessPaymentUseCase) ProcessPayment(ctx context.Context, cmd ProcessPaymentInput) (*dompay.Payment, error) {
	return uc.Execute(ctx, cmd)
}

// publish is fire-and-forget: a failure is reported but never changes the payment.
func (uc *ProcessPaymentUseCase) publish(ctx context.Context, event domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := uc.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
	)
	return err
}

func validateProcessInput(cmd ProcessPaymentInput) error {
	switch {
	case cmd.OrderID == "":
		return newValidation("order id is required")
	case cmd.ProductID == "":
		return newValidation("product id is required")
	case cmd.CustomerID == "":
		return newValidation("customer id is required")
	case cmd.Quantity <= 0:
		return newValidation("quantity must be greater than zero")
	case !cmd.TotalAmount.IsPositive():
		return newValidation("total amount must be greater than zero")
	}
	if _, err := dompay.ParseMode(string(cmd.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
