package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-payment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService     = "inventory-service"
	useCaseValidateStock = "inventory.validate"
	useCaseDeductStock   = "inventory.deduct"
	validateSpanName     = "ValidateStock"
	deductSpanName       = "DeductStock"
	spanPrefix           = "UC."
	publishPeer          = "event_bus"
	publishTimeout       = 300 * time.Millisecond
)

var ErrInvalidRequest = errors.New("inventory: invalid request")

type ValidateStockInput struct {
	ProductID string
	Quantity  int
}

// ValidateStockUseCase answers the payment side's synchronous stock check.
type ValidateStockUseCase struct {
	repo dominv.Repository

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewValidateStockUseCase(repo dominv.Repository, tel observability.Observability) *ValidateStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &ValidateStockUseCase{
		repo:         repo,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// Execute reports whether the stock covers the quantity. Unknown products are out of stock.
func (uc *ValidateStockUseCase) Execute(ctx context.Context, cmd ValidateStockInput) (allowed bool, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseValidateStock),
		observability.F("product_id", cmd.ProductID),
		observability.F("quantity", cmd.Quantity),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+validateSpanName,
		attribute.String("use_case", useCaseValidateStock),
		attribute.String("product.id", cmd.ProductID),
		attribute.Int("inventory.quantity", cmd.Quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseValidateStock),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(latency, observability.L("use_case", useCaseValidateStock))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("allowed", allowed),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if cmd.ProductID == "" || cmd.Quantity <= 0 {
		outcome, statusText = "error", "VALIDATION_FAILED"
		return false, fmt.Errorf("%w: product id and positive quantity required", ErrInvalidRequest)
	}

	item, err := uc.repo.Get(ctx, cmd.ProductID)
	if errors.Is(err, dominv.ErrNotFound) {
		statusText = "UNKNOWN_PRODUCT"
		return false, nil
	}
	if err != nil {
		outcome, statusText = "error", "REPO_GET_FAILED"
		return false, fmt.Errorf("inventory: get: %w", err)
	}

	allowed = item.CanReserve(cmd.Quantity)
	if !allowed {
		statusText = "INSUFFICIENT_STOCK"
	}
	return allowed, nil
}

// DeductionResult is the outcome reported back on the payment-status topic.
type DeductionResult struct {
	Status        dompay.Status
	FailureReason string
	Remaining     int
}

// DeductStockUseCase reacts to a completed payment: it deducts stock and reports
// SUCCESS or FAILED for the transaction.
type DeductStockUseCase struct {
	repo      dominv.Repository
	publisher domoutbox.Publisher

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewDeductStockUseCase(repo dominv.Repository, publisher domoutbox.Publisher, tel observability.Observability) *DeductStockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &DeductStockUseCase{
		repo:         repo,
		publisher:    publisher,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute returns an error only when the status event cannot be published; a refused
// deduction is reported as FAILED.
func (uc *DeductStockUseCase) Execute(ctx context.Context, e dompay.PaymentCompletedEvent) (_ *DeductionResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseDeductStock),
		observability.F("transaction_id", e.TransactionID),
		observability.F("product_id", e.ProductID),
		observability.F("quantity", e.Quantity),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+deductSpanName,
		attribute.String("use_case", useCaseDeductStock),
		attribute.String("payment.transaction_id", e.TransactionID),
		attribute.String("product.id", e.ProductID),
		attribute.Int("inventory.quantity", e.Quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	result := &DeductionResult{Status: dompay.StatusSuccess}

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseDeductStock),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(latency, observability.L("use_case", useCaseDeductStock))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("payment_status", string(result.Status)),
		}
		if result.FailureReason != "" {
			fields = append(fields, observability.F("failure_reason", result.FailureReason))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	item, deductErr := uc.repo.Deduct(ctx, e.ProductID, e.Quantity)
	if deductErr != nil {
		statusText = "DEDUCTION_REFUSED"
		result.Status = dompay.StatusFailed
		result.FailureReason = dominv.FailureReason(deductErr)
	} else {
		result.Remaining = item.Quantity
		span.AddEvent("inventory.deducted",
			trace.WithAttributes(attribute.Int("inventory.remaining", item.Quantity)),
		)
	}

	status := dompay.PaymentStatusEvent{
		ProductID:     e.ProductID,
		Quantity:      e.Quantity,
		TransactionID: e.TransactionID,
		PaymentStatus: result.Status,
	}
	if err = uc.publish(ctx, status); err != nil {
		outcome, statusText = "error", "EVENT_PUBLISH_FAILED"
		return result, fmt.Errorf("inventory: publish status: %w", err)
	}
	return result, nil
}

func (uc *DeductStockUseCase) publish(ctx context.Context, event domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	err := uc.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

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
