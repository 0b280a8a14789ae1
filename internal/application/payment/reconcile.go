package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	useCasePaymentReconcile = "payment.reconcile"
	reconcileSpanName       = "ReconcilePayment"
	// bounds compare-and-set rounds when concurrent status events race on one row
	maxReconcileAttempts = 3
)

type ReconcileInput struct {
	TransactionID string
	Status        dompay.Status
}

type ReconcileResult struct {
	Status  dompay.Status
	Changed bool
}

// ReconcilePaymentUseCase applies the inventory side's final status to a stored payment.
// Applying the same status again leaves the record untouched.
type ReconcilePaymentUseCase struct {
	repo dompay.Repository

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewReconcilePaymentUseCase(repo dompay.Repository, tel observability.Observability) *ReconcilePaymentUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &ReconcilePaymentUseCase{
		repo:         repo,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (uc *ReconcilePaymentUseCase) Execute(ctx context.Context, cmd ReconcileInput) (_ *ReconcileResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePaymentReconcile),
		observability.F("transaction_id", cmd.TransactionID),
		observability.F("reported_status", string(cmd.Status)),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+reconcileSpanName,
		attribute.String("use_case", useCasePaymentReconcile),
		attribute.String("payment.transaction_id", cmd.TransactionID),
		attribute.String("payment.reported_status", string(cmd.Status)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	result := &ReconcileResult{}

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
			observability.L("use_case", useCasePaymentReconcile),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(latency,
			observability.L("use_case", useCasePaymentReconcile),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
			observability.F("payment_status", string(result.Status)),
			observability.F("changed", result.Changed),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if cmd.TransactionID == "" {
		outcome, statusText = "error", "TRANSACTION_ID_REQUIRED"
		return nil, newValidation("transaction id is required")
	}

	for attempt := 0; attempt < maxReconcileAttempts; attempt++ {
		payment, getErr := uc.repo.Get(ctx, cmd.TransactionID)
		if errors.Is(getErr, dompay.ErrNotFound) {
			outcome, statusText = "error", "UNKNOWN_REFERENCE"
			return nil, fmt.Errorf("%w: %s", ErrUnknownReference, cmd.TransactionID)
		}
		if getErr != nil {
			outcome, statusText = "error", "REPO_GET_FAILED"
			return nil, wrapRepositoryError(getErr)
		}

		previous := payment.Status
		result.Status = previous
		changed, transErr := payment.Reconciled(cmd.Status)
		if transErr != nil {
			outcome, statusText = "error", "STATE_TRANSITION_REJECTED"
			return result, transErr
		}
		if !changed {
			statusText = "UNCHANGED"
			return result, nil
		}

		updErr := uc.repo.UpdateStatus(ctx, payment.TransactionID, previous, payment.Status)
		if errors.Is(updErr, dompay.ErrStaleStatus) {
			span.AddEvent("payment.reconcile_stale")
			continue
		}
		if updErr != nil {
			outcome, statusText = "error", "REPO_UPDATE_FAILED"
			return nil, wrapRepositoryError(updErr)
		}

		result.Status, result.Changed = payment.Status, true
		return result, nil
	}

	outcome, statusText = "error", "STALE_STATUS"
	return nil, wrapRepositoryError(dompay.ErrStaleStatus)
}
