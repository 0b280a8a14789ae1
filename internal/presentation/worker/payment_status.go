package workerpresentation

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-payment/internal/application"
	appPayment "github.com/Zhima-Mochi/minishop-payment/internal/application/payment"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
)

const paymentStatusWorker = "payment_status_worker"

// PaymentStatusWorker consumes payment-status events and reconciles stored payments.
// Every message is handled in isolation: events that reference no payment or that
// the state machine rejects are logged and dropped.
type PaymentStatusWorker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[appPayment.ReconcileInput, *appPayment.ReconcileResult]

	log          observability.Logger
	consumed     observability.Counter   // events_consumed_total{event,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewPaymentStatusWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[appPayment.ReconcileInput, *appPayment.ReconcileResult],
	tel observability.Observability,
) *PaymentStatusWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &PaymentStatusWorker{
		subscriber:   subscriber,
		useCase:      useCase,
		log:          tel.Logger().With(observability.F("service", paymentStatusWorker)),
		consumed:     tel.Metrics().Counter(observability.MEventsConsumed),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *PaymentStatusWorker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dompay.TopicPaymentStatus, w.Handle)
}

// Handle reconciles one event. It returns an error only for storage failures.
func (w *PaymentStatusWorker) Handle(ctx context.Context, e domoutbox.Event) error {
	const useCase = "payment.worker.status"
	start := time.Now()

	evt, ok := e.(dompay.PaymentStatusEvent)
	if !ok {
		w.log.Warn("event_ignored", observability.F("event", e.EventName()))
		w.count(dompay.TopicPaymentStatus, "ignored")
		return nil
	}

	ctx = WithEventContext(ctx, w.log, map[string]string{
		"use_case": useCase,
		"event":    e.EventName(),
	})

	_, err := w.useCase.Execute(ctx, appPayment.ReconcileInput{
		TransactionID: evt.TransactionID,
		Status:        evt.PaymentStatus,
	})
	w.durHistogram.Observe(time.Since(start).Seconds(), observability.L("use_case", useCase))

	fields := []observability.Field{
		observability.F("transaction_id", evt.TransactionID),
		observability.F("product_id", evt.ProductID),
		observability.F("payment_status", string(evt.PaymentStatus)),
	}
	switch {
	case err == nil:
		w.count(e.EventName(), "success")
		return nil
	case errors.Is(err, appPayment.ErrUnknownReference):
		w.count(e.EventName(), "unknown_reference")
		w.log.Warn("event_dropped_unknown_reference", append(fields, observability.F("error", err.Error()))...)
		return nil
	case errors.Is(err, dompay.ErrInvalidStateTransition), errors.Is(err, dompay.ErrInvalidStatus),
		errors.Is(err, appPayment.ErrValidation):
		w.count(e.EventName(), "rejected")
		w.log.Warn("event_dropped_rejected", append(fields, observability.F("error", err.Error()))...)
		return nil
	default:
		w.count(e.EventName(), "error")
		w.log.Error("event_reconcile_failed", append(fields, observability.F("error", err.Error()))...)
		return err
	}
}

func (w *PaymentStatusWorker) count(event, outcome string) {
	w.consumed.Add(1,
		observability.L("event", event),
		observability.L("outcome", outcome),
	)
}
