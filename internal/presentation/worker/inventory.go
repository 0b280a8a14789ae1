package workerpresentation

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-payment/internal/application"
	appInventory "github.com/Zhima-Mochi/minishop-payment/internal/application/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const inventoryWorker = "inventory_worker"

// InventoryWorker deducts simulated stock for every payment-completed event.
type InventoryWorker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dompay.PaymentCompletedEvent, *appInventory.DeductionResult]

	log      observability.Logger
	tracer   observability.Tracer
	consumed observability.Counter
}

func NewInventoryWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[dompay.PaymentCompletedEvent, *appInventory.DeductionResult],
	tel observability.Observability,
) *InventoryWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &InventoryWorker{
		subscriber: subscriber,
		useCase:    useCase,
		log:        tel.Logger().With(observability.F("service", inventoryWorker)),
		tracer:     tel.Tracer(),
		consumed:   tel.Metrics().Counter(observability.MEventsConsumed),
	}
}

func (w *InventoryWorker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dompay.TopicPaymentCompleted, w.Handle)
}

func (w *InventoryWorker) Handle(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.payment_completed"
	evt, ok := e.(dompay.PaymentCompletedEvent)
	if !ok {
		w.count(dompay.TopicPaymentCompleted, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, "EVT."+e.EventName(),
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	defer span.End()
	ctx = WithEventContext(ctx, w.log, map[string]string{
		"use_case": useCase,
		"event":    e.EventName(),
	})
	start := time.Now()

	res, err := w.useCase.Execute(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DEDUCT_FAILED")
		w.count(e.EventName(), "error")
		return fmt.Errorf("worker: deduct stock for %s: %w", evt.TransactionID, err)
	}
	status := ""
	if res != nil {
		status = string(res.Status)
	}
	span.SetStatus(codes.Ok, status)
	w.count(e.EventName(), "success")
	w.log.Debug("event_handled",
		observability.F("transaction_id", evt.TransactionID),
		observability.F("payment_status", status),
		observability.F("latency_seconds", time.Since(start).Seconds()),
	)
	return nil
}

func (w *InventoryWorker) count(event, outcome string) {
	w.consumed.Add(1,
		observability.L("event", event),
		observability.L("outcome", outcome),
	)
}
