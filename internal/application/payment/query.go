package payment

import (
	"context"
	"errors"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const useCasePaymentGet = "payment.get"

type GetPaymentUseCase struct {
	repo       dompay.Repository
	tracer     observability.Tracer
	reqCounter observability.Counter
}

func NewGetPaymentUseCase(repo dompay.Repository, tel observability.Observability) *GetPaymentUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &GetPaymentUseCase{
		repo:       repo,
		tracer:     tel.Tracer(),
		reqCounter: tel.Metrics().Counter(observability.MUsecaseRequests),
	}
}

func (uc *GetPaymentUseCase) Execute(ctx context.Context, transactionID string) (*dompay.Payment, error) {
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"GetPayment",
		attribute.String("use_case", useCasePaymentGet),
		attribute.String("payment.transaction_id", transactionID),
	)
	defer span.End()

	p, err := uc.repo.Get(ctx, transactionID)
	outcome := "success"
	switch {
	case errors.Is(err, dompay.ErrNotFound):
		outcome = "not_found"
		span.SetStatus(codes.Error, "NOT_FOUND")
		err = dompay.ErrNotFound
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "REPO_GET_FAILED")
		err = wrapRepositoryError(err)
	}
	uc.reqCounter.Add(1,
		observability.L("use_case", useCasePaymentGet),
		observability.L("outcome", outcome),
	)
	return p, err
}
