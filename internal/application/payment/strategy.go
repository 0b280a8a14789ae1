package payment

import (
	"context"
	"sort"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// CaptureRequest carries a pending payment and the parameters of the original request.
type CaptureRequest struct {
	Payment     *dompay.Payment
	OrderID     string
	ProductID   string
	CustomerID  string
	TotalAmount decimal.Decimal
}

// Method captures a payment for one payment mode. It returns SUCCESS or FAILED and
// has no side effects beyond its result; an implementation doing I/O bounds it itself.
type Method interface {
	Capture(ctx context.Context, req CaptureRequest) (dompay.Status, error)
}

// MethodFunc adapts a plain function to Method.
type MethodFunc func(ctx context.Context, req CaptureRequest) (dompay.Status, error)

func (f MethodFunc) Capture(ctx context.Context, req CaptureRequest) (dompay.Status, error) {
	return f(ctx, req)
}

// Registry maps payment modes to methods. It is fixed at construction and safe to share.
type Registry struct {
	methods map[dompay.Mode]Method
}

func NewRegistry(methods map[dompay.Mode]Method) *Registry {
	m := make(map[dompay.Mode]Method, len(methods))
	for mode, method := range methods {
		if method != nil {
			m[mode] = method
		}
	}
	return &Registry{methods: m}
}

func (r *Registry) Lookup(mode dompay.Mode) (Method, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.methods[mode]
	return m, ok
}

// Modes lists the registered modes in a stable order.
func (r *Registry) Modes() []dompay.Mode {
	if r == nil {
		return nil
	}
	out := make([]dompay.Mode, 0, len(r.methods))
	for mode := range r.methods {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
