package payment

import (
	"encoding/json"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentCompletedEventWireFormat(t *testing.T) {
	p := &Payment{TransactionID: "tx-9"}
	data, err := json.Marshal(NewPaymentCompletedEvent(p, "P", 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"productId":"P","quantity":5,"transactionId":"tx-9"}`, string(data))

	evt, err := DecodePaymentCompletedEvent(data)
	require.NoError(t, err)
	assert.Equal(t, TopicPaymentCompleted, evt.EventName())
}

func TestDecodePaymentStatusEvent(t *testing.T) {
	evt, err := DecodePaymentStatusEvent([]byte(`{"productId":"P","quantity":5,"transactionId":"tx-1","paymentStatus":"FAILED"}`))
	require.NoError(t, err)
	got, ok := evt.(PaymentStatusEvent)
	require.True(t, ok)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Equal(t, StatusFailed, got.PaymentStatus)

	malformed := []string{
		`not json`,
		`{"productId":"P","quantity":5,"paymentStatus":"FAILED"}`,
		`{"transactionId":"tx-1","paymentStatus":"PENDING"}`,
		`{"transactionId":"tx-1","paymentStatus":"REFUNDED"}`,
		`{"transactionId":"tx-1"}`,
	}
	for _, raw := range malformed {
		_, err := DecodePaymentStatusEvent([]byte(raw))
		assert.ErrorIs(t, err, domoutbox.ErrMalformedEvent, raw)
	}
}
