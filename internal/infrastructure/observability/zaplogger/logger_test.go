package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapCarriesFieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).With(observability.F("service", "payment-service"))

	l.Warn("inventory_request_failed", observability.F("error", errors.New("refused")), observability.F("status_code", 503))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "payment-service", ctx["service"])
	assert.Equal(t, "refused", ctx["error"])
	assert.EqualValues(t, 503, ctx["status_code"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud")
	assert.Error(t, err)

	l, err := New("debug", observability.F("env", "test"))
	require.NoError(t, err)
	assert.True(t, l.Zap().Core().Enabled(zapcore.DebugLevel))
}
