package gateway

import (
	"context"
	"testing"

	"github.com/smallbiznis/payflow/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payflow/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInstrumentLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base, err := sandbox.NewFactory().NewAdapter(domain.AdapterConfig{})
	require.NoError(t, err)
	gw := Instrument(base, zap.New(core), nil)

	_, err = gw.RequestConfirmation(context.Background(), domain.ConfirmRequest{
		PaymentKey: "pk_ok", OrderID: "ord_1", Amount: 1000,
	})
	require.NoError(t, err)

	_, err = gw.RequestConfirmation(context.Background(), domain.ConfirmRequest{
		PaymentKey: sandbox.TimeoutPrefix + "1", OrderID: "ord_2", Amount: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrGatewayRejected)

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "gateway.request.succeeded", entries[0].Message)
	assert.Equal(t, "gateway.request.failed", entries[1].Message)
	assert.Equal(t, "timeout", entries[1].ContextMap()["outcome"])
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "success", outcomeOf(nil))
	assert.Equal(t, "timeout", outcomeOf(domain.ErrGatewayTimeout))
	assert.Equal(t, "rejected", outcomeOf(&domain.RejectedError{Code: "X"}))
	assert.Equal(t, "error", outcomeOf(domain.ErrInvalidRequest))
}
