package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/payflow/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "payflow/gateway"

// instrumented decorates a Gateway with spans, counters and structured logs.
type instrumented struct {
	next    domain.Gateway
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

func Instrument(next domain.Gateway, log *zap.Logger, metrics *obsmetrics.Metrics) domain.Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &instrumented{
		next:    next,
		log:     log.Named("gateway").With(zap.String("provider", next.Provider())),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

func (g *instrumented) Provider() string {
	return g.next.Provider()
}

func (g *instrumented) RequestConfirmation(ctx context.Context, req domain.ConfirmRequest) (*domain.Confirmation, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.confirm", trace.WithAttributes(
		attribute.String("gateway.provider", g.next.Provider()),
		attribute.String("payment.order_id", req.OrderID),
	))
	defer span.End()

	start := time.Now()
	res, err := g.next.RequestConfirmation(ctx, req)
	g.observe(ctx, span, "confirm", start, err, zap.String("order_id", req.OrderID), zap.Int64("amount", req.Amount))
	return res, err
}

func (g *instrumented) RequestCancellation(ctx context.Context, req domain.CancelRequest) (*domain.Cancellation, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.cancel", trace.WithAttributes(
		attribute.String("gateway.provider", g.next.Provider()),
	))
	defer span.End()

	start := time.Now()
	res, err := g.next.RequestCancellation(ctx, req)
	fields := []zap.Field{zap.String("payment_key", req.PaymentKey)}
	if req.CancelAmount != nil {
		fields = append(fields, zap.Int64("cancel_amount", *req.CancelAmount))
	}
	g.observe(ctx, span, "cancel", start, err, fields...)
	return res, err
}

func (g *instrumented) observe(ctx context.Context, span trace.Span, operation string, start time.Time, err error, fields ...zap.Field) {
	outcome := outcomeOf(err)
	g.metrics.RecordGatewayRequest(ctx, g.next.Provider(), operation, outcome)

	fields = append(fields,
		zap.String("operation", operation),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		g.log.Warn("gateway.request.failed", append(fields, zap.String("reason", domain.RejectionReason(err)))...)
		return
	}
	g.log.Info("gateway.request.succeeded", fields...)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrGatewayRejected):
		return "rejected"
	default:
		return "error"
	}
}
