package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/payflow/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(nil, Config{ServiceName: "payflow", Level: "debug", Stacktraces: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, log, zap.L())
}

func TestWithContextAddsActorAndRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithActor(context.Background(), "system", "scheduler")
	ctx = obscontext.WithRunID(ctx, "run-1")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "system", fields["actor_type"])
	assert.Equal(t, "scheduler", fields["actor_id"])
	assert.Equal(t, "run-1", fields["run_id"])
	_, hasTrace := fields["trace_id"]
	assert.False(t, hasTrace)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("  update wallets set pending_balance = 1"))
	assert.Equal(t, "DELETE", operationFromSQL("delete from notifications where id = 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	log := NewGormLogger(ParseGormLevel("warn"), 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT * FROM wallets WHERE user_id = ?", 0 }

	log.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	log.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])

	log.Trace(context.Background(), time.Now(), sql, errors.New("disk full"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)

	log.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("disk full"))
	assert.Equal(t, 2, logs.Len())
}
