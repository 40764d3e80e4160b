package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	log.WithFields(map[string]interface{}{"operation": "accept"}).
		WithError(errors.New("boom")).
		Warn("operation failed", map[string]interface{}{"jobId": "job-1"})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctxMap := entries[0].ContextMap()
		assert.Equal(t, "operation failed", entries[0].Message)
		assert.Equal(t, "accept", ctxMap["operation"])
		assert.Equal(t, "job-1", ctxMap["jobId"])
		assert.Equal(t, "boom", ctxMap["error"])
	}
}

func TestMapToZapFields_Empty(t *testing.T) {
	assert.Nil(t, mapToZapFields(nil))
	assert.Nil(t, mapToZapFields(map[string]interface{}{}))
}

func TestContextLogger(t *testing.T) {
	fallback := NewNoOpLogger()
	assert.Equal(t, fallback, FromContext(context.Background(), fallback))

	scoped := NewTestLogger(t)
	ctx := NewContext(context.Background(), scoped)
	assert.Equal(t, scoped, FromContext(ctx, fallback))
}

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := New(level, "json")
		assert.NotNil(t, l)
	}
	assert.True(t, New("debug", "console").Core().Enabled(zap.DebugLevel))
	assert.False(t, New("error", "json").Core().Enabled(zap.WarnLevel))
}
