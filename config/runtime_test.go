package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRuntime_ReadsTypedValues(t *testing.T) {
	source := StaticSource{
		KeyGatewayEnabled:  "false",
		KeyAuthLimitMax:    "25",
		KeyAuthLimitWindow: "90s",
	}
	rt := NewRuntime(source, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.False(t, rt.Bool(ctx, KeyGatewayEnabled, true))
	assert.Equal(t, 25, rt.Int(ctx, KeyAuthLimitMax, 100))
	assert.Equal(t, 90*time.Second, rt.Duration(ctx, KeyAuthLimitWindow, time.Minute))
}

func TestRuntime_MissingKeyFallsBackToDefault(t *testing.T) {
	rt := NewRuntime(StaticSource{}, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.True(t, rt.Bool(ctx, KeyGatewayEnabled, true))
	assert.Equal(t, 120, rt.Int(ctx, KeyAuthLimitMax, 120))
}

func TestRuntime_InvalidValueFallsBackToDefault(t *testing.T) {
	source := StaticSource{KeyAuthLimitMax: "not-a-number"}
	rt := NewRuntime(source, time.Minute, zap.NewNop())

	assert.Equal(t, 120, rt.Int(context.Background(), KeyAuthLimitMax, 120))
}

func TestRuntime_SourceErrorKeepsServingDefaults(t *testing.T) {
	source := SourceFunc(func(_ context.Context, _ string) (string, bool, error) {
		return "", false, errors.New("source down")
	})
	rt := NewRuntime(source, time.Minute, zap.NewNop())

	assert.True(t, rt.Bool(context.Background(), KeyGatewayEnabled, true))
}

func TestRuntime_CachesWithinTTL(t *testing.T) {
	lookups := 0
	source := SourceFunc(func(_ context.Context, _ string) (string, bool, error) {
		lookups++
		return "50", true, nil
	})
	rt := NewRuntime(source, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Equal(t, 50, rt.Int(ctx, KeyAuthLimitMax, 10))
	}
	assert.Equal(t, 1, lookups)

	rt.Invalidate(KeyAuthLimitMax)
	assert.Equal(t, 50, rt.Int(ctx, KeyAuthLimitMax, 10))
	assert.Equal(t, 2, lookups)
}
