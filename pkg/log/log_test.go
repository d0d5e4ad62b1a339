package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ToLogLevel(in), in)
	}
}

func TestZerologLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, zerolog.DebugLevel)
	logger := p.GetLoggerWithName("training").With(ComponentKey, "mlp")

	logger.Info("Training completed",
		OperationKey, OperationFit,
		SamplesKey, 1600,
		AccuracyKey, 0.93,
	)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "training", rec["logger"])
	assert.Equal(t, "mlp", rec[ComponentKey])
	assert.Equal(t, OperationFit, rec[OperationKey])
	assert.EqualValues(t, 1600, rec[SamplesKey])
	assert.InDelta(t, 0.93, rec[AccuracyKey], 1e-12)
	assert.Equal(t, "Training completed", rec["message"])
}

func TestErrorAttachesLeadingError(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, zerolog.InfoLevel)
	p.GetLogger().Error("load failed", errors.New("boom"), PathKey, "/tmp/x")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "/tmp/x", rec[PathKey])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, zerolog.WarnLevel)
	p.GetLogger().Debug("hidden")
	p.GetLogger().Info("hidden")
	assert.Zero(t, buf.Len())
	p.GetLogger().Warn("shown")
	assert.NotZero(t, buf.Len())
}
