package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferedLogger(out *bytes.Buffer) *zap.Logger {
	ws := &zapcore.BufferedWriteSyncer{WS: zapcore.AddSync(out), Size: 64 * 1024}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, zapcore.InfoLevel)
	return zap.New(core)
}

func TestExitCode_FlushesFailure(t *testing.T) {
	var out bytes.Buffer
	logger := bufferedLogger(&out)

	code := exitCode(logger, errors.New("failed to connect to Redis"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "opencraft exited")
	assert.Contains(t, out.String(), "failed to connect to Redis")
}

func TestExitCode_Success(t *testing.T) {
	var out bytes.Buffer
	logger := bufferedLogger(&out)
	logger.Info("shutting down")

	assert.Equal(t, 0, exitCode(logger, nil))
	assert.Contains(t, out.String(), "shutting down")
}
