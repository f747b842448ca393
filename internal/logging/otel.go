package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const bridgeName = "github.com/fyrsmithlabs/codesearch"

// newDualCore tees base with an otelzap core writing to provider. The otel
// side gets the configured level, static fields and sampling.
func newDualCore(base zapcore.Core, cfg *Config, provider log.LoggerProvider) zapcore.Core {
	var otelCore zapcore.Core = &levelRangeCore{
		Core: otelzap.NewCore(bridgeName, otelzap.WithLoggerProvider(provider)),
		min:  cfg.Level,
		max:  zapcore.FatalLevel,
	}
	if len(cfg.Fields) > 0 {
		fields := make([]zapcore.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		otelCore = otelCore.With(fields)
	}
	return zapcore.NewTee(base, newSampledCore(otelCore, cfg.Sampling))
}

// WithOTel returns a logger that also exports every entry through provider.
// A nil provider returns l unchanged.
func (l *Logger) WithOTel(provider log.LoggerProvider) *Logger {
	if provider == nil {
		return l
	}
	zl := l.zap.WithOptions(zap.WrapCore(func(base zapcore.Core) zapcore.Core {
		return newDualCore(base, l.config, provider)
	}))
	return &Logger{zap: zl, config: l.config}
}
