package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production gets JSON at info level,
// everything else gets the colored development encoder at debug level.
func NewLogger(env, service string) (*zap.Logger, error) {
	var config zap.Config

	if env == "prod" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(service), nil
}

// NewSugar is NewLogger with the sugared API that the rest of the codebase uses.
func NewSugar(env, service string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env, service)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
