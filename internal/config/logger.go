package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON production logger for "prod" and a console
// development logger otherwise.
func NewLogger(level, env string) (*zap.Logger, error) {
	var zapCfg zap.Config

	if env == "prod" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	return zapCfg.Build()
}
