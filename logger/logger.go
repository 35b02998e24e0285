package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 是全局的 SugaredLogger，Init 之前为 no-op
var Log = zap.NewNop().Sugar()

// Init 初始化全局日志，level 为空时使用 info
func Init(level string) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			panic("invalid log level: " + level)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// L returns the structured logger behind Log.
func L() *zap.Logger {
	return Log.Desugar()
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}
