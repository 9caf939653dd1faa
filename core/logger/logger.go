package logger

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger from cfg. A debug level selects zap's
// development preset; anything else starts from the production preset.
func New(cfg *Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := preset(level.Level())
	zc.Level = level
	zc.Encoding, zc.EncoderConfig = encoder(cfg.Format, zc.EncoderConfig)
	if zc.Encoding == "console" {
		zc.DisableStacktrace = true
	}
	return zc.Build()
}

func parseLevel(name string) (zap.AtomicLevel, error) {
	if name == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	return zap.ParseAtomicLevel(name)
}

func preset(level zapcore.Level) zap.Config {
	if level == zapcore.DebugLevel {
		return zap.NewDevelopmentConfig()
	}
	return zap.NewProductionConfig()
}

func encoder(format string, ec zapcore.EncoderConfig) (string, zapcore.EncoderConfig) {
	ec.LevelKey = "level"
	ec.TimeKey = "time"
	ec.MessageKey = "message"
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return "console", ec
	}
	return "json", ec
}

// WithRayID tags l with the ray_id local of an API request, if any.
func WithRayID(l *zap.Logger, c *fiber.Ctx) *zap.Logger {
	if rid, ok := c.Locals("ray_id").(string); ok && rid != "" {
		return l.With(zap.String("ray_id", rid))
	}
	return l
}

// WithBatch tags l with the batch being reconciled.
func WithBatch(l *zap.Logger, batchID, topic string) *zap.Logger {
	return l.With(zap.String("batch_id", batchID), zap.String("topic", topic))
}
