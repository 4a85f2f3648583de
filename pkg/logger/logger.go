package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/agromarket-api/pkg/config"
	"github.com/noah-isme/agromarket-api/pkg/middleware/requestid"
)

const serviceName = "agromarket-api"

// New builds the process logger. Production runs use zap's production preset,
// everything else the development preset. An unparsable level falls back to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	base := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		base = zap.NewProductionConfig()
	}

	base.Encoding = "json"
	if cfg.Log.Format == "console" {
		base.Encoding = "console"
	}

	if cfg.Log.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			lvl = zapcore.InfoLevel
		}
		base.Level = zap.NewAtomicLevelAt(lvl)
	}

	base.EncoderConfig.TimeKey = "timestamp"
	base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := base.Build()
	if err != nil {
		return nil, err
	}
	return built.With(zap.String("service", serviceName)), nil
}

// GinMiddleware writes an access line once the handler chain has finished.
// Server errors go out at error level with the gin error list attached.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		code := c.Writer.Status()
		entry := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", code),
			zap.Duration("latency", time.Since(began)),
			zap.String("ip", c.ClientIP()),
		}
		if id := requestid.Value(c); id != "" {
			entry = append(entry, zap.String("request_id", id))
		}

		if code < 500 {
			l.Info("http_request", entry...)
			return
		}
		if errs := c.Errors.String(); errs != "" {
			entry = append(entry, zap.String("errors", errs))
		}
		l.Error("http_request", entry...)
	}
}
