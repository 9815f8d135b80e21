package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/civic-tracker-api/pkg/config"
	"github.com/noah-isme/civic-tracker-api/pkg/middleware/requestid"
)

const serviceName = "civic-tracker-api"

// New builds the process logger. Production uses sampled JSON at info;
// other environments log every entry with caller info. LOG_FORMAT=console
// switches to the human readable encoder and an unparsable LOG_LEVEL falls
// back to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Log.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("service", serviceName), zap.String("env", cfg.Env)}
	if host, err := os.Hostname(); err == nil {
		fields = append(fields, zap.String("host", host))
	}
	return l.With(fields...), nil
}

// GinMiddleware logs one line per request. Routes listed in quiet are logged
// at debug while they succeed; client errors log at warn and server errors at error.
func GinMiddleware(l *zap.Logger, quiet ...string) gin.HandlerFunc {
	quietRoutes := make(map[string]struct{}, len(quiet))
	for _, route := range quiet {
		quietRoutes[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes", c.Writer.Size()),
			zap.String("ip", c.ClientIP()),
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		_, isQuiet := quietRoutes[route]
		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		case isQuiet:
			l.Debug("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
