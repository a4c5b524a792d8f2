package logger

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base *zap.Logger
	once sync.Once
)

// New builds the process-wide logger once. Production uses JSON output, every other
// environment uses the colored console encoder.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.InitialFields = map[string]interface{}{"env": env}

		base, err = cfg.Build()
	})

	return base, err
}

// RequestIDKey stores the request identifier on a context.
type RequestIDKey struct{}

// WithContext returns the base logger annotated with the request id, if any.
func WithContext(ctx context.Context) *zap.Logger {
	lg := base
	if lg == nil {
		lg = zap.NewNop()
	}
	if ctx == nil {
		return lg
	}
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok && id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}

var emailPattern = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail keeps up to three leading characters and the domain: john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	if m := emailPattern.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return "***" + email[at:]
	}
	return "***"
}

// MaskIP hides the host part: the last two IPv4 octets or all but the first four IPv6 groups.
func MaskIP(ip string) string {
	switch {
	case ip == "":
		return ""
	case strings.Count(ip, ".") == 3:
		parts := strings.Split(ip, ".")
		return parts[0] + "." + parts[1] + ".*.*"
	case strings.Contains(ip, ":"):
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}
	return "***"
}
