package logger

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

// New builds the process logger for env and installs it as the base for WithContext.
func New(env string) (*zap.Logger, error) {
	lg, err := configFor(env).Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	lg = lg.With(zap.String("env", env))
	base.Store(lg)
	return lg, nil
}

func configFor(env string) zap.Config {
	switch env {
	case "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	case "test":
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		return cfg
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
}

// WithContext returns the base logger with the request and trace IDs found on ctx.
// Before New has run it returns a no-op logger.
func WithContext(ctx context.Context) *zap.Logger {
	lg := base.Load()
	if lg == nil {
		return zap.NewNop()
	}
	if ctx == nil {
		return lg
	}

	fields := make([]zap.Field, 0, 2)
	if id := stringFromContext(ctx, RequestIDKey{}); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := stringFromContext(ctx, TraceIDKey{}); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return lg.With(fields...)
}

func stringFromContext(ctx context.Context, key any) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// TraceIDKey is used to store the propagated trace identifier on the context.
type TraceIDKey struct{}

// MaskEmail keeps up to three leading characters of the local part and the domain:
// john.doe@example.com -> joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***@" + domain
}

// MaskIP keeps the network half of an address: two octets for IPv4, four
// groups for IPv6. Unparseable input is fully masked.
func MaskIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + ".*.*"
	}

	b := addr.As16()
	groups := make([]string, 0, 8)
	for i := 0; i < 8; i += 2 {
		groups = append(groups, strconv.FormatUint(uint64(b[i])<<8|uint64(b[i+1]), 16))
	}
	return strings.Join(groups, ":") + ":*:*:*:*"
}

// MaskSecret never reveals any part of a recovery key, backup code or secret
// key; only its length survives, which is enough to spot formatting mistakes.
func MaskSecret(s string) string {
	return "[redacted:" + strconv.Itoa(len(s)) + "]"
}
