// Package logging builds the console logger used for every diagnostic line
// emitted during a checkoutrace run.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a human-readable console logger writing to w at the given level.
// An empty level means "info". A nil writer means stderr.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		lvl,
	)
	return zap.New(core), nil
}

// ParseLevel maps a textual level onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(trimmed)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (use debug, info, warn or error)", level)
	}
	return lvl, nil
}

// FailureLogger reports failed iterations when --log-errors is set.
type FailureLogger struct {
	logger *zap.Logger
}

func NewFailureLogger(l *zap.Logger) *FailureLogger {
	return &FailureLogger{logger: l}
}

func (f *FailureLogger) LogFailure(scenario string, err error) {
	f.logger.Error("iteration failed", zap.String("scenario", scenario), zap.Error(err))
}
