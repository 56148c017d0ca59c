package convert

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the convert package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the convert package's logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
