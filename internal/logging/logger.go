package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates the production JSON logger carrying a service field.
func NewLogger(serviceName, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = parsed
	}
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}
	return config.Build()
}

// WithRequestID returns a logger with request_id field.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}
