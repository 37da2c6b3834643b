package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
)

const (
	// FieldProvider is the structured log field key for the assistant provider name.
	FieldProvider = "assistant_provider"
	// FieldModel is the structured log field key for the assistant model identifier.
	FieldModel = "assistant_model"

	FieldPlatform  = "platform"
	FieldKeyword   = "keyword"
	FieldCandidate = "candidate"
	FieldTitle     = "title"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes the assistant provider and model. Empty values are dropped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the assistant fields to the logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// SearchFields identify one configured search.
func SearchFields(platform, keyword string) []zap.Field {
	return StringFields(
		StringField{Key: FieldPlatform, Value: platform},
		StringField{Key: FieldKeyword, Value: keyword},
	)
}

// CandidateFields identify one posting.
func CandidateFields(c jobs.Candidate) []zap.Field {
	return StringFields(
		StringField{Key: FieldCandidate, Value: c.Key().String()},
		StringField{Key: FieldTitle, Value: c.Title},
	)
}
