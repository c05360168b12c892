package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"
)

// RequestOptions is the closed set of recognized per-request option keys.
// Unknown keys are ignored with a warning.
type RequestOptions struct {
	MaxSteps          *int     `mapstructure:"max_steps"`
	Temperature       *float64 `mapstructure:"temperature"`
	RetrievalK        *int     `mapstructure:"retrieval_k"`
	RetrievalMinScore *float64 `mapstructure:"retrieval_min_score"`
	TimeoutMS         *int     `mapstructure:"timeout_ms"`
	PermitTools       []string `mapstructure:"permit_tools"`
	SaveConversation  bool     `mapstructure:"save_conversation"`
	ConversationID    string   `mapstructure:"conversation_id"`
}

// DecodeRequestOptions binds a free-form option bag to RequestOptions,
// logging a warning per unrecognized key.
func DecodeRequestOptions(bag map[string]interface{}, logger *slog.Logger) (*RequestOptions, error) {
	opts := &RequestOptions{}
	if len(bag) == 0 {
		return opts, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           opts,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build options decoder: %w", err)
	}
	if err := decoder.Decode(bag); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	for _, key := range md.Unused {
		logger.Warn("ignoring unknown option key", "key", key)
	}

	return opts, nil
}

// Timeout converts timeout_ms, or falls back to def.
func (o *RequestOptions) Timeout(def time.Duration) time.Duration {
	if o == nil || o.TimeoutMS == nil || *o.TimeoutMS <= 0 {
		return def
	}
	return time.Duration(*o.TimeoutMS) * time.Millisecond
}
