package config

import (
	"fmt"
	"os"
	"strings"

	"speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
)

// ConfigValidator collects configuration problems before the runtime is built
type ConfigValidator struct {
	logger   *logrus.Logger
	errors   []ValidationError
	warnings []ValidationWarning
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Rule    string      `json:"rule"`
	Message string      `json:"message"`
}

// ValidationWarning represents a configuration validation warning
type ValidationWarning struct {
	Field      string      `json:"field"`
	Value      interface{} `json:"value"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Summary  string              `json:"summary"`
}

var (
	validProviders       = []string{"openai", "google", "amazon", "mock"}
	validHistoryBackends = []string{"json", "sqlite", "memory"}
	validPermissionModes = []string{"file", "prompt", "granted", "denied"}
)

// NewConfigValidator creates a new configuration validator
func NewConfigValidator(logger *logrus.Logger) *ConfigValidator {
	return &ConfigValidator{logger: logger}
}

// ValidateConfig validates the entire configuration
func (v *ConfigValidator) ValidateConfig(config *Config) *ValidationResult {
	v.errors = make([]ValidationError, 0)
	v.warnings = make([]ValidationWarning, 0)

	v.validateRecordingConfig(config)
	v.validateSTTConfig(config)
	v.validateHistoryConfig(config)
	v.validateHTTPConfig(config)
	v.validatePermissionConfig(config)
	v.validateLoggingConfig(config)

	result := &ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
		Summary:  v.generateSummary(),
	}

	for _, err := range v.errors {
		v.logger.WithFields(logrus.Fields{
			"field": err.Field,
			"value": err.Value,
			"rule":  err.Rule,
		}).Error(err.Message)
	}
	for _, warning := range v.warnings {
		v.logger.WithFields(logrus.Fields{
			"field":      warning.Field,
			"value":      warning.Value,
			"suggestion": warning.Suggestion,
		}).Warn(warning.Message)
	}

	return result
}

func (v *ConfigValidator) validateRecordingConfig(config *Config) {
	rec := config.Recording
	if rec.MaxDurationSeconds <= 0 {
		v.addError("recording.max_duration_seconds", rec.MaxDurationSeconds, "positive", "RECORDING_MAX_SECONDS must be positive")
	}
	if rec.TickInterval <= 0 {
		v.addError("recording.tick_interval", rec.TickInterval, "positive", "RECORDING_TICK_INTERVAL must be positive")
	}
	if config.Gate.MinSeconds < 0 {
		v.addError("gate.min_seconds", config.Gate.MinSeconds, "non_negative", "GATE_MIN_SECONDS must not be negative")
	}
	if config.Gate.MinSeconds > rec.MaxDurationSeconds {
		v.addError("gate.min_seconds", config.Gate.MinSeconds, "range",
			fmt.Sprintf("GATE_MIN_SECONDS (%d) exceeds RECORDING_MAX_SECONDS (%d); no recording could pass", config.Gate.MinSeconds, rec.MaxDurationSeconds))
	}
	if strings.TrimSpace(rec.FFmpegPath) == "" {
		v.addError("recording.ffmpeg_path", rec.FFmpegPath, "required", "FFMPEG_PATH must not be empty")
	}
}

func (v *ConfigValidator) validateSTTConfig(config *Config) {
	stt := config.STT
	if !contains(validProviders, stt.Provider) {
		v.addError("stt.provider", stt.Provider, "enum", fmt.Sprintf("STT_PROVIDER must be one of %s", strings.Join(validProviders, ", ")))
		return
	}
	if stt.Timeout <= 0 {
		v.addError("stt.timeout", stt.Timeout, "positive", "STT_TIMEOUT must be positive")
	}

	switch stt.Provider {
	case "openai":
		if stt.OpenAI.APIKey == "" {
			v.addWarning("stt.openai.api_key", "", "OPENAI_API_KEY is empty", "Requests will only succeed against endpoints that need no key")
		}
	case "google":
		if stt.Google.CredentialsFile == "" && stt.Google.APIKey == "" {
			v.addWarning("stt.google", "", "No Google credentials configured", "Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_STT_API_KEY, or rely on application default credentials")
		}
		if stt.Google.CredentialsFile != "" && !fileExists(stt.Google.CredentialsFile) {
			v.addError("stt.google.credentials_file", stt.Google.CredentialsFile, "exists", "GOOGLE_APPLICATION_CREDENTIALS file does not exist")
		}
	case "amazon":
		if stt.Amazon.ChunkSize <= 0 {
			v.addError("stt.amazon.chunk_size", stt.Amazon.ChunkSize, "positive", "AMAZON_TRANSCRIBE_CHUNK_SIZE must be positive")
		}
	}
}

func (v *ConfigValidator) validateHistoryConfig(config *Config) {
	if !contains(validHistoryBackends, config.History.Backend) {
		v.addError("history.backend", config.History.Backend, "enum", fmt.Sprintf("HISTORY_BACKEND must be one of %s", strings.Join(validHistoryBackends, ", ")))
	}
	if config.History.Backend == "memory" {
		v.addWarning("history.backend", "memory", "History will not survive a restart", "Use json or sqlite for persistent history")
	}
}

func (v *ConfigValidator) validateHTTPConfig(config *Config) {
	if config.HTTP.Port < 1 || config.HTTP.Port > 65535 {
		v.addError("http.port", config.HTTP.Port, "range", "HTTP_PORT must be between 1 and 65535")
	}
	if config.HTTP.Host != "127.0.0.1" && config.HTTP.Host != "localhost" {
		v.addWarning("http.host", config.HTTP.Host, "Control API is reachable from other hosts", "The API has no authentication; bind to 127.0.0.1")
	}
}

func (v *ConfigValidator) validatePermissionConfig(config *Config) {
	if !contains(validPermissionModes, config.Permission.Mode) {
		v.addError("permission.mode", config.Permission.Mode, "enum", fmt.Sprintf("PERMISSION_MODE must be one of %s", strings.Join(validPermissionModes, ", ")))
	}
}

func (v *ConfigValidator) validateLoggingConfig(config *Config) {
	if config.Logging.OutputFile != "" && config.Logging.MaxSizeMB <= 0 {
		v.addError("logging.max_size_mb", config.Logging.MaxSizeMB, "positive", "LOG_MAX_SIZE_MB must be positive when LOG_OUTPUT_FILE is set")
	}
}

// validateConfig runs the validator and fails on any error
func validateConfig(logger *logrus.Logger, config *Config) error {
	result := NewConfigValidator(logger).ValidateConfig(config)
	if result.Valid {
		return nil
	}

	first := result.Errors[0]
	return errors.NewInvalidInput(first.Message, map[string]interface{}{
		"field":       first.Field,
		"error_count": len(result.Errors),
	})
}

func (v *ConfigValidator) addError(field string, value interface{}, rule, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	})
}

func (v *ConfigValidator) addWarning(field string, value interface{}, message, suggestion string) {
	v.warnings = append(v.warnings, ValidationWarning{
		Field:      field,
		Value:      value,
		Message:    message,
		Suggestion: suggestion,
	})
}

func (v *ConfigValidator) generateSummary() string {
	if len(v.errors) == 0 && len(v.warnings) == 0 {
		return "Configuration validation passed successfully"
	}

	summary := ""
	if len(v.errors) > 0 {
		summary += fmt.Sprintf("%d validation error(s)", len(v.errors))
	}

	if len(v.warnings) > 0 {
		if summary != "" {
			summary += " and "
		}
		summary += fmt.Sprintf("%d warning(s)", len(v.warnings))
	}

	return summary + " found"
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
