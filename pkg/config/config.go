package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"speechcoach/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	DataDir    string           `json:"data_dir"`
	Recording  RecordingConfig  `json:"recording"`
	Gate       GateConfig       `json:"gate"`
	STT        STTConfig        `json:"stt"`
	History    HistoryConfig    `json:"history"`
	HTTP       HTTPConfig       `json:"http"`
	Logging    LoggingConfig    `json:"logging"`
	Messaging  MessagingConfig  `json:"messaging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Permission PermissionConfig `json:"permission"`
}

// RecordingConfig holds microphone capture settings
type RecordingConfig struct {
	// Directory where recordings are written
	Directory string `json:"directory" env:"RECORDING_DIR" default:"<data>/recordings"`

	// Session ceiling in seconds; the session stops itself when reached
	MaxDurationSeconds int `json:"max_duration_seconds" env:"RECORDING_MAX_SECONDS" default:"60"`

	// Interval between elapsed-time ticks
	TickInterval time.Duration `json:"tick_interval" env:"RECORDING_TICK_INTERVAL" default:"1s"`

	// ffmpeg binary and capture input
	FFmpegPath  string `json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	InputFormat string `json:"input_format" env:"FFMPEG_INPUT_FORMAT"`
	InputDevice string `json:"input_device" env:"FFMPEG_INPUT_DEVICE"`

	SampleRate int `json:"sample_rate" env:"RECORDING_SAMPLE_RATE" default:"16000"`

	// How long to wait for ffmpeg to finalize the file before killing it
	StopGrace time.Duration `json:"stop_grace" env:"RECORDING_STOP_GRACE" default:"3s"`
}

// GateConfig holds the minimum-duration admission setting
type GateConfig struct {
	MinSeconds int `json:"min_seconds" env:"GATE_MIN_SECONDS" default:"30"`
}

// STTConfig holds transcription provider configuration
type STTConfig struct {
	Provider string        `json:"provider" env:"STT_PROVIDER" default:"openai"`
	Timeout  time.Duration `json:"timeout" env:"STT_TIMEOUT" default:"60s"`

	OpenAI OpenAISTTConfig `json:"openai"`
	Google GoogleSTTConfig `json:"google"`
	Amazon AmazonSTTConfig `json:"amazon"`
	Mock   MockSTTConfig   `json:"mock"`
}

// OpenAISTTConfig holds settings for OpenAI-compatible transcription endpoints
type OpenAISTTConfig struct {
	APIKey         string `json:"-" env:"OPENAI_API_KEY"`
	OrganizationID string `json:"organization_id" env:"OPENAI_ORGANIZATION_ID"`
	BaseURL        string `json:"base_url" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model          string `json:"model" env:"OPENAI_STT_MODEL" default:"whisper-1"`
	Language       string `json:"language" env:"OPENAI_STT_LANGUAGE"`
	Prompt         string `json:"prompt" env:"OPENAI_STT_PROMPT"`
}

// GoogleSTTConfig holds Google Cloud Speech settings
type GoogleSTTConfig struct {
	CredentialsFile   string `json:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	APIKey            string `json:"-" env:"GOOGLE_STT_API_KEY"`
	Language          string `json:"language" env:"GOOGLE_STT_LANGUAGE" default:"en-US"`
	Model             string `json:"model" env:"GOOGLE_STT_MODEL"`
	EnablePunctuation bool   `json:"enable_punctuation" env:"GOOGLE_STT_PUNCTUATION" default:"true"`
}

// AmazonSTTConfig holds Amazon Transcribe settings
type AmazonSTTConfig struct {
	Region          string `json:"region" env:"AWS_REGION" default:"us-east-1"`
	AccessKeyID     string `json:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"AWS_SECRET_ACCESS_KEY"`
	Language        string `json:"language" env:"AMAZON_TRANSCRIBE_LANGUAGE" default:"en-US"`
	ChunkSize       int    `json:"chunk_size" env:"AMAZON_TRANSCRIBE_CHUNK_SIZE" default:"8192"`
}

// MockSTTConfig holds the fixed transcript returned by the mock provider
type MockSTTConfig struct {
	Transcript string `json:"transcript" env:"MOCK_TRANSCRIPT"`
}

// HistoryConfig selects and locates the history store
type HistoryConfig struct {
	// Backend is one of json, sqlite or memory
	Backend    string `json:"backend" env:"HISTORY_BACKEND" default:"json"`
	Path       string `json:"path" env:"HISTORY_PATH" default:"<data>/history.json"`
	SQLitePath string `json:"sqlite_path" env:"HISTORY_SQLITE_PATH" default:"<data>/history.db"`
}

// HTTPConfig holds the control API settings
type HTTPConfig struct {
	Host          string        `json:"host" env:"HTTP_HOST" default:"127.0.0.1"`
	Port          int           `json:"port" env:"HTTP_PORT" default:"8080"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"120s"`
	EnableMetrics bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	// Log level
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`

	// Log output file (empty = stdout), rotated when set
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" env:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays int    `json:"max_age_days" env:"LOG_MAX_AGE_DAYS" default:"28"`
	Compress   bool   `json:"compress" env:"LOG_COMPRESS" default:"false"`
}

// MessagingConfig holds the optional AMQP entry publisher settings
type MessagingConfig struct {
	Enabled   bool   `json:"enabled" env:"AMQP_ENABLED" default:"false"`
	AMQPUrl   string `json:"-" env:"AMQP_URL"`
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"speechcoach.entries"`
}

// MetricsConfig toggles Prometheus collection
type MetricsConfig struct {
	Enabled bool `json:"enabled" env:"METRICS_ENABLED" default:"true"`
}

// PermissionConfig selects how microphone consent is obtained
type PermissionConfig struct {
	// Mode is one of file, prompt, granted or denied
	Mode        string `json:"mode" env:"PERMISSION_MODE" default:"file"`
	ConsentFile string `json:"consent_file" env:"PERMISSION_FILE" default:"<data>/microphone.consent"`
}

// Load loads the configuration from .env and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	loadDotEnv(logger)

	config := &Config{
		DataDir: getEnv("DATA_DIR", "./data"),
	}

	loadRecordingConfig(logger, config.DataDir, &config.Recording)
	config.Gate.MinSeconds = getEnvInt("GATE_MIN_SECONDS", 30)
	loadSTTConfig(logger, &config.STT)
	loadHistoryConfig(config.DataDir, &config.History)
	loadHTTPConfig(&config.HTTP)
	loadLoggingConfig(logger, &config.Logging)
	loadMessagingConfig(logger, &config.Messaging)
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", true)
	config.Permission.Mode = strings.ToLower(getEnv("PERMISSION_MODE", "file"))
	config.Permission.ConsentFile = getEnv("PERMISSION_FILE", filepath.Join(config.DataDir, "microphone.consent"))

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if err := ensureDirectories(logger, config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadDotEnv(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	for _, envFile := range []string{".env", "../.env"} {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			logger.WithError(loadErr).WithField("path", absPath).Warn("Failed to load .env file")
			continue
		}
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        absPath,
		}).Debug("Loaded .env file")
		return
	}

	logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
}

func loadRecordingConfig(logger *logrus.Logger, dataDir string, config *RecordingConfig) {
	config.Directory = getEnv("RECORDING_DIR", filepath.Join(dataDir, "recordings"))
	config.MaxDurationSeconds = getEnvInt("RECORDING_MAX_SECONDS", 60)
	config.TickInterval = getEnvDuration("RECORDING_TICK_INTERVAL", time.Second)
	config.FFmpegPath = getEnv("FFMPEG_PATH", "ffmpeg")

	defFormat, defDevice := defaultCaptureInput()
	config.InputFormat = getEnv("FFMPEG_INPUT_FORMAT", defFormat)
	config.InputDevice = getEnv("FFMPEG_INPUT_DEVICE", defDevice)

	config.SampleRate = getEnvInt("RECORDING_SAMPLE_RATE", 16000)
	config.StopGrace = getEnvDuration("RECORDING_STOP_GRACE", 3*time.Second)

	if config.SampleRate != 8000 && config.SampleRate != 16000 && config.SampleRate != 48000 {
		logger.Warnf("Unusual RECORDING_SAMPLE_RATE %d, defaulting to 16000", config.SampleRate)
		config.SampleRate = 16000
	}
}

// defaultCaptureInput returns the ffmpeg input format and device for the host OS
func defaultCaptureInput() (string, string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func loadSTTConfig(logger *logrus.Logger, config *STTConfig) {
	config.Provider = strings.ToLower(getEnv("STT_PROVIDER", "openai"))
	config.Timeout = getEnvDuration("STT_TIMEOUT", 60*time.Second)

	config.OpenAI.APIKey = getEnv("OPENAI_API_KEY", "")
	config.OpenAI.OrganizationID = getEnv("OPENAI_ORGANIZATION_ID", "")
	config.OpenAI.BaseURL = strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/")
	config.OpenAI.Model = getEnv("OPENAI_STT_MODEL", "whisper-1")
	config.OpenAI.Language = getEnv("OPENAI_STT_LANGUAGE", "")
	config.OpenAI.Prompt = getEnv("OPENAI_STT_PROMPT", "")

	config.Google.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	config.Google.APIKey = getEnv("GOOGLE_STT_API_KEY", "")
	config.Google.Language = getEnv("GOOGLE_STT_LANGUAGE", "en-US")
	config.Google.Model = getEnv("GOOGLE_STT_MODEL", "")
	config.Google.EnablePunctuation = getEnvBool("GOOGLE_STT_PUNCTUATION", true)

	config.Amazon.Region = getEnv("AWS_REGION", "us-east-1")
	config.Amazon.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	config.Amazon.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	config.Amazon.Language = getEnv("AMAZON_TRANSCRIBE_LANGUAGE", "en-US")
	config.Amazon.ChunkSize = getEnvInt("AMAZON_TRANSCRIBE_CHUNK_SIZE", 8192)

	config.Mock.Transcript = getEnv("MOCK_TRANSCRIPT", "")

	if config.Provider == "openai" && config.OpenAI.APIKey == "" {
		logger.Warn("STT provider is openai but OPENAI_API_KEY is not set")
	}
}

func loadHistoryConfig(dataDir string, config *HistoryConfig) {
	config.Backend = strings.ToLower(getEnv("HISTORY_BACKEND", "json"))
	config.Path = getEnv("HISTORY_PATH", filepath.Join(dataDir, "history.json"))
	config.SQLitePath = getEnv("HISTORY_SQLITE_PATH", filepath.Join(dataDir, "history.db"))
}

func loadHTTPConfig(config *HTTPConfig) {
	config.Host = getEnv("HTTP_HOST", "127.0.0.1")
	config.Port = getEnvInt("HTTP_PORT", 8080)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second)
	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "text")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'text'")
		config.Format = "text"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
	config.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", 50)
	config.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", 3)
	config.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", 28)
	config.Compress = getEnvBool("LOG_COMPRESS", false)
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.Enabled = getEnvBool("AMQP_ENABLED", config.AMQPUrl != "")
	config.QueueName = getEnv("AMQP_QUEUE_NAME", "speechcoach.entries")

	if config.Enabled && config.AMQPUrl == "" {
		logger.Warn("AMQP publishing enabled but AMQP_URL is not set; publishing disabled")
		config.Enabled = false
	}
}

// ensureDirectories ensures that required directories exist
func ensureDirectories(logger *logrus.Logger, config *Config) error {
	dirs := []string{config.DataDir, config.Recording.Directory}
	switch config.History.Backend {
	case "json":
		dirs = append(dirs, filepath.Dir(config.History.Path))
	case "sqlite":
		dirs = append(dirs, filepath.Dir(config.History.SQLitePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to create directory: %s", dir))
		}
		logger.WithField("dir", dir).Debug("Ensured directory")
	}

	return nil
}

// Addr returns the host:port the control API listens on
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
