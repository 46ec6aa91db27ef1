// Package config provides configuration management for voxetl using Viper.
// It supports configuration from files, environment variables, a local .env
// file, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8000
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxWorkers       = 3
	defaultMaxQueueSize     = 20
	defaultChunkMaxSize     = 25 * 1024 * 1024 // 25 MiB
	defaultChunkDuration    = 300 * time.Second
	defaultSampleRate       = 16000
	defaultChannels         = 1
	defaultAPITimeout       = 300 * time.Second
	defaultDownloadRetries  = 3
	defaultRetryDelay       = 5 * time.Second
	defaultDownloadTimeout  = time.Hour
	defaultVerifyTimeout    = 5 * time.Minute
	defaultRateWindow       = 50 * time.Second
	defaultRateMaxRequests  = 60
	defaultToolTimeout      = 120 * time.Second
	defaultJanitorMaxAge    = 24 * time.Hour
	defaultTranscriptionURL = "https://api.groq.com/openai/v1/audio/transcriptions"
)

// Config holds all configuration for the application.
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Debug         bool                `mapstructure:"debug"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Download      DownloadConfig      `mapstructure:"download"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Media         MediaConfig         `mapstructure:"media"`
	Janitor       JanitorConfig       `mapstructure:"janitor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds object store connection configuration.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// AudioSettings holds audio conversion parameters for chunking.
type AudioSettings struct {
	// SampleRate in Hz, 8000..48000.
	SampleRate int `mapstructure:"sample_rate"`
	// Channels: 1 for mono, 2 for stereo.
	Channels int `mapstructure:"channels"`
}

// TranscriptionConfig holds remote transcription API configuration.
type TranscriptionConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Language   string        `mapstructure:"language"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
	// ChunkMaxSize is the largest chunk accepted by the API after
	// normalization. Supports human-readable values like "25MiB".
	ChunkMaxSize  ByteSize      `mapstructure:"chunk_max_size"`
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	AudioFormat   string        `mapstructure:"audio_format"`
	AudioSettings AudioSettings `mapstructure:"audio_settings"`
	// BatchSize is the number of chunks transcribed concurrently per wave.
	BatchSize int `mapstructure:"batch_size"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

// WorkerConfig holds pipeline worker pool configuration.
type WorkerConfig struct {
	MaxWorkers   int `mapstructure:"max_workers"`
	MaxQueueSize int `mapstructure:"max_queue_size"`
}

// RateLimitConfig holds sliding-window limiter configuration for outbound
// transcription calls.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

// MediaConfig holds external media tool configuration.
type MediaConfig struct {
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`  // empty = auto-detect
	FFprobePath string        `mapstructure:"ffprobe_path"` // empty = auto-detect
	YTDLPPath   string        `mapstructure:"ytdlp_path"`   // empty = auto-detect
	ToolTimeout time.Duration `mapstructure:"tool_timeout"` // normalize/cut wall clock
}

// JanitorConfig holds scratch directory cleanup configuration.
type JanitorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"` // 6-field cron expression
	MaxAge  time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from a .env file (if present), a config file, and
// environment variables. Environment variables take precedence over file
// configuration, and are prefixed with VOXETL_ using underscores for nesting.
// Example: VOXETL_TRANSCRIPTION_API_KEY=....
func Load(configPath string) (*Config, error) {
	// Compose-style .env in the working directory, ignored when absent.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/voxetl")
		v.AddConfigPath("$HOME/.voxetl")
	}

	v.SetEnvPrefix("VOXETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing config file is fine - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("debug", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", 0) // streaming responses must not time out
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Object store defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "voxetl-transcription")
	v.SetDefault("storage.secure", false)

	// Transcription defaults
	v.SetDefault("transcription.api_url", defaultTranscriptionURL)
	v.SetDefault("transcription.api_key", "")
	v.SetDefault("transcription.model", "whisper-large-v3")
	v.SetDefault("transcription.language", "")
	v.SetDefault("transcription.api_timeout", defaultAPITimeout)
	v.SetDefault("transcription.chunk_max_size", defaultChunkMaxSize)
	v.SetDefault("transcription.chunk_duration", defaultChunkDuration)
	v.SetDefault("transcription.audio_format", "wav")
	v.SetDefault("transcription.audio_settings.sample_rate", defaultSampleRate)
	v.SetDefault("transcription.audio_settings.channels", defaultChannels)
	v.SetDefault("transcription.batch_size", 5)

	// Download defaults
	v.SetDefault("download.max_retries", defaultDownloadRetries)
	v.SetDefault("download.retry_delay", defaultRetryDelay)
	v.SetDefault("download.timeout", defaultDownloadTimeout)
	v.SetDefault("download.verify_timeout", defaultVerifyTimeout)

	// Worker defaults
	v.SetDefault("worker.max_workers", defaultMaxWorkers)
	v.SetDefault("worker.max_queue_size", defaultMaxQueueSize)

	// Rate limiter defaults
	v.SetDefault("ratelimit.window", defaultRateWindow)
	v.SetDefault("ratelimit.max_requests", defaultRateMaxRequests)

	// Media tool defaults
	v.SetDefault("media.ffmpeg_path", "")
	v.SetDefault("media.ffprobe_path", "")
	v.SetDefault("media.ytdlp_path", "")
	v.SetDefault("media.tool_timeout", defaultToolTimeout)

	// Janitor defaults
	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.cron", "0 0 * * * *") // hourly (6-field cron)
	v.SetDefault("janitor.max_age", defaultJanitorMaxAge)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}

	if c.Transcription.APIURL == "" {
		return fmt.Errorf("transcription.api_url is required")
	}
	if c.Transcription.ChunkMaxSize <= 0 {
		return fmt.Errorf("transcription.chunk_max_size must be positive")
	}
	if c.Transcription.ChunkDuration <= 0 {
		return fmt.Errorf("transcription.chunk_duration must be positive")
	}
	if c.Transcription.BatchSize < 1 {
		return fmt.Errorf("transcription.batch_size must be at least 1")
	}
	sr := c.Transcription.AudioSettings.SampleRate
	if sr < 8000 || sr > 48000 {
		return fmt.Errorf("transcription.audio_settings.sample_rate must be between 8000 and 48000")
	}
	ch := c.Transcription.AudioSettings.Channels
	if ch < 1 || ch > 2 {
		return fmt.Errorf("transcription.audio_settings.channels must be 1 or 2")
	}

	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must not be negative")
	}

	if c.Worker.MaxWorkers < 1 {
		return fmt.Errorf("worker.max_workers must be at least 1")
	}
	if c.Worker.MaxQueueSize < 1 {
		return fmt.Errorf("worker.max_queue_size must be at least 1")
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("ratelimit.max_requests must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
