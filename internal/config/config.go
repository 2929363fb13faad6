package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr         string
	APIKey           string
	LogLevel         string
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string

	MLBundlePath          string
	MLTrainingCSV         string
	MLSampleSource        string
	MLBundleStore         string
	MLWeightSeed          int64
	MLAssessmentCacheSecs int

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	SSHPort           int
	SSHHostKeyPath    string
	SSHAuthorizedKeys string

	MCPTransport          string
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPRequestTimeoutSecs int

	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIMaxCallsPerMinute int
}

const (
	SampleSourceCSV      = "csv"
	SampleSourcePostgres = "postgres"

	BundleStoreFile     = "file"
	BundleStorePostgres = "postgres"
)

func Load() *Config {
	cfg := &Config{
		APIKey:            os.Getenv("API_KEY"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		MQTTBroker:        strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		SSHAuthorizedKeys: strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS")),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.APIKey == "" {
		slog.Warn("API_KEY not set, training endpoint is unprotected")
	}
	if cfg.TelegramBotToken == "" {
		slog.Warn("TELEGRAM_BOT_TOKEN not set, telegram bot will be disabled")
	}
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, assessments will not be stored")
	}
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.MLBundlePath = strings.TrimSpace(os.Getenv("ML_BUNDLE_PATH"))
	if cfg.MLBundlePath == "" {
		cfg.MLBundlePath = "data/model_bundle.bin"
	}

	cfg.MLTrainingCSV = strings.TrimSpace(os.Getenv("ML_TRAINING_CSV"))
	if cfg.MLTrainingCSV == "" {
		cfg.MLTrainingCSV = "data/wearable_sensor_data.csv"
	}

	cfg.MLSampleSource = strings.ToLower(strings.TrimSpace(os.Getenv("ML_SAMPLE_SOURCE")))
	if cfg.MLSampleSource == "" {
		cfg.MLSampleSource = SampleSourceCSV
	}
	if cfg.MLSampleSource != SampleSourceCSV && cfg.MLSampleSource != SampleSourcePostgres {
		slog.Warn("unsupported ML_SAMPLE_SOURCE, defaulting to csv", "value", cfg.MLSampleSource)
		cfg.MLSampleSource = SampleSourceCSV
	}

	cfg.MLBundleStore = strings.ToLower(strings.TrimSpace(os.Getenv("ML_BUNDLE_STORE")))
	if cfg.MLBundleStore == "" {
		cfg.MLBundleStore = BundleStoreFile
	}
	if cfg.MLBundleStore != BundleStoreFile && cfg.MLBundleStore != BundleStorePostgres {
		slog.Warn("unsupported ML_BUNDLE_STORE, defaulting to file", "value", cfg.MLBundleStore)
		cfg.MLBundleStore = BundleStoreFile
	}

	if v := strings.TrimSpace(os.Getenv("ML_WEIGHT_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MLWeightSeed = n
		} else {
			slog.Warn("invalid ML_WEIGHT_SEED, seeding from clock", "value", v)
		}
	}

	cfg.MLAssessmentCacheSecs = 300
	if v := strings.TrimSpace(os.Getenv("ML_ASSESSMENT_CACHE_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MLAssessmentCacheSecs = n
		}
	}

	cfg.MQTTTopic = strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "wearables/+/daily"
	}

	cfg.MQTTClientID = strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "pulse-sentinel"
	}

	cfg.SSHPort = 23234
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/id_ed25519"
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		slog.Warn("unsupported MCP_TRANSPORT, defaulting to stdio", "value", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	cfg.MCPHTTPPort = 8090
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}

	cfg.MCPRequestTimeoutSecs = 30
	if v := strings.TrimSpace(os.Getenv("MCP_REQUEST_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPRequestTimeoutSecs = n
		}
	}

	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, narrative advice will be disabled")
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.OpenAIMaxCallsPerMinute = 20
	if v := strings.TrimSpace(os.Getenv("OPENAI_MAX_CALLS_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OpenAIMaxCallsPerMinute = n
		}
	}

	return cfg
}
