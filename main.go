package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"passport-photo-backend/facedetect"
	"passport-photo-backend/images"
	"passport-photo-backend/logging"
	"passport-photo-backend/metrics"
	"passport-photo-backend/ratelimit"
	redis "passport-photo-backend/redis"
	"passport-photo-backend/storage"
	"passport-photo-backend/verification"
)

type Config struct {
	ServerConfig ServerConfig `json:"server_config"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	DetectorURL          string `json:"detector_url"`
	BackgroundRemoverURL string `json:"background_remover_url,omitempty"`

	SMTPConfig  verification.SMTPConfig `json:"smtp_config,omitempty"`
	TokenSecret string                  `json:"token_secret,omitempty"`

	StorageType         string                    `json:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	if *configPath == "" {
		slog.Error("please provide a config path using the --config flag")
		os.Exit(1)
	}

	config, err := readConfigFile(*configPath)
	if err != nil {
		slog.Error("failed to read config file", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logging.InitLogger(config.LogLevel, config.LogFormat)
	slog.Info("using config", "path", *configPath)

	store, err := createStore(&config)
	if err != nil {
		slog.Error("failed to instantiate storage", "error", err)
		os.Exit(1)
	}

	tokenSecret := config.TokenSecret
	if env := os.Getenv("TOKEN_SECRET"); env != "" {
		tokenSecret = env
	}
	if tokenSecret == "" {
		slog.Error("no token secret configured, set token_secret or TOKEN_SECRET")
		os.Exit(1)
	}

	policy := ratelimit.NewPolicy(store)
	tokens := verification.NewTokenIssuer([]byte(tokenSecret), "passport-photo-backend")
	verifier := verification.NewService(store, policy, createSender(&config), tokens)
	gate := ratelimit.NewGate(policy, verifier)

	var detector facedetect.Source = facedetect.NoneSource{}
	if config.DetectorURL != "" {
		detector = NewHTTPDetector(config.DetectorURL)
	} else {
		slog.Warn("no detector configured, every photo will use the fallback crop")
	}

	var backgroundRemover images.BackgroundRemover = images.NoopBackgroundRemover{}
	if config.BackgroundRemoverURL != "" {
		backgroundRemover = NewHTTPBackgroundRemover(config.BackgroundRemoverURL)
	}

	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	serverState := ServerState{
		store:             store,
		policy:            policy,
		gate:              gate,
		verifier:          verifier,
		detector:          detector,
		backgroundRemover: backgroundRemover,
		auditLog:          NewAuditLog(store),
		metricsHandler:    metricsHandler,
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	slog.Info("hosting on", "host", config.ServerConfig.Host, "port", config.ServerConfig.Port)
	if err := server.ListenAndServe(); err != nil {
		slog.Error("failed to listen and serve", "error", err)
		os.Exit(1)
	}
}

func readConfigFile(path string) (Config, error) {
	configBytes, err := os.ReadFile(path)

	if err != nil {
		return Config{}, err
	}

	var config Config
	err = json.Unmarshal(configBytes, &config)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func createStore(config *Config) (storage.Store, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory storage")
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}

func createSender(config *Config) verification.Sender {
	if config.SMTPConfig.Host == "" {
		slog.Warn("no smtp host configured, verification emails will not be delivered")
		return verification.NoopSender{}
	}
	smtp := config.SMTPConfig
	if env := os.Getenv("SMTP_PASSWORD"); env != "" {
		smtp.Password = env
	}
	return verification.NewSMTPSender(smtp)
}
