package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Хранилище текстов аргументов (Cloudflare R2). Если AccountID пуст,
	// загрузчик не инициализируется и ссылки на контент считаются локально.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	// AMQP-публикация событий матчей. Пустой URL отключает публикацию.
	AMQPURL      string
	AMQPExchange string

	// Параметры подбора соперника.
	MatchmakingWindow  int           // ширина допустимого диапазона рейтинга (±W)
	FallbackTimeout    time.Duration // через сколько несматченный игрок получает запасного оппонента
	HeartbeatTTL       time.Duration // запись очереди без heartbeat дольше этого считается мёртвой
	QueueSweepInterval time.Duration // период чистки устаревших записей очереди
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	window, err := getEnvInt("MATCHMAKING_WINDOW", 100)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, fmt.Errorf("MATCHMAKING_WINDOW must be positive, got %d", window)
	}

	fallbackTimeout, err := getEnvDuration("MATCHMAKING_FALLBACK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	heartbeatTTL, err := getEnvDuration("QUEUE_HEARTBEAT_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getEnvDuration("QUEUE_SWEEP_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnvOrDefault("AMQP_EXCHANGE", "arena.events"),

		MatchmakingWindow:  window,
		FallbackTimeout:    fallbackTimeout,
		HeartbeatTTL:       heartbeatTTL,
		QueueSweepInterval: sweepInterval,
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, value)
	}
	return value, nil
}
