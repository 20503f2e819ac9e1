package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Engine   EngineConfig
	SMS      SMSConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// EngineConfig tunes the reservation engine and its background sweeps.
type EngineConfig struct {
	ReservationPeriod time.Duration
	ExpiryInterval    time.Duration
	SendInterval      time.Duration
	MessageGrace      time.Duration
	SlotsCacheTTL     time.Duration
}

type SMSConfig struct {
	GatewayURL string
	APIKey     string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	engineCfg := EngineConfig{
		ReservationPeriod: 5 * time.Minute,
		ExpiryInterval:    1 * time.Minute,
		SendInterval:      2 * time.Minute,
		MessageGrace:      30 * time.Second,
		SlotsCacheTTL:     15 * time.Second,
	}

	if err := parseDuration("RESERVATION_PERIOD", &engineCfg.ReservationPeriod); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := parseDuration("EXPIRY_INTERVAL", &engineCfg.ExpiryInterval); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := parseDuration("SEND_INTERVAL", &engineCfg.SendInterval); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := parseDuration("MESSAGE_GRACE", &engineCfg.MessageGrace); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := parseDuration("SLOTS_CACHE_TTL", &engineCfg.SlotsCacheTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	smsCfg := SMSConfig{
		GatewayURL: os.Getenv("SMS_GATEWAY_URL"),
		APIKey:     os.Getenv("SMS_GATEWAY_API_KEY"),
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Engine:   engineCfg,
		SMS:      smsCfg,
	}, nil
}

func parseDuration(env string, dst *time.Duration) error {
	s := os.Getenv(env)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = d
	return nil
}
