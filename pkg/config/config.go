package config

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// New reads the configuration from environment variables. Every missing or malformed variable is
// reported, not just the first.
func New() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var c Config
	var err error

	c.BasePath, err = requireEnv("BASE_PATH")
	collect(err)
	c.Port, err = optionalEnvAsInt("PORT", 8080)
	collect(err)

	c.Postgresql.Host, err = requireEnv("DATABASE_HOST")
	collect(err)
	c.Postgresql.Port, err = requireEnvAsInt("DATABASE_PORT")
	collect(err)
	c.Postgresql.Username, err = requireEnv("DATABASE_USERNAME")
	collect(err)
	c.Postgresql.Password, err = requireEnv("DATABASE_PASSWORD")
	collect(err)
	c.Postgresql.DatabaseName, err = requireEnv("DATABASE_NAME")
	collect(err)

	publicKey, err := requireEnv("JWT_PUBLIC_KEY")
	collect(err)
	if err == nil {
		c.Authentication.PublicKey, err = parsePublicKey(publicKey)
		collect(err)
	}

	origins, err := requireEnv("CORS_ALLOWED_ORIGINS")
	collect(err)
	c.AllowedOrigins = splitList(origins)

	if host, ok := os.LookupEnv("REDIS_HOST"); ok {
		c.Redis = &Redis{Host: host}
		c.Redis.Port, err = optionalEnvAsInt("REDIS_PORT", 6379)
		collect(err)
	}

	if host, ok := os.LookupEnv("RABBITMQ_HOST"); ok {
		c.RabbitMQ = &RabbitMQ{Host: host}
		c.RabbitMQ.Port, err = optionalEnvAsInt("RABBITMQ_PORT", 5672)
		collect(err)
		c.RabbitMQ.Username, err = requireEnv("RABBITMQ_USERNAME")
		collect(err)
		c.RabbitMQ.Password, err = requireEnv("RABBITMQ_PASSWORD")
		collect(err)
		c.RabbitMQ.Exchange = optionalEnv("RABBITMQ_EXCHANGE", "activities")
	}

	c.JaegerEndpoint = optionalEnv("JAEGER_ENDPOINT", "")

	c.LogLevel, err = parseLogLevel(optionalEnv("LOG_LEVEL", "info"))
	collect(err)
	c.LogPretty, err = optionalEnvAsBool("LOG_PRETTY", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return c, nil
}

type Config struct {
	BasePath       string
	Port           int
	Postgresql     Postgresql
	Authentication Authentication
	AllowedOrigins []string
	// Redis is nil if comments are not shared with other replicas.
	Redis *Redis
	// RabbitMQ is nil if domain events are not published.
	RabbitMQ *RabbitMQ
	// JaegerEndpoint is empty if traces are not exported.
	JaegerEndpoint string
	LogLevel       slog.Level
	LogPretty      bool
}

type Postgresql struct {
	Host         string
	Port         int
	Username     string
	Password     string
	DatabaseName string
}

type Authentication struct {
	PublicKey *rsa.PublicKey
}

type Redis struct {
	Host string
	Port int
}

type RabbitMQ struct {
	Host     string
	Port     int
	Username string
	Password string
	Exchange string
}

func (r RabbitMQ) GetURI() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.Username, r.Password, r.Host, r.Port)
}

func parsePublicKey(value string) (*rsa.PublicKey, error) {
	key, err := jwk.ParseKey([]byte(value), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT_PUBLIC_KEY: %v", err)
	}

	var publicKey rsa.PublicKey
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY is not an RSA public key: %v", err)
	}
	return &publicKey, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("failed to parse LOG_LEVEL: %v", err)
	}
	return level, nil
}

func splitList(value string) []string {
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func requireEnv(key string) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return "", fmt.Errorf("required environment variable %q not set", key)
	}
	return value, nil
}

func requireEnvAsInt(key string) (int, error) {
	valueStr, err := requireEnv(key)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse environment variable %q as int: %v", key, err)
	}
	return value, nil
}

func optionalEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func optionalEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse environment variable %q as int: %v", key, err)
	}
	return value, nil
}

func optionalEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("failed to parse environment variable %q as bool: %v", key, err)
	}
	return value, nil
}
