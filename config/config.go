package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yashrajoria/docstore-service/store"
)

// AuthPasswordSecret is the Secrets Manager entry read when UseSecrets is
// set.
const AuthPasswordSecret = "docstore/AUTH_PASSWORD"

type Config struct {
	Port   string
	AppEnv string

	AuthUser     string
	AuthPassword string
	UseSecrets   bool

	Backends []string

	RedisURL      string
	RedisPoolSize int

	MongoURL      string
	MongoDatabase string

	DynamoTable string
	AWSRegion   string
	AWSEndpoint string

	CartUpdateAttempts int
	EventsTopicARN     string

	CloudWatchEnabled  bool
	CloudWatchLogGroup string
	RateLimitPerMinute int
	AllowedOrigins     []string
}

// Load reads the configuration from the environment. Malformed numbers are
// reported; use Validate for the cross-field checks.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AppEnv:             getEnv("APP_ENV", "development"),
		AuthUser:           os.Getenv("AUTH_USER"),
		AuthPassword:       os.Getenv("AUTH_PASSWORD"),
		UseSecrets:         getBool("AWS_USE_SECRETS", false, &errs),
		Backends:           splitList(getEnv("STORE_BACKENDS", store.BackendRedis)),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPoolSize:      getInt("REDIS_POOL_SIZE", 10, &errs),
		MongoURL:           getEnv("MONGO_DB_URL", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB_NAME", "docstore"),
		DynamoTable:        getEnv("DDB_TABLE_DOCUMENTS", "Documents"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:        os.Getenv("AWS_ENDPOINT"),
		CartUpdateAttempts: getInt("CART_UPDATE_ATTEMPTS", 3, &errs),
		EventsTopicARN:     os.Getenv("EVENTS_TOPIC_ARN"),
		CloudWatchEnabled:  getBool("CLOUDWATCH_ENABLED", false, &errs),
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/docstore/services"),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 600, &errs),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}
	return cfg, errors.Join(errs...)
}

// SecretGetter reads a named secret.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ApplySecrets replaces the auth password with the Secrets Manager value.
// The environment value is kept when the secret cannot be read.
func (c *Config) ApplySecrets(ctx context.Context, secrets SecretGetter) error {
	v, err := secrets.GetSecret(ctx, AuthPasswordSecret)
	if err != nil {
		return err
	}
	if v != "" {
		c.AuthPassword = v
	}
	return nil
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.AuthUser == "" {
		errs = append(errs, errors.New("AUTH_USER is required"))
	}
	if c.AuthPassword == "" {
		errs = append(errs, errors.New("AUTH_PASSWORD is required"))
	}
	if len(c.Backends) == 0 {
		errs = append(errs, errors.New("STORE_BACKENDS must name at least one backend"))
	}
	for _, b := range c.Backends {
		switch b {
		case store.BackendRedis, store.BackendMongo, store.BackendDynamo, store.BackendMemory:
		default:
			errs = append(errs, fmt.Errorf("STORE_BACKENDS: unknown backend %q", b))
		}
	}
	if c.CartUpdateAttempts < 1 {
		errs = append(errs, errors.New("CART_UPDATE_ATTEMPTS must be at least 1"))
	}
	if c.RedisPoolSize < 1 {
		errs = append(errs, errors.New("REDIS_POOL_SIZE must be at least 1"))
	}
	return errors.Join(errs...)
}

// Enabled reports whether backend is listed in STORE_BACKENDS.
func (c Config) Enabled(backend string) bool {
	for _, b := range c.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, val))
		return defaultVal
	}
	return n
}

func getBool(key string, defaultVal bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, val))
		return defaultVal
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimSuffix(part, "/"))
		}
	}
	return out
}
