package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server     Server
	Database   Database
	Redis      Redis
	RabbitMQ   RabbitMQ
	Enrichment Enrichment
	Gemini     Gemini
	JWTSecret  string `json:"-"`
}

type Server struct {
	Port string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string `json:"-"`
	Name     string
	SSLMode  string
}

type Redis struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	// QuestionCacheTTL bounds how long a published exam's question snapshot is served from Redis.
	QuestionCacheTTL time.Duration
}

type RabbitMQ struct {
	URL   string `json:"-"`
	Queue string
}

type Enrichment struct {
	// Queue selects the dispatcher: "memory" (default) or "rabbitmq".
	Queue string

	// Consumers is how many attempts are enriched at once; Workers bounds the
	// reasoning calls in flight for a single attempt.
	Consumers   int
	Workers     int
	CallTimeout time.Duration
	BufferSize  int
	// Lease is how long a RUNNING claim is honoured before another run may
	// take the attempt over. It is also the interval of the pending sweep.
	Lease       time.Duration
}

type Gemini struct {
	APIKey string `json:"-"`
	Model  string
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DATABASE_SSLMODE", "disable")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("QUESTION_CACHE_TTL", "10m")
	viper.SetDefault("RABBITMQ_QUEUE", "attempt.scored")
	viper.SetDefault("ENRICHMENT_QUEUE", "memory")
	viper.SetDefault("ENRICHMENT_CONSUMERS", 2)
	viper.SetDefault("ENRICHMENT_WORKERS", 3)
	viper.SetDefault("ENRICHMENT_CALL_TIMEOUT", "20s")
	viper.SetDefault("ENRICHMENT_BUFFER_SIZE", 256)
	viper.SetDefault("ENRICHMENT_LEASE", "10m")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")
	config.Database.SSLMode = viper.GetString("DATABASE_SSLMODE")

	config.Redis.Addr = viper.GetString("REDIS_ADDR")
	config.Redis.Password = viper.GetString("REDIS_PASSWORD")
	config.Redis.DB = viper.GetInt("REDIS_DB")
	config.Redis.QuestionCacheTTL = viper.GetDuration("QUESTION_CACHE_TTL")

	config.RabbitMQ.URL = viper.GetString("RABBITMQ_URL")
	config.RabbitMQ.Queue = viper.GetString("RABBITMQ_QUEUE")

	config.Enrichment.Queue = viper.GetString("ENRICHMENT_QUEUE")
	config.Enrichment.Consumers = viper.GetInt("ENRICHMENT_CONSUMERS")
	config.Enrichment.Workers = viper.GetInt("ENRICHMENT_WORKERS")
	config.Enrichment.CallTimeout = viper.GetDuration("ENRICHMENT_CALL_TIMEOUT")
	config.Enrichment.BufferSize = viper.GetInt("ENRICHMENT_BUFFER_SIZE")
	config.Enrichment.Lease = viper.GetDuration("ENRICHMENT_LEASE")

	config.Gemini.APIKey = viper.GetString("GEMINI_API_KEY")
	config.Gemini.Model = viper.GetString("GEMINI_MODEL")

	config.JWTSecret = viper.GetString("JWT_SECRET")
	if config.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set; every authenticated request will be rejected")
	}
	if config.Enrichment.Workers <= 0 {
		config.Enrichment.Workers = 3
	}
	if config.Enrichment.Consumers <= 0 {
		config.Enrichment.Consumers = 1
	}
	if config.Enrichment.Lease <= 0 {
		config.Enrichment.Lease = 10 * time.Minute
	}

	log.Info().Interface("config", config).Msg("Config loaded")
	return &config, nil
}
