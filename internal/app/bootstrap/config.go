package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/viralforge/barter-exchange/internal/adapters/security"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string
	LogLevel  slog.Level

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	MaxDBConns                   int32
	KafkaConsumerGroup           string
	KafkaTopicUserRegistered     string
	KafkaTopicUserUpdated        string
	KafkaTopicUserDeleted        string
	KafkaTopicProductUpserted    string
	KafkaTopicTransactionCreated string
	KafkaTopicTransactionStatus  string
	KafkaTopicDisputeCreated     string
	KafkaTopicDisputeResolved    string
	OutboxPollInterval           time.Duration
	OutboxBatchSize              int
	OutboxClaimTTL               time.Duration
	OutboxMaxRetries             int
	ConsumerPollInterval         time.Duration
	ReadinessProbeInterval       time.Duration
	AdminCacheTTL                time.Duration
	IdempotencyTTL               time.Duration
	EventDedupTTL                time.Duration
	StatusUpdateRetries          int
	NotifyDeliveryTimeout        time.Duration
	NotifyMaxAttempts            int
	NotifyInitialBackoff         time.Duration
	NotifyMaxBackoff             time.Duration
	RealtimeChannelPrefix        string
	JWTSecret                    string
	JWTIssuer                    string
	FieldEncryptionKeys          map[string]string
	FieldEncryptionActiveKey     string

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMTPTLSPolicy string
	SMTPTimeout   time.Duration
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL                  string   `yaml:"postgres_url"`
		RedisURL                     string   `yaml:"redis_url"`
		KafkaBrokers                 []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup           string   `yaml:"kafka_consumer_group"`
		KafkaTopicUserRegistered     string   `yaml:"kafka_topic_user_registered"`
		KafkaTopicUserUpdated        string   `yaml:"kafka_topic_user_updated"`
		KafkaTopicUserDeleted        string   `yaml:"kafka_topic_user_deleted"`
		KafkaTopicProductUpserted    string   `yaml:"kafka_topic_product_upserted"`
		KafkaTopicTransactionCreated string   `yaml:"kafka_topic_transaction_created"`
		KafkaTopicTransactionStatus  string   `yaml:"kafka_topic_transaction_status_changed"`
		KafkaTopicDisputeCreated     string   `yaml:"kafka_topic_dispute_created"`
		KafkaTopicDisputeResolved    string   `yaml:"kafka_topic_dispute_resolved"`
		SMTPHost                     string   `yaml:"smtp_host"`
		SMTPPort                     int      `yaml:"smtp_port"`
		SMTPFrom                     string   `yaml:"smtp_from"`
		SMTPTLSPolicy                string   `yaml:"smtp_tls_policy"`
	} `yaml:"dependencies"`
	Notifications struct {
		RealtimeChannelPrefix string `yaml:"realtime_channel_prefix"`
		DeliveryTimeout       string `yaml:"delivery_timeout"`
		MaxAttempts           int    `yaml:"max_attempts"`
		InitialBackoff        string `yaml:"initial_backoff"`
		MaxBackoff            string `yaml:"max_backoff"`
	} `yaml:"notifications"`
	Outbox struct {
		BatchSize  int    `yaml:"batch_size"`
		ClaimTTL   string `yaml:"claim_ttl"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"outbox"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "barter-exchange",
		LogLevel:                     slog.LevelInfo,
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		MaxDBConns:                   20,
		KafkaConsumerGroup:           "barter-exchange",
		KafkaTopicUserRegistered:     "user.registered",
		KafkaTopicUserUpdated:        "user.updated",
		KafkaTopicUserDeleted:        "user.deleted",
		KafkaTopicProductUpserted:    "product.upserted",
		KafkaTopicTransactionCreated: "transaction.created",
		KafkaTopicTransactionStatus:  "transaction.status_changed",
		KafkaTopicDisputeCreated:     "dispute.created",
		KafkaTopicDisputeResolved:    "dispute.resolved",
		OutboxPollInterval:           2 * time.Second,
		OutboxBatchSize:              100,
		OutboxClaimTTL:               30 * time.Second,
		OutboxMaxRetries:             8,
		ConsumerPollInterval:         2 * time.Second,
		ReadinessProbeInterval:       10 * time.Second,
		AdminCacheTTL:                time.Minute,
		IdempotencyTTL:               24 * time.Hour,
		EventDedupTTL:                7 * 24 * time.Hour,
		StatusUpdateRetries:          3,
		NotifyDeliveryTimeout:        10 * time.Second,
		NotifyMaxAttempts:            3,
		NotifyInitialBackoff:         200 * time.Millisecond,
		NotifyMaxBackoff:             2 * time.Second,
		RealtimeChannelPrefix:        "exchange",
		SMTPPort:                     587,
		SMTPTLSPolicy:                "mandatory",
		SMTPTimeout:                  10 * time.Second,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicUserRegistered = envOrDefault("KAFKA_TOPIC_USER_REGISTERED", cfg.KafkaTopicUserRegistered)
	cfg.KafkaTopicUserUpdated = envOrDefault("KAFKA_TOPIC_USER_UPDATED", cfg.KafkaTopicUserUpdated)
	cfg.KafkaTopicUserDeleted = envOrDefault("KAFKA_TOPIC_USER_DELETED", cfg.KafkaTopicUserDeleted)
	cfg.KafkaTopicProductUpserted = envOrDefault("KAFKA_TOPIC_PRODUCT_UPSERTED", cfg.KafkaTopicProductUpserted)
	cfg.KafkaTopicTransactionCreated = envOrDefault("KAFKA_TOPIC_TRANSACTION_CREATED", cfg.KafkaTopicTransactionCreated)
	cfg.KafkaTopicTransactionStatus = envOrDefault("KAFKA_TOPIC_TRANSACTION_STATUS_CHANGED", cfg.KafkaTopicTransactionStatus)
	cfg.KafkaTopicDisputeCreated = envOrDefault("KAFKA_TOPIC_DISPUTE_CREATED", cfg.KafkaTopicDisputeCreated)
	cfg.KafkaTopicDisputeResolved = envOrDefault("KAFKA_TOPIC_DISPUTE_RESOLVED", cfg.KafkaTopicDisputeResolved)
	cfg.HTTPPort = envInt("HTTP_PORT", envInt("PORT", cfg.HTTPPort))
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = envDuration("OUTBOX_CLAIM_TTL", cfg.OutboxClaimTTL)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.ReadinessProbeInterval = envDuration("READINESS_PROBE_INTERVAL", cfg.ReadinessProbeInterval)
	cfg.AdminCacheTTL = time.Duration(envInt("ADMIN_CACHE_SECONDS", int(cfg.AdminCacheTTL.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.StatusUpdateRetries = envInt("STATUS_UPDATE_RETRIES", cfg.StatusUpdateRetries)
	cfg.NotifyDeliveryTimeout = envDuration("NOTIFY_TIMEOUT", cfg.NotifyDeliveryTimeout)
	cfg.NotifyMaxAttempts = envInt("NOTIFY_MAX_ATTEMPTS", cfg.NotifyMaxAttempts)
	cfg.NotifyInitialBackoff = envDuration("NOTIFY_INITIAL_BACKOFF", cfg.NotifyInitialBackoff)
	cfg.NotifyMaxBackoff = envDuration("NOTIFY_MAX_BACKOFF", cfg.NotifyMaxBackoff)
	cfg.RealtimeChannelPrefix = envOrDefault("REALTIME_CHANNEL_PREFIX", cfg.RealtimeChannelPrefix)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.FieldEncryptionActiveKey = envOrDefault("FIELD_ENCRYPTION_ACTIVE_KEY", cfg.FieldEncryptionActiveKey)
	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("SMTP_FROM", cfg.SMTPFrom)
	cfg.SMTPTLSPolicy = envOrDefault("SMTP_TLS_POLICY", cfg.SMTPTLSPolicy)
	cfg.SMTPTimeout = envDuration("SMTP_TIMEOUT", cfg.SMTPTimeout)
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		cfg.LogLevel = parseLevel(raw, cfg.LogLevel)
	}
	if raw := strings.TrimSpace(os.Getenv("FIELD_ENCRYPTION_KEYS")); raw != "" {
		keys, err := security.ParseKeySpec(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FIELD_ENCRYPTION_KEYS: %w", err)
		}
		cfg.FieldEncryptionKeys = keys
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET")
	}
	if len(cfg.FieldEncryptionKeys) == 0 {
		return Config{}, fmt.Errorf("missing FIELD_ENCRYPTION_KEYS")
	}
	// The outbox worker stops publishing a fifth of the lease before it ends; one relay attempt must fit.
	if cfg.NotifyDeliveryTimeout >= cfg.OutboxClaimTTL*4/5 {
		return Config{}, fmt.Errorf("OUTBOX_CLAIM_TTL %s leaves no room for a %s delivery attempt", cfg.OutboxClaimTTL, cfg.NotifyDeliveryTimeout)
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = parseLevel(f.Service.LogLevel, cfg.LogLevel)
	}

	d := f.Dependencies
	cfg.DatabaseURL = firstNonEmpty(d.PostgresURL, cfg.DatabaseURL)
	cfg.RedisURL = firstNonEmpty(d.RedisURL, cfg.RedisURL)
	if brokers := trimNonEmpty(d.KafkaBrokers); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	cfg.KafkaConsumerGroup = firstNonEmpty(d.KafkaConsumerGroup, cfg.KafkaConsumerGroup)
	cfg.KafkaTopicUserRegistered = firstNonEmpty(d.KafkaTopicUserRegistered, cfg.KafkaTopicUserRegistered)
	cfg.KafkaTopicUserUpdated = firstNonEmpty(d.KafkaTopicUserUpdated, cfg.KafkaTopicUserUpdated)
	cfg.KafkaTopicUserDeleted = firstNonEmpty(d.KafkaTopicUserDeleted, cfg.KafkaTopicUserDeleted)
	cfg.KafkaTopicProductUpserted = firstNonEmpty(d.KafkaTopicProductUpserted, cfg.KafkaTopicProductUpserted)
	cfg.KafkaTopicTransactionCreated = firstNonEmpty(d.KafkaTopicTransactionCreated, cfg.KafkaTopicTransactionCreated)
	cfg.KafkaTopicTransactionStatus = firstNonEmpty(d.KafkaTopicTransactionStatus, cfg.KafkaTopicTransactionStatus)
	cfg.KafkaTopicDisputeCreated = firstNonEmpty(d.KafkaTopicDisputeCreated, cfg.KafkaTopicDisputeCreated)
	cfg.KafkaTopicDisputeResolved = firstNonEmpty(d.KafkaTopicDisputeResolved, cfg.KafkaTopicDisputeResolved)
	cfg.SMTPHost = firstNonEmpty(d.SMTPHost, cfg.SMTPHost)
	if d.SMTPPort > 0 {
		cfg.SMTPPort = d.SMTPPort
	}
	cfg.SMTPFrom = firstNonEmpty(d.SMTPFrom, cfg.SMTPFrom)
	cfg.SMTPTLSPolicy = firstNonEmpty(d.SMTPTLSPolicy, cfg.SMTPTLSPolicy)

	n := f.Notifications
	cfg.RealtimeChannelPrefix = firstNonEmpty(n.RealtimeChannelPrefix, cfg.RealtimeChannelPrefix)
	if n.MaxAttempts > 0 {
		cfg.NotifyMaxAttempts = n.MaxAttempts
	}
	var err error
	if cfg.NotifyDeliveryTimeout, err = fileDuration("notifications.delivery_timeout", n.DeliveryTimeout, cfg.NotifyDeliveryTimeout); err != nil {
		return err
	}
	if cfg.NotifyInitialBackoff, err = fileDuration("notifications.initial_backoff", n.InitialBackoff, cfg.NotifyInitialBackoff); err != nil {
		return err
	}
	if cfg.NotifyMaxBackoff, err = fileDuration("notifications.max_backoff", n.MaxBackoff, cfg.NotifyMaxBackoff); err != nil {
		return err
	}

	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.MaxRetries > 0 {
		cfg.OutboxMaxRetries = f.Outbox.MaxRetries
	}
	if cfg.OutboxClaimTTL, err = fileDuration("outbox.claim_ttl", f.Outbox.ClaimTTL, cfg.OutboxClaimTTL); err != nil {
		return err
	}
	return nil
}

func fileDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse config file: %s: %w", field, err)
	}
	return d, nil
}

func parseLevel(raw string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return fallback
	}
	return level
}

func firstNonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
