package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Auth       AuthConfig       `yaml:"auth"`
	Momo       MomoConfig       `yaml:"momo"`
	Market     MarketConfig     `yaml:"market"`
	Mail       MailConfig       `yaml:"mail"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Logger     LoggerConfig     `yaml:"logger"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	GroupID     string   `yaml:"group_id"`
}

type AuthConfig struct {
	Cognito     CognitoConfig  `yaml:"cognito"`
	Firebase    FirebaseConfig `yaml:"firebase"`
	JWKSRefresh time.Duration  `yaml:"jwks_refresh"`
	HTTPTimeout time.Duration  `yaml:"http_timeout"`
}

type CognitoConfig struct {
	Region     string `yaml:"region"`
	UserPoolID string `yaml:"user_pool_id"`
	ClientID   string `yaml:"client_id"`
	// JWKSURL overrides the URL derived from region and pool, mostly for tests.
	JWKSURL string `yaml:"jwks_url"`
}

func (c CognitoConfig) Enabled() bool { return c.UserPoolID != "" && c.ClientID != "" }

type FirebaseConfig struct {
	ProjectID string `yaml:"project_id"`
	JWKSURL   string `yaml:"jwks_url"`
}

func (c FirebaseConfig) Enabled() bool { return c.ProjectID != "" }

type MomoConfig struct {
	BaseURL           string        `yaml:"base_url"`
	SubscriptionKey   string        `yaml:"subscription_key"`
	APIUser           string        `yaml:"api_user"`
	APIKey            string        `yaml:"api_key"`
	TargetEnvironment string        `yaml:"target_environment"`
	Currency          string        `yaml:"currency"`
	CallbackURL       string        `yaml:"callback_url"`
	CallbackToken     string        `yaml:"callback_token"`
	Timeout           time.Duration `yaml:"timeout"`
}

type MarketConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	CacheMax int           `yaml:"cache_max"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MailConfig struct {
	MailgunBaseURL  string `yaml:"mailgun_base_url"`
	MailgunDomain   string `yaml:"mailgun_domain"`
	MailgunAPIKey   string `yaml:"mailgun_api_key"`
	From            string `yaml:"from"`
	Web3FormsURL    string `yaml:"web3forms_url"`
	Web3FormsKey    string `yaml:"web3forms_access_key"`
	ContactSubject  string `yaml:"contact_subject"`
	ReceiptsEnabled bool   `yaml:"receipts_enabled"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ContactPerSecond  float64       `yaml:"contact_per_second"`
	ContactBurst      int           `yaml:"contact_burst"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type ReconcilerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configFile (optional), then envFile (optional), then the
// process environment. Later sources win.
func Load(configFile, envFile string) (*Config, error) {
	cfg, err := read(configFile, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase layers the same sources as Load but only requires
// postgres.dsn. Used by tools that never talk to the providers.
func LoadDatabase(configFile, envFile string) (*Config, error) {
	cfg, err := read(configFile, envFile)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("missing required config: postgres.dsn")
	}
	return cfg, nil
}

func read(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configFile, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", configFile, err)
		}
		log.Debug("[CONFIG] Loaded config file ", configFile)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn("[CONFIG] Error loading .env file: ", err.Error())
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		GRPC:     GRPCConfig{Addr: ":9090"},
		Postgres: PostgresConfig{MaxOpenConns: 10},
		Kafka: KafkaConfig{
			EventsTopic: "bank.transactions",
			GroupID:     "payments-worker",
		},
		Auth: AuthConfig{
			JWKSRefresh: time.Hour,
			HTTPTimeout: 5 * time.Second,
		},
		Momo: MomoConfig{
			BaseURL:           "https://sandbox.momodeveloper.mtn.com",
			TargetEnvironment: "sandbox",
			Currency:          "EUR",
			Timeout:           10 * time.Second,
		},
		Market: MarketConfig{
			BaseURL:  "https://www.alphavantage.co",
			CacheTTL: time.Minute,
			CacheMax: 512,
			Timeout:  10 * time.Second,
		},
		Mail: MailConfig{
			MailgunBaseURL: "https://api.mailgun.net",
			Web3FormsURL:   "https://api.web3forms.com/submit",
			ContactSubject: "New contact form submission",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			ContactPerSecond:  0.1,
			ContactBurst:      3,
			IdleTTL:           10 * time.Minute,
		},
		Reconciler: ReconcilerConfig{
			Enabled:    true,
			Interval:   time.Minute,
			StaleAfter: 5 * time.Minute,
			BatchSize:  50,
		},
		Logger: LoggerConfig{Level: "info", Format: "text"},
	}
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Postgres.DSN == "" {
		missing = append(missing, "postgres.dsn")
	}
	if !c.Auth.Cognito.Enabled() && !c.Auth.Firebase.Enabled() {
		missing = append(missing, "auth.cognito or auth.firebase")
	}
	if c.Momo.SubscriptionKey == "" {
		missing = append(missing, "momo.subscription_key")
	}
	if c.Momo.APIUser == "" {
		missing = append(missing, "momo.api_user")
	}
	if c.Momo.APIKey == "" {
		missing = append(missing, "momo.api_key")
	}
	if c.Momo.CallbackToken == "" {
		missing = append(missing, "momo.callback_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
