package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

func applyEnv(c *Config) {
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setDuration(&c.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDuration(&c.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	setDuration(&c.HTTP.IdleTimeout, "HTTP_IDLE_TIMEOUT")
	setDuration(&c.HTTP.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT")
	setList(&c.HTTP.CORSOrigins, "CORS_ALLOWED_ORIGINS")
	setString(&c.GRPC.Addr, "GRPC_ADDR")

	setString(&c.Postgres.DSN, "DATABASE_URL")
	setInt(&c.Postgres.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setBool(&c.Postgres.MigrateOnBoot, "DATABASE_MIGRATE_ON_BOOT")

	setList(&c.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&c.Kafka.EventsTopic, "KAFKA_EVENTS_TOPIC")
	setString(&c.Kafka.GroupID, "KAFKA_GROUP_ID")

	setString(&c.Auth.Cognito.Region, "COGNITO_REGION")
	setString(&c.Auth.Cognito.UserPoolID, "COGNITO_USER_POOL_ID")
	setString(&c.Auth.Cognito.ClientID, "COGNITO_CLIENT_ID")
	setString(&c.Auth.Cognito.JWKSURL, "COGNITO_JWKS_URL")
	setString(&c.Auth.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	setString(&c.Auth.Firebase.JWKSURL, "FIREBASE_JWKS_URL")
	setDuration(&c.Auth.JWKSRefresh, "AUTH_JWKS_REFRESH")
	setDuration(&c.Auth.HTTPTimeout, "AUTH_HTTP_TIMEOUT")

	setString(&c.Momo.BaseURL, "MOMO_BASE_URL")
	setString(&c.Momo.SubscriptionKey, "MOMO_SUBSCRIPTION_KEY")
	setString(&c.Momo.APIUser, "MOMO_API_USER")
	setString(&c.Momo.APIKey, "MOMO_API_KEY")
	setString(&c.Momo.TargetEnvironment, "MOMO_TARGET_ENVIRONMENT")
	setString(&c.Momo.Currency, "MOMO_CURRENCY")
	setString(&c.Momo.CallbackURL, "MOMO_CALLBACK_URL")
	setString(&c.Momo.CallbackToken, "MOMO_CALLBACK_TOKEN")
	setDuration(&c.Momo.Timeout, "MOMO_TIMEOUT")

	setString(&c.Market.BaseURL, "ALPHA_VANTAGE_BASE_URL")
	setString(&c.Market.APIKey, "ALPHA_VANTAGE_API_KEY")
	setDuration(&c.Market.CacheTTL, "MARKET_CACHE_TTL")
	setInt(&c.Market.CacheMax, "MARKET_CACHE_MAX")

	setString(&c.Mail.MailgunBaseURL, "MAILGUN_BASE_URL")
	setString(&c.Mail.MailgunDomain, "MAILGUN_DOMAIN")
	setString(&c.Mail.MailgunAPIKey, "MAILGUN_API_KEY")
	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.Web3FormsURL, "WEB3FORMS_URL")
	setString(&c.Mail.Web3FormsKey, "WEB3FORMS_ACCESS_KEY")
	setBool(&c.Mail.ReceiptsEnabled, "MAIL_RECEIPTS_ENABLED")

	setFloat(&c.RateLimit.RequestsPerSecond, "RATE_LIMIT_RPS")
	setInt(&c.RateLimit.Burst, "RATE_LIMIT_BURST")
	setFloat(&c.RateLimit.ContactPerSecond, "RATE_LIMIT_CONTACT_RPS")
	setInt(&c.RateLimit.ContactBurst, "RATE_LIMIT_CONTACT_BURST")
	setList(&c.RateLimit.TrustedProxies, "RATE_LIMIT_TRUSTED_PROXIES")

	setBool(&c.Reconciler.Enabled, "RECONCILER_ENABLED")
	setDuration(&c.Reconciler.Interval, "RECONCILER_INTERVAL")
	setDuration(&c.Reconciler.StaleAfter, "RECONCILER_STALE_AFTER")
	setInt(&c.Reconciler.BatchSize, "RECONCILER_BATCH_SIZE")

	setString(&c.Logger.Level, "LOG_LEVEL")
	setString(&c.Logger.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("[CONFIG] Error parsing ", key, ": ", err.Error())
		return
	}
	*dst = n
}

func setFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("[CONFIG] Error parsing ", key, ": ", err.Error())
		return
	}
	*dst = f
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("[CONFIG] Error parsing ", key, ": ", err.Error())
		return
	}
	*dst = b
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("[CONFIG] Error parsing ", key, ": ", err.Error())
		return
	}
	*dst = d
}
