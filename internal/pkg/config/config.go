package config

import (
	"strings"
	"time"

	"github.com/learnerfast/learnerfast/internal/pkg/cache"
	"github.com/learnerfast/learnerfast/internal/pkg/database"
	"github.com/learnerfast/learnerfast/internal/pkg/env"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
)

// Config is the typed view of the process environment.
type Config struct {
	AppURL             string
	Host               string
	Port               string
	Env                string
	RootDomain         string
	CustomDomainTarget string
	JWTSecret          string
	ReconcileAfter     time.Duration
	PendingExpiry      time.Duration
	CronEnabled        bool
	MonitorUser        string
	MonitorPassword    string
	CORSOrigins        string

	Database database.Config
	Cache    cache.Config
	PhonePe  gateway.PhonePeConfig
	Razorpay gateway.RazorpayConfig
}

// Load reads the configuration. env.SetupEnvFile must have run first.
func Load() Config {
	rootDomain := strings.ToLower(strings.Trim(strings.TrimSpace(env.GetEnv("ROOT_DOMAIN", "learnerfast.com")), "."))
	return Config{
		AppURL:             strings.TrimRight(strings.TrimSpace(env.GetEnv("APP_URL", "")), "/"),
		Host:               env.GetEnv("APP_HOST", "0.0.0.0"),
		Port:               env.GetEnv("APP_PORT", "4000"),
		Env:                env.GetEnv("APP_ENV", "prod"),
		RootDomain:         rootDomain,
		CustomDomainTarget: env.GetEnv("CUSTOM_DOMAIN_TARGET", "sites."+rootDomain),
		JWTSecret:          env.GetEnv("SUPABASE_JWT_SECRET", ""),
		ReconcileAfter:     env.GetDuration("PAYMENT_RECONCILE_AFTER", 15*time.Minute),
		PendingExpiry:      env.GetDuration("PAYMENT_PENDING_EXPIRY", 24*time.Hour),
		CronEnabled:        env.GetBool("CRON_ENABLED", true),
		MonitorUser:        env.GetEnv("MONITOR_USER", ""),
		MonitorPassword:    env.GetEnv("MONITOR_PASSWORD", ""),
		CORSOrigins:        env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		Database:           database.ConfigFromEnv(),
		Cache:              cache.ConfigFromEnv(),
		PhonePe:            gateway.PhonePeConfigFromEnv(),
		Razorpay:           gateway.RazorpayConfigFromEnv(),
	}
}

// IsDev reports whether APP_ENV is dev.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string {
	return c.Host + ":" + c.Port
}
