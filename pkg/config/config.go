package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "PHARO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PHARO_DB_DSN"
	EnvDBHost = "PHARO_DB_HOST"
	EnvDBUser = "PHARO_DB_USER"
	EnvDBName = "PHARO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Cookies       CookieConfig
	Invitations   InvitationConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Sendgrid      SendgridConfig
	Teams         TeamsConfig
	Slack         SlackConfig
	Metrics       MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(cfg.App.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid %s_APP_BASE_URL: %w", EnvPrefix, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env                 string   `envconfig:"PHARO_APP_ENV" required:"true"`
	Port                string   `envconfig:"PHARO_APP_PORT" default:"8080"`
	BaseURL             string   `envconfig:"PHARO_APP_BASE_URL" required:"true"`
	InternalEmailDomain string   `envconfig:"PHARO_INTERNAL_EMAIL_DOMAIN" default:"sapira.ai"`
	CORSOrigins         []string `envconfig:"PHARO_CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel            string   `envconfig:"PHARO_LOG_LEVEL" default:"info"`
	LogWarnStack        bool     `envconfig:"PHARO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// InternalDomain returns the normalized employee e-mail domain.
func (a AppConfig) InternalDomain() string {
	return strings.ToLower(strings.TrimSpace(a.InternalEmailDomain))
}

type DBConfig struct {
	DSN    string `envconfig:"PHARO_DB_DSN"`
	Driver string `envconfig:"PHARO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PHARO_DB_HOST"`
	LegacyPort     int    `envconfig:"PHARO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PHARO_DB_USER"`
	LegacyPassword string `envconfig:"PHARO_DB_PASSWORD"`
	LegacyName     string `envconfig:"PHARO_DB_NAME"`
	LegacySSLMode  string `envconfig:"PHARO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PHARO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PHARO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PHARO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PHARO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"PHARO_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PHARO_REDIS_URL"`
	Address      string        `envconfig:"PHARO_REDIS_ADDR"`
	Password     string        `envconfig:"PHARO_REDIS_PASSWORD"`
	DB           int           `envconfig:"PHARO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PHARO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PHARO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PHARO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PHARO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PHARO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"PHARO_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"PHARO_JWT_ISSUER" default:"pharo"`
	ExpirationMinutes      int    `envconfig:"PHARO_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"PHARO_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// AccessTokenTTL returns the lifetime of minted access tokens.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	MinLength        int `envconfig:"PHARO_PASSWORD_MIN_LENGTH" default:"6"`
	ArgonMemoryKB    int `envconfig:"PHARO_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PHARO_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PHARO_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PHARO_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PHARO_ARGON_KEY_LEN" default:"32"`
}

type CookieConfig struct {
	Prefix          string `envconfig:"PHARO_COOKIE_PREFIX" default:"pharo-auth"`
	ActiveOrgCookie string `envconfig:"PHARO_ACTIVE_ORG_COOKIE" default:"pharo-active-org"`
	Domain          string `envconfig:"PHARO_COOKIE_DOMAIN"`
	Secure          bool   `envconfig:"PHARO_COOKIE_SECURE" default:"true"`
}

// AccessCookie is the cookie carrying the access token.
func (c CookieConfig) AccessCookie() string {
	return c.prefix() + "-access-token"
}

// RefreshCookie is the cookie carrying the refresh token.
func (c CookieConfig) RefreshCookie() string {
	return c.prefix() + "-refresh-token"
}

func (c CookieConfig) prefix() string {
	if p := strings.TrimSpace(c.Prefix); p != "" {
		return p
	}
	return "pharo-auth"
}

type InvitationConfig struct {
	TTL time.Duration `envconfig:"PHARO_INVITATION_TTL" default:"168h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PHARO_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PHARO_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PHARO_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PHARO_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PHARO_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PHARO_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	ResolveWindow      time.Duration `envconfig:"PHARO_AUTH_RATE_LIMIT_RESOLVE_WINDOW" default:"1m"`
	ResolveIPLimit     int           `envconfig:"PHARO_AUTH_RATE_LIMIT_RESOLVE_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PHARO_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PHARO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PHARO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PHARO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string        `envconfig:"PHARO_GCS_BUCKET_NAME"`
	LogoURLExpiry time.Duration `envconfig:"PHARO_GCS_LOGO_URL_EXPIRY" default:"168h"`
}

// Enabled reports whether logo signing is configured.
func (g GCSConfig) Enabled() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

type SendgridConfig struct {
	APIKey      string `envconfig:"PHARO_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"PHARO_SENDGRID_FROM_EMAIL" default:"no-reply@sapira.ai"`
	FromName    string `envconfig:"PHARO_SENDGRID_FROM_NAME" default:"Sapira Pharo"`
	SMTPHost    string `envconfig:"PHARO_SENDGRID_SMTP_HOST" default:"smtp.sendgrid.net"`
	SMTPPort    int    `envconfig:"PHARO_SENDGRID_SMTP_PORT" default:"587"`
}

type TeamsConfig struct {
	WebhookSecret string `envconfig:"PHARO_TEAMS_WEBHOOK_SECRET"`
}

type SlackConfig struct {
	SigningSecret string `envconfig:"PHARO_SLACK_SIGNING_SECRET"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"PHARO_METRICS_ENABLED" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
