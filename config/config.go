package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	services "github.com/phillip/hela-fund-go/services"
	store "github.com/phillip/hela-fund-go/store"
	utils "github.com/phillip/hela-fund-go/utils"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config is handed to every handler factory. The first block comes from the
// environment; the runtime handles are filled in by main.
type Config struct {
	Env         string        `envconfig:"APP_ENV" default:"production"`
	Port        string        `envconfig:"PORT" default:"8080"`
	MongoURI    string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017/?replicaSet=rs0"`
	DBName      string        `envconfig:"DB_NAME" default:"hela_fund"`
	StoreDriver string        `envconfig:"STORE_DRIVER" default:"mongo"`
	JWTSecret   string        `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiry   time.Duration `envconfig:"JWT_EXPIRY" default:"24h"`
	CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	ContributionMaxAttempts int `envconfig:"CONTRIBUTION_MAX_ATTEMPTS" default:"3"`

	Cloudinary CloudinaryConfig
	Mail       MailConfig

	Store    store.Store           `ignored:"true"`
	Logger   *zap.Logger           `ignored:"true"`
	Uploader utils.ImageUploader   `ignored:"true"`
	Mailer   services.Mailer       `ignored:"true"`
	Service  *services.Service     `ignored:"true"`
	Auth     *services.AuthService `ignored:"true"`
}

type CloudinaryConfig struct {
	CloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	APISecret string `envconfig:"CLOUDINARY_API_SECRET"`
}

func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type MailConfig struct {
	APIURL string `envconfig:"ZEPTO_API_URL" default:"https://api.zeptomail.com/v1.1/email"`
	APIKey string `envconfig:"ZEPTO_API_KEY"`
	From   string `envconfig:"EMAIL_FROM" default:"noreply@helafund.lk"`
}

func (m MailConfig) Enabled() bool {
	return m.APIKey != ""
}

// Load reads .env files when present and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("load config: STORE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StoreDriver)
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("load config: JWT_EXPIRY must be positive")
	}
	if c.ContributionMaxAttempts < 1 {
		return fmt.Errorf("load config: CONTRIBUTION_MAX_ATTEMPTS must be at least 1")
	}
	for i, o := range c.CORSOrigins {
		o = strings.TrimSpace(o)
		if !validOrigin(o) {
			return fmt.Errorf("load config: CORS_ORIGINS entry %q must be * or an http:// or https:// origin", o)
		}
		c.CORSOrigins[i] = o
	}
	return nil
}

// validOrigin accepts what cors.New accepts without wildcards enabled.
func validOrigin(o string) bool {
	if o == "*" {
		return true
	}
	if strings.Contains(o, "*") {
		return false
	}
	u, err := url.Parse(o)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// LogFields is what gets logged at startup. Secrets are masked.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Env),
		zap.String("port", c.Port),
		zap.String("store", c.StoreDriver),
		zap.String("db", c.DBName),
		zap.String("mongo_uri", mask(c.MongoURI)),
		zap.Duration("jwt_expiry", c.JWTExpiry),
		zap.Strings("cors_origins", c.CORSOrigins),
		zap.Bool("cloudinary", c.Cloudinary.Enabled()),
		zap.Bool("mail", c.Mail.Enabled()),
	}
}

func mask(v string) string {
	if len(v) <= 12 {
		return "****"
	}
	return v[:10] + "****"
}
