package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/wekeepgrowing/semo-course-billing/pkg/config"
	"gopkg.in/yaml.v3"
)

const serviceName = "payment"

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	JWT      JWTConfig      `yaml:"jwt"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// ClientURL is the storefront base URL used for post-payment redirects.
	ClientURL string `yaml:"client_url"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// ChannelPrefix namespaces published notification channels.
	ChannelPrefix string `yaml:"channel_prefix"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"file_path"`
	Development bool   `yaml:"development"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LoadConfig loads the payment service configuration. Any key can be
// overridden from the environment, e.g. PAYMENT_STRIPE_TEST_SECRET_KEY.
func LoadConfig() (*Config, error) {
	src, err := pkgconfig.Load(serviceName)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(src.GetAll())
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", src.ConfigFileUsed(), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// decode re-encodes the merged settings so the yaml tags above stay the
// single source of truth for key names.
func decode(settings map[string]interface{}) (*Config, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = serviceName
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Server.GRPC.Port == 0 {
		c.Server.GRPC.Port = 9090
	}
	if c.Server.HTTP.ReadTimeout == 0 {
		c.Server.HTTP.ReadTimeout = 30 * time.Second
	}
	if c.Server.HTTP.WriteTimeout == 0 {
		c.Server.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "course-billing"
	}
	c.Stripe.applyDefaults()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Service.ClientURL == "" {
		problems = append(problems, "service.client_url is required")
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}
	problems = append(problems, c.Stripe.validate()...)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
