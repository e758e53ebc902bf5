package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"user-management-api/internal/auth"
	"user-management-api/internal/service"
)

// EnvPrefix is prepended to every environment override, e.g. USERMGMT_AUTH_JWTSECRET.
const EnvPrefix = "USERMGMT"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
		// TrustedProxies lists proxy addresses or CIDRs whose forwarding
		// headers are honoured. Empty means the socket peer is the client.
		TrustedProxies []string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret   string
		Issuer      string
		Audience    string
		TokenTTL    time.Duration
		BcryptCost  int
		HashWorkers int
	}
	Admin struct {
		Username string
		Password string
		Role     string
	}
	App struct {
		Environment string
	}
	Log struct {
		Level  string
		Format string
	}
	RateLimit struct {
		Login struct {
			RPS   float64
			Burst int
		}
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/usermgmt")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("database.path", "data/usermgmt.db")
	// Registered so AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "UserManagementAPI")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.tokenttl", auth.DefaultTokenTTL)
	v.SetDefault("auth.bcryptcost", auth.DefaultBcryptCost)
	v.SetDefault("auth.hashworkers", 0)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.role", "")
	v.SetDefault("app.environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ratelimit.login.rps", 5.0)
	v.SetDefault("ratelimit.login.burst", 10)
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if err := c.TokenConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}
	if c.Auth.HashWorkers < 0 {
		errs = append(errs, errors.New("auth.hashworkers must not be negative"))
	}
	if strings.TrimSpace(c.Admin.Username) == "" {
		errs = append(errs, errors.New("admin.username is required"))
	}
	if c.RateLimit.Login.RPS < 0 || c.RateLimit.Login.Burst < 0 {
		errs = append(errs, errors.New("ratelimit.login values must not be negative"))
	}
	return errors.Join(errs...)
}

// Production reports whether the service runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Environment), "production")
}

// TokenConfig converts the auth section into the signing configuration.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   []byte(c.Auth.JWTSecret),
		Issuer:   strings.TrimSpace(c.Auth.Issuer),
		Audience: strings.TrimSpace(c.Auth.Audience),
		TTL:      c.Auth.TokenTTL,
	}
}

// BootstrapConfig converts the admin section into the bootstrapper settings.
func (c Config) BootstrapConfig() service.BootstrapConfig {
	return service.BootstrapConfig{
		Username:   c.Admin.Username,
		Password:   c.Admin.Password,
		Role:       c.Admin.Role,
		Production: c.Production(),
	}
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
