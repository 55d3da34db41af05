package config

import (
	"fmt"
	"os"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/tenant"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AdminBootstrap struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Config struct {
	Port    int    `yaml:"port"`
	Dsn     string `yaml:"dsn"`
	LogFile string `yaml:"log_file"`

	// Empty means a random per-process secret; issued tokens then expire on
	// restart, which is acceptable for single-instance deployments.
	JwtSecret string `yaml:"jwt_secret"`

	// "basic" or "keycloak".
	IdentityProvider string            `yaml:"identity_provider"`
	Keycloak         auth.KeycloakArgs `yaml:"keycloak"`

	Tenant tenant.Config  `yaml:"tenant"`
	Admin  AdminBootstrap `yaml:"admin"`
}

func defaults() Config {
	return Config{
		Port:             8000,
		LogFile:          "quilt.log",
		IdentityProvider: "basic",
		Tenant:           tenant.DefaultConfig(),
	}
}

// Load builds the server configuration: defaults, then the optional yaml
// file, then environment variables. A .env file is honored in development.
func Load(path string) (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	c := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnv(&c)

	if c.Dsn == "" {
		return Config{}, fmt.Errorf("database dsn must be provided via config file or QUILT_DSN")
	}

	return c, nil
}

func applyEnv(c *Config) {
	setString := func(dest *string, key string) {
		if value, ok := os.LookupEnv(key); ok {
			*dest = value
		}
	}

	if value, ok := os.LookupEnv("QUILT_PORT"); ok {
		if port, err := strconv.Atoi(value); err == nil {
			c.Port = port
		}
	}

	setString(&c.Dsn, "QUILT_DSN")
	setString(&c.LogFile, "QUILT_LOG_FILE")
	setString(&c.JwtSecret, "QUILT_JWT_SECRET")
	setString(&c.IdentityProvider, "QUILT_IDENTITY_PROVIDER")

	setString(&c.Keycloak.ServerUrl, "KEYCLOAK_SERVER_URL")
	setString(&c.Keycloak.Realm, "KEYCLOAK_REALM")
	setString(&c.Keycloak.ClientId, "KEYCLOAK_CLIENT_ID")
	setString(&c.Keycloak.ClientSecret, "KEYCLOAK_CLIENT_SECRET")
	setString(&c.Keycloak.AdminUsername, "KEYCLOAK_ADMIN_USERNAME")
	setString(&c.Keycloak.AdminPassword, "KEYCLOAK_ADMIN_PASSWORD")

	setString(&c.Tenant.Domain, "QUILT_TENANT_DOMAIN")
	setString(&c.Tenant.Company, "QUILT_TENANT_COMPANY")

	setString(&c.Admin.Name, "QUILT_ADMIN_NAME")
	setString(&c.Admin.Email, "QUILT_ADMIN_EMAIL")
	setString(&c.Admin.Password, "QUILT_ADMIN_PASSWORD")
}
