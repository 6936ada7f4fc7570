package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Database DatabaseConfig
		Server   ServerConfig
		Storage  StorageConfig
	}

	DatabaseConfig struct {
		Engine        string // postgres | mysql | sqlite
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		Path          string // sqlite only
		DisableTLS    bool
		QueryTimeout  time.Duration
		RetryBackoff  time.Duration
	}

	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
		SessionLifetime time.Duration
		CookieName      string
		SecureCookie    bool
	}

	StorageConfig struct {
		Backend       string // disk | b2
		Dir           string
		B2KeyID       string
		B2AppKey      string
		B2Bucket      string
		MaxUploadSize int64
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default) and doubles as the variable prefix, eg. DEV_DATABASE_HOST.
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("debug", env == "DEV")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("appName", "Campus")
	conf.SetDefault("secretKey", "n2@x1v!8^cz0e#p$5kq7m+w9(t)h4&j-ls3b6yfrdga_ou")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.user", "campus")
	conf.SetDefault("database.password", "campus")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.name", "campus")
	conf.SetDefault("database.path", "campus.db")
	conf.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	conf.SetDefault("database.queryTimeout", 5*time.Second)
	conf.SetDefault("database.retryBackoff", 200*time.Millisecond)

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.addr", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.sessionLifetime", 24*time.Hour)
	conf.SetDefault("server.cookieName", "campus_session")
	conf.SetDefault("server.secureCookie", !(env == "DEV" || env == "TEST"))

	conf.SetDefault("storage.backend", "disk")
	conf.SetDefault("storage.dir", "uploads")
	conf.SetDefault("storage.b2KeyID", "")
	conf.SetDefault("storage.b2AppKey", "")
	conf.SetDefault("storage.b2Bucket", "")
	conf.SetDefault("storage.maxUploadSize", int64(10<<20))

	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      wd,
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			Name:          conf.GetString("database.name"),
			Path:          conf.GetString("database.path"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			QueryTimeout:  conf.GetDuration("database.queryTimeout"),
			RetryBackoff:  conf.GetDuration("database.retryBackoff"),
		},
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Addr:            conf.GetString("server.addr"),
			DebugHost:       conf.GetString("server.debugHost"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			SessionLifetime: conf.GetDuration("server.sessionLifetime"),
			CookieName:      conf.GetString("server.cookieName"),
			SecureCookie:    conf.GetBool("server.secureCookie"),
		},
		Storage: StorageConfig{
			Backend:       conf.GetString("storage.backend"),
			Dir:           conf.GetString("storage.dir"),
			B2KeyID:       conf.GetString("storage.b2KeyID"),
			B2AppKey:      conf.GetString("storage.b2AppKey"),
			B2Bucket:      conf.GetString("storage.b2Bucket"),
			MaxUploadSize: conf.GetInt64("storage.maxUploadSize"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: sqlite storage, short timeouts and no env lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		AppName:   "Campus",
		SecretKey: "secret-key-used-for-tests-only-0123456789",
		Database: DatabaseConfig{
			Engine:       "sqlite",
			QueryTimeout: 2 * time.Second,
			RetryBackoff: 10 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Addr:            ":0",
			ShutdownTimeout: time.Second,
			SessionLifetime: time.Hour,
			CookieName:      "campus_session",
		},
		Storage: StorageConfig{
			Backend:       "disk",
			MaxUploadSize: 1 << 20,
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s db=%s", c.AppName, c.Build, c.Env, c.Database.Engine)
}
