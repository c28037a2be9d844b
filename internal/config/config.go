package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Runner backends the engine can execute code with.
const (
	RunnerHost   = "host"
	RunnerDocker = "docker"
)

// Config holds runtime configuration values for the execution engine.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	// DatabaseURL enables the relational submission store; empty keeps
	// submissions in memory.
	DatabaseURL string
	// RedisURL enables the shared usage counter; empty keeps counting
	// per node.
	RedisURL string

	RunnerBackend   string
	DockerHost      string
	WorkspaceRoot   string
	TestConcurrency int

	AsyncResultTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Exec Engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("runner.backend", RunnerHost)
	v.SetDefault("workspace.root", "/tmp/gema-exec")
	v.SetDefault("test.concurrency", 3)
	v.SetDefault("async_result_ttl", "10m")

	ttlString := v.GetString("async_result_ttl")
	if ttlString == "" {
		ttlString = "10m"
	}
	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid async result ttl: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		RunnerBackend:   strings.ToLower(v.GetString("runner.backend")),
		DockerHost:      v.GetString("docker_host"),
		WorkspaceRoot:   v.GetString("workspace.root"),
		TestConcurrency: v.GetInt("test.concurrency"),
		AsyncResultTTL:  ttl,
	}

	switch cfg.RunnerBackend {
	case RunnerHost, RunnerDocker:
	default:
		return Config{}, fmt.Errorf("unknown runner backend %q", cfg.RunnerBackend)
	}

	if cfg.TestConcurrency <= 0 {
		cfg.TestConcurrency = 3
	}

	return cfg, nil
}
