package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN   string        `env:"DATABASE_DSN,required=true"`
	RedisURL      string        `env:"REDIS_URL"`
	RabbitMQURL   string        `env:"RABBITMQ_URL"`
	SLAServerName string        `env:"SLA_SERVER_NAME"`
	RootURL       string        `env:"ROOT_URL"`
	DedupTTL      time.Duration `env:"DEDUP_TTL,default=24h"`
	APIPort       int           `env:"API_PORT,default=8080"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DedupTTL <= 0 {
		return nil, fmt.Errorf("failed to load config: DEDUP_TTL must be positive, got %s", cfg.DedupTTL)
	}

	return &cfg, nil
}

// JobEnv is the environment a CI job exposes to a post-build step.
type JobEnv struct {
	JobName          string `env:"JOB_NAME"`
	BuildNumber      int    `env:"BUILD_NUMBER,default=0"`
	BuildDisplayName string `env:"BUILD_DISPLAY_NAME"`
	BuildURL         string `env:"BUILD_URL"`
	JenkinsURL       string `env:"JENKINS_URL"`
	BuildResult      string `env:"BUILD_RESULT"`
	BuildTimestamp   string `env:"BUILD_TIMESTAMP"`
	Project          string `env:"SLA_PROJECT"`
	Token            string `env:"SLA_TOKEN"`
	Server           string `env:"SLA_SERVER"`
}

func LoadJobEnv() (*JobEnv, error) {
	var je JobEnv
	_, err := env.UnmarshalFromEnviron(&je)
	if err != nil {
		return nil, fmt.Errorf("failed to load job environment: %w", err)
	}
	return &je, nil
}

// RelativeBuildURL strips the instance root from BUILD_URL, which CI servers
// publish as an absolute URL.
func (je JobEnv) RelativeBuildURL() string {
	root := strings.TrimSpace(je.JenkinsURL)
	u := strings.TrimSpace(je.BuildURL)
	if root != "" && strings.HasPrefix(u, root) {
		return strings.TrimLeft(strings.TrimPrefix(u, root), "/")
	}
	return u
}
