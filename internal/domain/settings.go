package domain

import (
	"fmt"
	"strings"
)

// DefaultServerName is used when no global server name is configured.
const DefaultServerName = "simplesla.ebit.lv"

// JobConfig is the per-job notifier configuration.
type JobConfig struct {
	Project string
	Token   string
}

func (c JobConfig) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	return nil
}

// GlobalSettings is the installation-wide configuration owned by the host.
type GlobalSettings struct {
	ServerName string
}

// Server returns the configured server name or DefaultServerName when unset.
func (s GlobalSettings) Server() string {
	if name := strings.TrimSpace(s.ServerName); name != "" {
		return name
	}
	return DefaultServerName
}

// Validate accepts an empty name or a bare host[:port].
func (s GlobalSettings) Validate() error {
	name := strings.TrimSpace(s.ServerName)
	if name == "" {
		return nil
	}
	if strings.Contains(name, "://") {
		return fmt.Errorf("%w: server name must not include a scheme", ErrValidation)
	}
	if strings.ContainsAny(name, "/?# \t") {
		return fmt.Errorf("%w: server name must be a bare host", ErrValidation)
	}
	return nil
}

// NotificationConfig is everything the delivery path needs for one invocation.
type NotificationConfig struct {
	Job      JobConfig
	Settings GlobalSettings
}
