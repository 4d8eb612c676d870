package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/simplesla-notifier/internal/config"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/spf13/cobra"
)

// buildFlags override the CI job environment.
type buildFlags struct {
	jobName     string
	buildNumber int
	displayName string
	buildURL    string
	rootURL     string
	result      string
	startedAt   string
	project     string
	token       string
	server      string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.jobName, "job", "", "Full job name (default $JOB_NAME)")
	flags.IntVar(&f.buildNumber, "build-number", 0, "Build number (default $BUILD_NUMBER)")
	flags.StringVar(&f.displayName, "display-name", "", "Build display name (default $BUILD_DISPLAY_NAME)")
	flags.StringVar(&f.buildURL, "build-url", "", "Build URL relative to the root URL (default $BUILD_URL)")
	flags.StringVar(&f.rootURL, "root-url", "", "CI root URL (default $JENKINS_URL)")
	flags.StringVar(&f.result, "result", "", "Build result: SUCCESS, UNSTABLE, FAILURE, NOT_BUILT, ABORTED (default $BUILD_RESULT)")
	flags.StringVar(&f.startedAt, "started-at", "", "Build start time, RFC3339 (default $BUILD_TIMESTAMP, then the current time, which is the completion time rather than the start)")
	flags.StringVar(&f.project, "project", "", "SimpleSLA project name (default $SLA_PROJECT)")
	flags.StringVar(&f.token, "token", "", "SimpleSLA token (default $SLA_TOKEN)")
	flags.StringVar(&f.server, "server", "", "SimpleSLA server name (default $SLA_SERVER, then "+domain.DefaultServerName+")")
}

// completion merges the environment with any flags set on cmd.
func (f *buildFlags) completion(cmd *cobra.Command, env *config.JobEnv, now time.Time) (domain.BuildCompletion, domain.GlobalSettings, error) {
	flags := cmd.Flags()
	pick := func(name, flagValue, envValue string) string {
		if flags.Changed(name) {
			return flagValue
		}
		return envValue
	}

	completion := domain.BuildCompletion{
		Project:     pick("project", f.project, env.Project),
		Token:       pick("token", f.token, env.Token),
		JobName:     pick("job", f.jobName, env.JobName),
		BuildNumber: env.BuildNumber,
		DisplayName: pick("display-name", f.displayName, env.BuildDisplayName),
		Result:      pick("result", f.result, env.BuildResult),
		URL:         pick("build-url", f.buildURL, env.RelativeBuildURL()),
		RootURL:     pick("root-url", f.rootURL, env.JenkinsURL),
		StartedAt:   now,
	}
	if flags.Changed("build-number") {
		completion.BuildNumber = f.buildNumber
	}
	if env.JobName != "" {
		completion.Variables = map[string]string{domain.BuildVariableJobName: env.JobName}
	}

	source, raw := "--started-at", strings.TrimSpace(f.startedAt)
	if !flags.Changed("started-at") {
		source, raw = "BUILD_TIMESTAMP", strings.TrimSpace(env.BuildTimestamp)
	}
	if raw != "" {
		startedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.BuildCompletion{}, domain.GlobalSettings{}, fmt.Errorf("invalid %s %q: %w", source, raw, err)
		}
		completion.StartedAt = startedAt
	}

	if _, err := completion.Outcome(); err != nil {
		return domain.BuildCompletion{}, domain.GlobalSettings{}, err
	}

	settings := domain.GlobalSettings{ServerName: pick("server", f.server, env.Server)}
	if err := settings.Validate(); err != nil {
		return domain.BuildCompletion{}, domain.GlobalSettings{}, err
	}

	return completion, settings, nil
}
