package domain

import (
	"fmt"
	"strings"
	"time"
)

// BuildCompletion is the host pipeline's completion signal, as received over
// HTTP or from the message broker.
type BuildCompletion struct {
	Project     string            `json:"project"`
	Token       string            `json:"token"`
	JobName     string            `json:"jobName"`
	BuildNumber int               `json:"buildNumber"`
	DisplayName string            `json:"displayName,omitempty"`
	Result      string            `json:"result"`
	StartedAt   time.Time         `json:"startedAt"`
	URL         string            `json:"url"`
	RootURL     string            `json:"rootUrl,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// Job returns the job configuration. The token is passed through exactly as
// configured.
func (c BuildCompletion) Job() JobConfig {
	return JobConfig{
		Project: strings.TrimSpace(c.Project),
		Token:   c.Token,
	}
}

// Outcome validates the signal and converts it to a BuildOutcome.
func (c BuildCompletion) Outcome() (BuildOutcome, error) {
	result, err := ParseBuildResultFromString(c.Result)
	if err != nil {
		return BuildOutcome{}, err
	}
	if c.StartedAt.IsZero() {
		return BuildOutcome{}, fmt.Errorf("%w: startedAt is required", ErrValidation)
	}
	if c.BuildNumber < 0 {
		return BuildOutcome{}, fmt.Errorf("%w: buildNumber must be >= 0", ErrValidation)
	}

	return BuildOutcome{
		JobName:     strings.TrimSpace(c.JobName),
		BuildNumber: c.BuildNumber,
		DisplayName: strings.TrimSpace(c.DisplayName),
		Result:      result,
		StartedAt:   c.StartedAt,
		URL:         strings.TrimSpace(c.URL),
		Variables:   c.Variables,
	}, nil
}

func (c BuildCompletion) Validate() error {
	if _, err := c.Outcome(); err != nil {
		return err
	}
	return c.Job().Validate()
}
