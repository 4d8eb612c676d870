package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BuildResult is the terminal status of a single build execution.
type BuildResult string

const (
	ResultSuccess  BuildResult = "SUCCESS"
	ResultUnstable BuildResult = "UNSTABLE"
	ResultFailure  BuildResult = "FAILURE"
	ResultNotBuilt BuildResult = "NOT_BUILT"
	ResultAborted  BuildResult = "ABORTED"
)

func (r BuildResult) String() string { return string(r) }

func (r BuildResult) IsValid() bool {
	switch r {
	case ResultSuccess, ResultUnstable, ResultFailure, ResultNotBuilt, ResultAborted:
		return true
	}
	return false
}

// Notifiable reports whether a build with this result is sent to the monitoring server.
func (r BuildResult) Notifiable() bool {
	switch r {
	case ResultSuccess, ResultUnstable, ResultFailure:
		return true
	}
	return false
}

func ParseBuildResultFromString(s string) (BuildResult, error) {
	r := BuildResult(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: invalid build result %q", ErrValidation, s)
	}
	return r, nil
}

// BuildVariableJobName is the build variable consulted when JobName is empty.
const BuildVariableJobName = "JOB_NAME"

// BuildOutcome is the host pipeline's view of a finished build. It is read-only here.
type BuildOutcome struct {
	JobName     string
	BuildNumber int
	DisplayName string
	Result      BuildResult
	StartedAt   time.Time
	URL         string
	Variables   map[string]string
}

// FullJobName returns the job name, falling back to the JOB_NAME build variable.
func (o BuildOutcome) FullJobName() string {
	if name := strings.TrimSpace(o.JobName); name != "" {
		return name
	}
	return strings.TrimSpace(o.Variables[BuildVariableJobName])
}

// Label renders the build the way the host shows it, e.g. "Demo #42".
func (o BuildOutcome) Label() string {
	display := strings.TrimSpace(o.DisplayName)
	if display == "" {
		display = "#" + strconv.Itoa(o.BuildNumber)
	}
	return o.FullJobName() + " " + display
}
