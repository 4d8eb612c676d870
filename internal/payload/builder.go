// Package payload maps a finished build onto the ticket the monitoring server expects.
package payload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

// TimestampLayout is the rendering used for issue_created_at/issue_updated_at.
const TimestampLayout = "Mon Jan 02 15:04:05 MST 2006"

var (
	ErrRootURLMissing = fmt.Errorf("%w: root url is not configured", domain.ErrValidation)
	ErrJobNameMissing = fmt.Errorf("%w: job name is empty", domain.ErrValidation)
)

// Build returns the ticket for outcome. When the host is misconfigured it still
// returns a usable ticket together with a non-nil error describing what is missing.
func Build(outcome domain.BuildOutcome, job domain.JobConfig, rootURL string) (domain.Ticket, error) {
	var errs []error

	key := outcome.FullJobName()
	if key == "" {
		errs = append(errs, ErrJobNameMissing)
	}

	url, err := JoinURL(rootURL, outcome.URL)
	if err != nil {
		errs = append(errs, err)
	}

	createdAt := outcome.StartedAt.Format(TimestampLayout)

	ticket := domain.Ticket{
		Project:        job.Project,
		Key:            key,
		URL:            url,
		IssueType:      domain.TicketIssueTypeBuild,
		Priority:       domain.TicketPriority,
		Status:         outcome.Result.String(),
		IssueCreatedAt: createdAt,
		IssueUpdatedAt: createdAt,
		Resolution:     nil,
	}

	return ticket, errors.Join(errs...)
}

// JoinURL joins the host root url and a relative build path with a single slash.
// Without a root url the relative path is returned with ErrRootURLMissing.
func JoinURL(rootURL string, buildPath string) (string, error) {
	root := strings.TrimRight(strings.TrimSpace(rootURL), "/")
	path := strings.TrimLeft(strings.TrimSpace(buildPath), "/")

	if root == "" {
		return path, ErrRootURLMissing
	}
	if path == "" {
		return root + "/", nil
	}
	return root + "/" + path, nil
}
