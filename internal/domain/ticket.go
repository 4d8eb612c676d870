package domain

const (
	TicketIssueTypeBuild = "build"
	TicketPriority       = "1"
)

// Ticket is the JSON body posted to the monitoring server.
type Ticket struct {
	Project        string  `json:"project"`
	Key            string  `json:"key"`
	URL            string  `json:"url"`
	IssueType      string  `json:"issue_type"`
	Priority       string  `json:"priority"`
	Status         string  `json:"status"`
	IssueCreatedAt string  `json:"issue_created_at"`
	IssueUpdatedAt string  `json:"issue_updated_at"`
	Resolution     *string `json:"resolution"`
}
