package ingest

// Status is the terminal state of one invocation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ReasonAlreadyExists is reported when the identity is already recorded.
const ReasonAlreadyExists = "already exists"

// Outcome describes what a single invocation did. It is built once, at the
// end of Run, and never partially populated.
type Outcome struct {
	Status    Status         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Kind      Kind           `json:"kind,omitempty"`
	Location  string         `json:"location"`
	Date      string         `json:"date"`
	SourceURL string         `json:"source_url,omitempty"`
	RunID     string         `json:"run_id"`
	Receipt   *InsertReceipt `json:"receipt,omitempty"`
}

// Succeeded is true for ok and skipped outcomes.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusOK || o.Status == StatusSkipped
}

// ExitCode maps the outcome to a process exit code.
func (o Outcome) ExitCode() int {
	if o.Succeeded() {
		return 0
	}
	return 1
}
