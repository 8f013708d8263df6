package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spese-analytics/internal/core"
)

// Queue names. Mutation events and trend recomputation share the events
// queue; report generation has its own.
const (
	QueueEvents  = "expense_events"
	QueueReports = "report_requests"
)

type JobType string

const (
	JobNewExpense    JobType = "new_expense"
	JobUpdateExpense JobType = "update_expense"
	JobDeleteExpense JobType = "delete_expense"
	JobComputeTrends JobType = "compute_trends"
	JobSendReport    JobType = "send_report"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidJob     = errors.New("invalid job")
)

// IsMutation reports whether the job signals a change to a user's records.
func (t JobType) IsMutation() bool {
	switch t {
	case JobNewExpense, JobUpdateExpense, JobDeleteExpense:
		return true
	}
	return false
}

// Payload carries the named fields relevant to a job type. UserID is always set.
type Payload struct {
	UserID    string `json:"user_id"`
	ExpenseID int64  `json:"expense_id,omitempty"`
	Period    string `json:"period,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Job is the message exchanged on the queues. It is never modified after
// publishing and may be delivered more than once.
type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewJob creates a job with a fresh ID.
func NewJob(t JobType, p Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   p,
		Timestamp: time.Now().UTC(),
	}
}

// NewMutationJob creates a new/update/delete expense event.
func NewMutationJob(t JobType, userID string, expenseID int64) *Job {
	return NewJob(t, Payload{UserID: userID, ExpenseID: expenseID})
}

// NewComputeTrendsJob requests a trend analysis for a user.
func NewComputeTrendsJob(userID string) *Job {
	return NewJob(JobComputeTrends, Payload{UserID: userID})
}

// NewSendReportJob requests the report of a period for a recipient. Every
// call is a distinct request and is delivered on its own.
func NewSendReportJob(userID, period, recipient string) *Job {
	return NewJob(JobSendReport, Payload{UserID: userID, Period: period, Recipient: recipient})
}

// scheduledReportNamespace seeds the IDs of scheduled report jobs.
var scheduledReportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("spese-analytics/scheduled-report"))

// NewScheduledReportJob is the scheduler's variant of NewSendReportJob. Its
// ID is derived from the user, period and recipient, so a schedule that fires
// twice for the same month produces the same job and the report goes out once.
func NewScheduledReportJob(userID, period, recipient string) *Job {
	job := NewSendReportJob(userID, period, recipient)
	job.ID = uuid.NewSHA1(scheduledReportNamespace, []byte(userID+"\x00"+period+"\x00"+recipient)).String()
	return job
}

// QueueFor returns the queue a job type is published to.
func QueueFor(t JobType) (string, error) {
	switch t {
	case JobNewExpense, JobUpdateExpense, JobDeleteExpense, JobComputeTrends:
		return QueueEvents, nil
	case JobSendReport:
		return QueueReports, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJobType, t)
}

// Validate checks the type and the fields that type requires.
func (j *Job) Validate() error {
	if _, err := QueueFor(j.Type); err != nil {
		return err
	}
	if err := core.ValidateUserID(j.Payload.UserID); err != nil {
		return fmt.Errorf("%w: user_id: %v", ErrInvalidJob, err)
	}
	switch {
	case j.Type.IsMutation() && j.Payload.ExpenseID <= 0:
		return fmt.Errorf("%w: %s requires expense_id", ErrInvalidJob, j.Type)
	case j.Type == JobSendReport && (j.Payload.Period == "" || j.Payload.Recipient == ""):
		return fmt.Errorf("%w: %s requires period and recipient", ErrInvalidJob, j.Type)
	}
	return nil
}

// ToJSON converts the job to JSON bytes
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// JobFromJSON decodes a job. It does not validate it.
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
