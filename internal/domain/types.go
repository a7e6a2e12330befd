package domain

// AuthState is the session authentication state shown by the view.
type AuthState string

const (
	AuthStateUnknown         AuthState = "unknown"
	AuthStateChecking        AuthState = "checking"
	AuthStateUnauthenticated AuthState = "unauthenticated"
	AuthStateAuthenticated   AuthState = "authenticated"
)

// OverallStatus is the job-level status reported by the analysis service.
type OverallStatus string

const (
	OverallStatusProcessing OverallStatus = "processing"
	OverallStatusComplete   OverallStatus = "complete"
	OverallStatusFailed     OverallStatus = "failed"
)

// IsTerminal reports whether no further transitions follow this status.
func (s OverallStatus) IsTerminal() bool {
	return s == OverallStatusComplete || s == OverallStatusFailed
}

// Valid reports whether s is one of the known overall statuses.
func (s OverallStatus) Valid() bool {
	switch s {
	case OverallStatusProcessing, OverallStatusComplete, OverallStatusFailed:
		return true
	default:
		return false
	}
}

// TaskState is the status of one server-side task of a job.
type TaskState string

const (
	TaskStateQueued  TaskState = "queued"
	TaskStateWorking TaskState = "working"
	TaskStateDone    TaskState = "done"
	TaskStateFailed  TaskState = "failed"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	APIBaseURL     string   `json:"apiBaseUrl"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	CallbackAddr   string   `json:"callbackAddr"`
	CredentialPath string   `json:"credentialPath"`
}

// TaskStatus is one task record of a job snapshot.
// ResultLink is set only for done tasks and Error only for failed tasks.
type TaskStatus struct {
	TaskNumber int       `json:"taskNumber"`
	Status     TaskState `json:"status"`
	ResultLink string    `json:"resultLink,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// JobStatus is one full status response for a job.
type JobStatus struct {
	OverallStatus OverallStatus `json:"overallStatus"`
	Tasks         []TaskStatus  `json:"tasks"`
}

// JobHandle identifies a submitted job.
type JobHandle struct {
	JobID      string `json:"jobId"`
	TaskNumber int    `json:"taskNumber,omitempty"`
}

// Job stores the tracked job identity, its latest snapshot and loading state.
type Job struct {
	ID            string        `json:"id"`
	TaskNumber    int           `json:"taskNumber,omitempty"`
	OverallStatus OverallStatus `json:"overallStatus,omitempty"`
	Tasks         []TaskStatus  `json:"tasks"`
	Loading       bool          `json:"loading"`
	Error         string        `json:"error,omitempty"`
}

// Clone returns a copy that shares no task slice with j.
func (j Job) Clone() Job {
	if j.Tasks != nil {
		j.Tasks = append([]TaskStatus(nil), j.Tasks...)
	}
	return j
}

// ResultLinks returns the artifact links of all done tasks in task order.
func (j Job) ResultLinks() []string {
	var links []string
	for _, task := range j.Tasks {
		if task.Status == TaskStateDone && task.ResultLink != "" {
			links = append(links, task.ResultLink)
		}
	}
	return links
}

// AuthSnapshot is the auth state with an optional failure reason.
type AuthSnapshot struct {
	State  AuthState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

// LoginPrompt describes the secondary context opened for the handshake.
type LoginPrompt struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
