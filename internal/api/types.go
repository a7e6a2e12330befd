package api

import (
	"strings"

	"channel-analytics/internal/domain"
)

// Wire shapes of the analysis service. They stay private to this package and
// are converted to domain types after validation.

type loginResponse struct {
	AuthURL string `json:"auth_url"`
}

type authStatusResponse struct {
	Authenticated *bool `json:"authenticated"`
}

type analyzeRequest struct {
	URLs []string `json:"urls"`
}

type analyzeResponse struct {
	JobID      string `json:"job_id"`
	TaskNumber *int   `json:"task_number,omitempty"`
}

type taskStatusWire struct {
	TaskNumber *int    `json:"task_number,omitempty"`
	Status     string  `json:"status"`
	SheetURL   *string `json:"sheet_url,omitempty"`
	Error      *string `json:"error,omitempty"`
}

type statusResponse struct {
	OverallStatus string           `json:"overall_status"`
	Tasks         []taskStatusWire `json:"tasks"`
}

// taskStateAliases maps service task statuses to domain states. Older
// service builds report "queue" for queued tasks.
var taskStateAliases = map[string]domain.TaskState{
	"queued":  domain.TaskStateQueued,
	"queue":   domain.TaskStateQueued,
	"working": domain.TaskStateWorking,
	"done":    domain.TaskStateDone,
	"failed":  domain.TaskStateFailed,
}

func (r statusResponse) toDomain() (domain.JobStatus, error) {
	overall := domain.OverallStatus(strings.ToLower(strings.TrimSpace(r.OverallStatus)))
	if !overall.Valid() {
		return domain.JobStatus{}, errUnknownStatus("overall_status", r.OverallStatus)
	}

	tasks := make([]domain.TaskStatus, 0, len(r.Tasks))
	for i, wire := range r.Tasks {
		state, ok := taskStateAliases[strings.ToLower(strings.TrimSpace(wire.Status))]
		if !ok {
			return domain.JobStatus{}, errUnknownStatus("task status", wire.Status)
		}

		task := domain.TaskStatus{
			TaskNumber: i + 1,
			Status:     state,
		}
		if wire.TaskNumber != nil && *wire.TaskNumber >= 1 {
			task.TaskNumber = *wire.TaskNumber
		}
		if state == domain.TaskStateDone && wire.SheetURL != nil {
			task.ResultLink = strings.TrimSpace(*wire.SheetURL)
		}
		if state == domain.TaskStateFailed && wire.Error != nil {
			task.Error = *wire.Error
		}
		tasks = append(tasks, task)
	}

	return domain.JobStatus{OverallStatus: overall, Tasks: tasks}, nil
}
