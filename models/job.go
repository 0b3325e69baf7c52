package models

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a job in the system
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// transitions lists the states each state may move to. processing may be
// re-entered any number of times to report progress.
var transitions = map[JobStatus]map[JobStatus]bool{
	StatusQueued: {
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidateTransition checks if a job may move from one state to another
func ValidateTransition(from, to JobStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// Job is one end-to-end analysis run for a single portfolio URL and resume.
type Job struct {
	ID           string         `json:"id"`
	Status       JobStatus      `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message"`
	Result       map[string]any `json:"resultData,omitempty"`
	PortfolioURL string         `json:"portfolioUrl"`
	UserID       string         `json:"userId,omitempty"`
	ResumeFile   string         `json:"resumeFile,omitempty"`
	ResumeName   string         `json:"resumeName,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Clone returns a copy of the job whose result map can be mutated without
// affecting the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		c.Result = make(map[string]any, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	return &c
}

// StatusUpdate is a single write to the status channel. Result is merged into
// the stored result map key by key.
type StatusUpdate struct {
	Status   JobStatus
	Progress int
	Message  string
	Result   map[string]any
}

// Result payload keys written by the coordinator.
const (
	ResultResumeURL           = "resume_pdf_url"
	ResultResumeData          = "resume_data"
	ResultMainReportURL       = "main_report_url"
	ResultProjectsFound       = "projects_found"
	ResultProjectsAnalyzed    = "projects_analyzed"
	ResultProjectReports      = "project_reports"
	ResultUploadedScreenshots = "uploaded_screenshots"
	ResultTimeReportURL       = "time_report_url"
)
