package models

import "time"

// ItemStatus is the terminal outcome of one case-study pipeline.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// StageTimings records how long each per-item sub-stage took. A stage that
// never ran stays zero.
type StageTimings struct {
	Scrape     time.Duration `json:"scrape"`
	Screenshot time.Duration `json:"screenshot"`
	Analyze    time.Duration `json:"analyze"`
	Persist    time.Duration `json:"persist"`
}

// Sum is the total time attributed to named stages.
func (t StageTimings) Sum() time.Duration {
	return t.Scrape + t.Screenshot + t.Analyze + t.Persist
}

// ProjectItem is one discovered case-study URL and the outcome of its
// pipeline.
type ProjectItem struct {
	Index         int           `json:"index"`
	URL           string        `json:"url"`
	Slug          string        `json:"slug"`
	Status        ItemStatus    `json:"status"`
	FailedStage   string        `json:"failed_stage,omitempty"`
	Error         string        `json:"error,omitempty"`
	Timings       StageTimings  `json:"timings"`
	Total         time.Duration `json:"total"`
	ReportURL     string        `json:"report_url,omitempty"`
	ScreenshotURL string        `json:"screenshot_url,omitempty"`
}

// JobStageTimings are the top-level stage durations of a job.
type JobStageTimings struct {
	Resume    time.Duration `json:"resume"`
	Scrape    time.Duration `json:"scrape"`
	Analyze   time.Duration `json:"analyze"`
	Persist   time.Duration `json:"persist"`
	Discovery time.Duration `json:"discovery"`
	Projects  time.Duration `json:"projects"`
}

// Sum is the total time attributed to named top-level stages.
func (t JobStageTimings) Sum() time.Duration {
	return t.Resume + t.Scrape + t.Analyze + t.Persist + t.Discovery + t.Projects
}

// TimingReport aggregates the stage timings of a finished job. Total is
// measured wall-clock and is never less than the sum of the stages.
type TimingReport struct {
	JobID            string          `json:"job_id"`
	PortfolioURL     string          `json:"portfolio_url"`
	Stages           JobStageTimings `json:"stages"`
	Projects         []ProjectItem   `json:"projects"`
	ProjectsFound    int             `json:"projects_found"`
	ProjectsAnalyzed int             `json:"projects_analyzed"`
	Total            time.Duration   `json:"total"`
	Suppressed       []StageError    `json:"suppressed,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// StageError is a best-effort failure that was logged and skipped.
type StageError struct {
	Stage string `json:"stage"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error"`
}

// PortfolioReport is the top-level document persisted under
// {jobId}/{platformDomain}_main_portfolio.json.
type PortfolioReport struct {
	GeneratedAt time.Time `json:"generated_at"`
	Platform    string    `json:"platform"`
	*PortfolioAnalysis
}

// CaseStudyReport is the per-item document persisted under
// {jobId}/projects/{slug}.json.
type CaseStudyReport struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	URL             string             `json:"url"`
	ParentPortfolio string             `json:"parent_portfolio"`
	Status          ItemStatus         `json:"status"`
	Error           string             `json:"error,omitempty"`
	Screenshot      string             `json:"screenshot,omitempty"`
	ScrapedData     *ScrapeResult      `json:"scraped_data"`
	Analysis        *CaseStudyAnalysis `json:"analysis"`
	Timings         StageTimings       `json:"timings"`
}
