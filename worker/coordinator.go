// Package worker runs analysis jobs. A Coordinator drives one job through
// resume, scrape, analyze, persist, discovery and the per-case-study
// pipelines, and Workers pull queued jobs off the Board.
package worker

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/screenshot"
	"github.com/jupark12/portfolio-grader/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("worker")

const (
	DefaultScrapeTimeout  = 60 * time.Second
	DefaultAnalyzeTimeout = 120 * time.Second
)

// Progress reported at stage boundaries. Case studies move progress from
// progressItemsBase to progressItemsBase+progressItemsRange.
const (
	progressStart      = 5
	progressResume     = 10
	progressScrape     = 15
	progressAnalyze    = 30
	progressPersist    = 40
	progressItemsBase  = 45
	progressItemsRange = 45
	progressReport     = 95
)

// Scraper fetches portfolio and case-study pages.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error)
	ScrapeProject(ctx context.Context, parentURL, rawURL string) (*models.ScrapeResult, error)
}

// Analyzer scores pages.
type Analyzer interface {
	AnalyzePortfolio(ctx context.Context, page *models.ScrapeResult) (*models.PortfolioAnalysis, error)
	AnalyzeCaseStudy(ctx context.Context, page *models.ScrapeResult, screenshot []byte) (*models.CaseStudyAnalysis, error)
}

// Screenshotter captures and stores a page screenshot.
type Screenshotter interface {
	Take(ctx context.Context, jobID, pageURL string, jobCreated time.Time) (*screenshot.Shot, error)
}

// StatusWriter is the write side of the status channel.
type StatusWriter interface {
	SetStatus(ctx context.Context, jobID string, u models.StatusUpdate) error
}

// ResumeParser extracts contact fields from a resume file.
type ResumeParser func(ctx context.Context, path string) (models.ResumeData, error)

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Status   StatusWriter
	Scraper  Scraper
	Analyzer Analyzer
	Store    storage.Client

	// Screenshots may be nil, in which case case studies are scored from
	// their text alone.
	Screenshots Screenshotter
	// Docs may be nil when no document store is configured.
	Docs        docstore.Store
	ParseResume ResumeParser

	// ItemConcurrency above 1 runs case studies on a bounded pool.
	ItemConcurrency int
	ScrapeTimeout   time.Duration
	AnalyzeTimeout  time.Duration

	Metrics *Metrics
	Now     func() time.Time
}

// Coordinator runs jobs end to end. It is safe to run several jobs at once.
type Coordinator struct {
	deps Deps
}

// NewCoordinator checks deps and fills in defaults.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	switch {
	case deps.Status == nil:
		return nil, errors.New("coordinator: status writer is required")
	case deps.Scraper == nil:
		return nil, errors.New("coordinator: scraper is required")
	case deps.Analyzer == nil:
		return nil, errors.New("coordinator: analyzer is required")
	case deps.Store == nil:
		return nil, errors.New("coordinator: storage client is required")
	}
	if deps.Docs == nil {
		deps.Docs = docstore.Noop{}
	}
	if deps.ScrapeTimeout <= 0 {
		deps.ScrapeTimeout = DefaultScrapeTimeout
	}
	if deps.AnalyzeTimeout <= 0 {
		deps.AnalyzeTimeout = DefaultAnalyzeTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{deps: deps}, nil
}

func (c *Coordinator) now() time.Time {
	return c.deps.Now()
}

// Run drives job from processing to completed or failed. Every outcome,
// including a recovered panic, is written to the status channel before Run
// returns. The returned error is the cause of a failed job.
func (c *Coordinator) Run(ctx context.Context, job *models.Job) (report *models.TimingReport, err error) {
	r := &run{
		c:       c,
		job:     job,
		log:     slog.With("job_id", job.ID),
		started: c.now(),
	}

	ctx, span := tracer.Start(ctx, "job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("url", job.PortfolioURL),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("pipeline panicked", "panic", p, "stack", string(debug.Stack()))
			report, err = nil, fmt.Errorf("unexpected error: %v", p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.fail(ctx, err)
			c.deps.Metrics.jobDone(string(models.StatusFailed))
			return
		}
		c.deps.Metrics.jobDone(string(models.StatusCompleted))
	}()

	return r.execute(ctx)
}

// run is the state of one job execution.
type run struct {
	c       *Coordinator
	job     *models.Job
	log     *slog.Logger
	started time.Time
	stages  models.JobStageTimings
	resume  models.ResumeData

	mu       sync.Mutex
	progress int
	found    int
	done     int
	analyzed int

	smu        sync.Mutex
	suppressed []models.StageError
}

func (r *run) execute(ctx context.Context) (*models.TimingReport, error) {
	job := r.job
	r.log.Info("job started", "url", job.PortfolioURL)

	if err := r.report(ctx, progressStart, "Starting analysis", nil); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	if job.ResumeFile != "" {
		r.step(ctx, progressResume, "Processing resume...", r.processResume(ctx))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.step(ctx, progressScrape, "Scraping portfolio...", nil)
	page, err := r.scrapePortfolio(ctx)
	if err != nil {
		return nil, err
	}

	r.step(ctx, progressAnalyze, "Analyzing portfolio...", nil)
	analysis, err := r.analyzePortfolio(ctx, page)
	if err != nil {
		return nil, err
	}

	r.step(ctx, progressPersist, "Saving portfolio report...", nil)
	mainURL := r.persistPortfolio(ctx, page, analysis)

	_, end := r.stage(ctx, "discovery")
	urls := Discover(job.PortfolioURL, analysis)
	r.stages.Discovery = end(nil)
	r.found = len(urls)
	r.log.Info("case studies discovered", "count", len(urls))

	patch := map[string]any{
		models.ResultProjectsFound:    len(urls),
		models.ResultProjectsAnalyzed: 0,
	}
	if mainURL != "" {
		patch[models.ResultMainReportURL] = mainURL
	}
	r.step(ctx, progressItemsBase, fmt.Sprintf("Found %d case studies", len(urls)), patch)

	itemsCtx, end := r.stage(ctx, "projects")
	items := r.runItems(itemsCtx, urls)
	r.stages.Projects = end(nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.step(ctx, progressReport, "Building timing report...", nil)
	report := r.timingReport(items)
	timeURL := r.persistTimingReport(ctx, report)

	final := map[string]any{
		models.ResultProjectsFound:       report.ProjectsFound,
		models.ResultProjectsAnalyzed:    report.ProjectsAnalyzed,
		models.ResultProjectReports:      reportURLs(items),
		models.ResultUploadedScreenshots: screenshotURLs(items),
	}
	if timeURL != "" {
		final[models.ResultTimeReportURL] = timeURL
	}
	msg := fmt.Sprintf("Analysis complete: %d of %d case studies analyzed", report.ProjectsAnalyzed, report.ProjectsFound)
	if err := r.c.deps.Status.SetStatus(ctx, job.ID, models.StatusUpdate{
		Status:   models.StatusCompleted,
		Progress: 100,
		Message:  msg,
		Result:   final,
	}); err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}

	r.log.Info("job completed",
		"found", report.ProjectsFound,
		"analyzed", report.ProjectsAnalyzed,
		"total", report.Total,
	)
	return report, nil
}

// fail records err as the job's terminal failure. Progress is left at the
// last reported value.
func (r *run) fail(ctx context.Context, err error) {
	r.log.Error("job failed", "err", err)

	r.mu.Lock()
	progress := r.progress
	r.mu.Unlock()

	if serr := r.c.deps.Status.SetStatus(context.WithoutCancel(ctx), r.job.ID, models.StatusUpdate{
		Status:   models.StatusFailed,
		Progress: progress,
		Message:  err.Error(),
	}); serr != nil {
		r.log.Error("failed to record job failure", "err", serr)
	}
}

// report writes a processing update. Progress never moves backwards.
func (r *run) report(ctx context.Context, progress int, message string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportLocked(ctx, progress, message, patch)
}

func (r *run) reportLocked(ctx context.Context, progress int, message string, patch map[string]any) error {
	if progress < r.progress {
		progress = r.progress
	}
	r.progress = progress
	return r.c.deps.Status.SetStatus(ctx, r.job.ID, models.StatusUpdate{
		Status:   models.StatusProcessing,
		Progress: progress,
		Message:  message,
		Result:   patch,
	})
}

// step is report for checkpoints whose write may fail without stopping the job.
func (r *run) step(ctx context.Context, progress int, message string, patch map[string]any) {
	r.bestEffort("status", "", r.report(ctx, progress, message, patch))
}

// bestEffort logs and counts a failure that must not stop the job. An
// unconfigured document store is expected and only logged at debug level.
func (r *run) bestEffort(stage, url string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, docstore.ErrUnavailable) {
		r.log.Debug("document store unavailable, skipping", "stage", stage)
		return
	}
	r.log.Warn("best-effort step failed", "stage", stage, "url", url, "err", err)
	r.c.deps.Metrics.suppressed(stage)

	r.smu.Lock()
	r.suppressed = append(r.suppressed, models.StageError{Stage: stage, URL: url, Error: err.Error()})
	r.smu.Unlock()
}

// suppressedErrors returns a copy of the best-effort failures recorded so far.
func (r *run) suppressedErrors() []models.StageError {
	r.smu.Lock()
	defer r.smu.Unlock()
	return append([]models.StageError(nil), r.suppressed...)
}

// stage starts a traced stage. The returned func ends it and returns its
// duration.
func (r *run) stage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error) time.Duration) {
	ctx, span := tracer.Start(ctx, "stage:"+name, trace.WithAttributes(attrs...))
	start := r.c.now()
	return ctx, func(err error) time.Duration {
		d := r.c.now().Sub(start)
		if d < 0 {
			d = 0
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.c.deps.Metrics.observeStage(name, d)
		return d
	}
}

func (r *run) mirror(ctx context.Context, stage, path string, fields map[string]any) {
	r.bestEffort(stage, "", r.c.deps.Docs.Set(ctx, path, fields))
}

func (r *run) processResume(ctx context.Context) map[string]any {
	job := r.job
	ctx, end := r.stage(ctx, "resume")
	defer func() { r.stages.Resume = end(nil) }()

	patch := make(map[string]any)
	if r.c.deps.ParseResume != nil {
		data, err := r.c.deps.ParseResume(ctx, job.ResumeFile)
		if err != nil {
			r.bestEffort("resume_parse", "", err)
		} else {
			r.resume = data
			patch[models.ResultResumeData] = data
		}
	}

	raw, err := os.ReadFile(job.ResumeFile)
	if err != nil {
		r.bestEffort("resume_upload", "", fmt.Errorf("failed to read resume: %w", err))
		return patch
	}
	name := resumeFileName(job)
	url, err := r.c.deps.Store.Put(ctx, storage.Join(job.ID, name), raw, "application/pdf")
	if err != nil {
		r.bestEffort("resume_upload", "", fmt.Errorf("failed to upload resume: %w", err))
		return patch
	}
	patch[models.ResultResumeURL] = url

	r.mirror(ctx, "mirror_resume", docstore.JobPath(job.ID), map[string]any{
		"resume": map[string]any{
			"fileName": name,
			"gcsUrl":   url,
			"parsed":   r.resume,
			"savedAt":  r.c.now().UTC(),
		},
	})
	if job.UserID != "" {
		r.bestEffort("mirror_profile", "", docstore.SaveUserProfile(ctx, r.c.deps.Docs, &models.UserProfile{
			UserID:       job.UserID,
			PortfolioURL: job.PortfolioURL,
			Name:         r.resume.Name,
			Email:        r.resume.Email,
			Phone:        r.resume.Phone,
			LinkedInURL:  r.resume.LinkedInURL,
			StorageID:    job.ID,
		}))
	}
	return patch
}

func (r *run) scrapePortfolio(ctx context.Context) (*models.ScrapeResult, error) {
	ctx, end := r.stage(ctx, "scrape", attribute.String("url", r.job.PortfolioURL))
	ctx, cancel := context.WithTimeout(ctx, r.c.deps.ScrapeTimeout)
	defer cancel()

	page, err := r.c.deps.Scraper.Scrape(ctx, r.job.PortfolioURL)
	if err != nil {
		err = fmt.Errorf("failed to scrape portfolio: %w", err)
	}
	r.stages.Scrape = end(err)
	return page, err
}

func (r *run) analyzePortfolio(ctx context.Context, page *models.ScrapeResult) (*models.PortfolioAnalysis, error) {
	ctx, end := r.stage(ctx, "analyze")
	ctx, cancel := context.WithTimeout(ctx, r.c.deps.AnalyzeTimeout)
	defer cancel()

	analysis, err := r.c.deps.Analyzer.AnalyzePortfolio(ctx, page)
	if err != nil {
		err = fmt.Errorf("failed to analyze portfolio: %w", err)
	}
	r.stages.Analyze = end(err)
	return analysis, err
}

// persistPortfolio stores the top-level report and returns its URL. A
// failure is logged and leaves the URL empty; the job carries on.
func (r *run) persistPortfolio(ctx context.Context, page *models.ScrapeResult, analysis *models.PortfolioAnalysis) string {
	job := r.job
	ctx, end := r.stage(ctx, "persist")

	rep := models.PortfolioReport{
		GeneratedAt:       r.c.now().UTC(),
		Platform:          page.Platform,
		PortfolioAnalysis: analysis,
	}
	if rep.URL == "" {
		rep.URL = job.PortfolioURL
	}
	path := storage.Join(job.ID, models.PlatformDomain(job.PortfolioURL)+"_main_portfolio.json")

	var url string
	data, err := json.MarshalIndent(rep, "", "  ")
	if err == nil {
		url, err = r.c.deps.Store.Put(ctx, path, data, "application/json")
	}
	r.stages.Persist = end(err)
	if err != nil {
		r.bestEffort("persist_portfolio", job.PortfolioURL, fmt.Errorf("failed to save portfolio report: %w", err))
		return ""
	}

	fields := map[string]any{
		"gcsUrl":      url,
		"url":         rep.URL,
		"generatedAt": rep.GeneratedAt,
		"savedAt":     r.c.now().UTC(),
	}
	if body, err := docstore.ToFields(rep); err == nil {
		fields["json"] = body
	}
	r.mirror(ctx, "mirror_portfolio", docstore.Path("analysis_jobs", job.ID, "portfolio", "main"), fields)
	if job.UserID != "" {
		fields["storageId"] = job.ID
		r.mirror(ctx, "mirror_portfolio", docstore.Path(docstore.UserPath(job.UserID), "portfolio", "main"), fields)
	}
	return url
}

func (r *run) timingReport(items []models.ProjectItem) *models.TimingReport {
	finished := r.c.now()
	total := finished.Sub(r.started)
	if sum := r.stages.Sum(); total < sum {
		total = sum
	}
	analyzed := 0
	for _, it := range items {
		if it.Status == models.ItemSuccess {
			analyzed++
		}
	}
	return &models.TimingReport{
		JobID:            r.job.ID,
		PortfolioURL:     r.job.PortfolioURL,
		Stages:           r.stages,
		Projects:         items,
		ProjectsFound:    len(items),
		ProjectsAnalyzed: analyzed,
		Total:            total,
		Suppressed:       r.suppressedErrors(),
		StartedAt:        r.started.UTC(),
		FinishedAt:       finished.UTC(),
	}
}

// persistTimingReport stores the timing report and returns its URL, or ""
// when the upload failed.
func (r *run) persistTimingReport(ctx context.Context, report *models.TimingReport) string {
	job := r.job
	path := storage.Join(job.ID, userIdentifier(job, r.resume)+"_time_report.json")

	var url string
	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		url, err = r.c.deps.Store.Put(ctx, path, data, "application/json")
	}
	if err != nil {
		r.bestEffort("persist_time_report", "", fmt.Errorf("failed to save timing report: %w", err))
		return ""
	}

	fields := map[string]any{"gcsUrl": url, "savedAt": r.c.now().UTC()}
	if body, err := docstore.ToFields(report); err == nil {
		fields["json"] = body
	}
	r.mirror(ctx, "mirror_time_report", docstore.Path("analysis_jobs", job.ID, "reports", "time_report"), fields)
	return url
}

func resumeFileName(job *models.Job) string {
	name := cmp.Or(job.ResumeName, filepath.Base(job.ResumeFile))
	return strings.ReplaceAll(name, " ", "_")
}

// userIdentifier names the timing report: the user id, else the name on the
// resume, else "anonymous".
func userIdentifier(job *models.Job, resume models.ResumeData) string {
	id := cmp.Or(strings.TrimSpace(job.UserID), strings.TrimSpace(resume.Name), "anonymous")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func reportURLs(items []models.ProjectItem) []string {
	urls := make([]string, 0, len(items))
	for _, it := range items {
		if it.Status == models.ItemSuccess && it.ReportURL != "" {
			urls = append(urls, it.ReportURL)
		}
	}
	return urls
}

func screenshotURLs(items []models.ProjectItem) []string {
	urls := make([]string, 0, len(items))
	for _, it := range items {
		if it.ScreenshotURL != "" {
			urls = append(urls, it.ScreenshotURL)
		}
	}
	return urls
}
