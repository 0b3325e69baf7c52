package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/queue"
	"github.com/jupark12/portfolio-grader/screenshot"
	"github.com/jupark12/portfolio-grader/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portfolioURL = "https://example.com"

// recordingStatus keeps every update written through it.
type recordingStatus struct {
	*queue.Board
	mu      sync.Mutex
	updates []models.StatusUpdate
}

func (s *recordingStatus) SetStatus(ctx context.Context, jobID string, u models.StatusUpdate) error {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
	return s.Board.SetStatus(ctx, jobID, u)
}

func (s *recordingStatus) recorded() []models.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusUpdate(nil), s.updates...)
}

type fakeScraper struct {
	portfolioErr error
	failProjects map[string]error

	mu      sync.Mutex
	scraped []string
}

func (f *fakeScraper) Scrape(ctx context.Context, rawURL string) (*models.ScrapeResult, error) {
	if f.portfolioErr != nil {
		return nil, f.portfolioErr
	}
	return &models.ScrapeResult{URL: rawURL, Platform: "generic", Title: "Portfolio", Text: "Hi, I design things."}, nil
}

func (f *fakeScraper) ScrapeProject(ctx context.Context, parentURL, rawURL string) (*models.ScrapeResult, error) {
	f.mu.Lock()
	f.scraped = append(f.scraped, rawURL)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.failProjects[rawURL]; err != nil {
		return nil, err
	}
	return &models.ScrapeResult{
		URL:   rawURL,
		Title: "Case study " + rawURL,
		Text:  "Research, ideation and testing for " + rawURL,
		Headings: []models.Heading{
			{Level: "h1", Text: "Case study"},
		},
	}, nil
}

func (f *fakeScraper) scrapedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scraped...)
}

type fakeAnalyzer struct {
	projects       []string
	portfolioErr   error
	portfolioPanic bool
	failItems      map[string]error
	panicItems     map[string]bool

	mu          sync.Mutex
	screenshots map[string][]byte
}

func (f *fakeAnalyzer) AnalyzePortfolio(ctx context.Context, page *models.ScrapeResult) (*models.PortfolioAnalysis, error) {
	if f.portfolioPanic {
		panic("model client exploded")
	}
	if f.portfolioErr != nil {
		return nil, f.portfolioErr
	}
	refs := make([]models.ProjectRef, 0, len(f.projects))
	for i, u := range f.projects {
		refs = append(refs, models.ProjectRef{Name: "Project " + string(rune('A'+i)), URL: u})
	}
	return &models.PortfolioAnalysis{
		URL:               page.URL,
		StructuredContent: &models.StructuredContent{Hero: "Designer", Projects: refs},
		Analysis:          &models.PortfolioFeedback{OverallFeedback: "Solid"},
	}, nil
}

func (f *fakeAnalyzer) AnalyzeCaseStudy(ctx context.Context, page *models.ScrapeResult, shot []byte) (*models.CaseStudyAnalysis, error) {
	if f.panicItems[page.URL] {
		panic("nil score table")
	}
	if err := f.failItems[page.URL]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.screenshots == nil {
		f.screenshots = make(map[string][]byte)
	}
	f.screenshots[page.URL] = shot
	f.mu.Unlock()
	return validCaseStudy(72), nil
}

func validCaseStudy(overall float64) *models.CaseStudyAnalysis {
	a := &models.CaseStudyAnalysis{OverallScore: overall, Summary: "Clear process", Verdict: "Strong"}
	for _, p := range models.CaseStudyPhases {
		a.PhaseScores = append(a.PhaseScores, models.PhaseScore{Phase: p.Name, Score: p.MaxScore / 2, MaxScore: p.MaxScore})
	}
	return a
}

// failingStore fails every Put whose path ends with suffix.
type failingStore struct {
	storage.Client
	suffix string
}

func (s failingStore) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	if strings.HasSuffix(p, s.suffix) {
		return "", errors.New("bucket unavailable")
	}
	return s.Client.Put(ctx, p, data, contentType)
}

type harness struct {
	status   *recordingStatus
	scraper  *fakeScraper
	analyzer *fakeAnalyzer
	store    *storage.MemoryStorage
	docs     *docstore.MemoryStore
	metrics  *Metrics
	deps     Deps
}

func newHarness(t *testing.T, projects ...string) *harness {
	t.Helper()
	docs := docstore.NewMemoryStore()
	board, err := queue.NewBoard(t.TempDir(), docs)
	require.NoError(t, err)

	h := &harness{
		status:   &recordingStatus{Board: board},
		scraper:  &fakeScraper{},
		analyzer: &fakeAnalyzer{projects: projects},
		store:    storage.NewMemoryStorage(),
		docs:     docs,
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	h.deps = Deps{
		Status:   h.status,
		Scraper:  h.scraper,
		Analyzer: h.analyzer,
		Store:    h.store,
		Docs:     h.docs,
		Metrics:  h.metrics,
	}
	return h
}

func (h *harness) run(t *testing.T, ctx context.Context, job *models.Job) (*models.Job, *models.TimingReport, error) {
	t.Helper()
	if job == nil {
		job = &models.Job{}
	}
	if job.PortfolioURL == "" {
		job.PortfolioURL = portfolioURL
	}
	queued, err := h.status.Enqueue(context.Background(), job)
	require.NoError(t, err)

	c, err := NewCoordinator(h.deps)
	require.NoError(t, err)
	report, runErr := c.Run(ctx, queued)

	final, err := h.status.GetStatus(context.Background(), queued.ID)
	require.NoError(t, err)
	return final, report, runErr
}

func TestRunCompletesDespiteItemFailure(t *testing.T) {
	h := newHarness(t, "https://example.com/a", "https://example.com/b", "https://example.com/c")
	h.analyzer.failItems = map[string]error{"https://example.com/b": errors.New("model timeout")}

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 3, job.Result[models.ResultProjectsFound])
	assert.Equal(t, 2, job.Result[models.ResultProjectsAnalyzed])
	assert.Len(t, job.Result[models.ResultProjectReports], 2)

	require.Len(t, report.Projects, 3)
	assert.Equal(t, models.ItemSuccess, report.Projects[0].Status)
	assert.Equal(t, models.ItemFailed, report.Projects[1].Status)
	assert.Equal(t, "analyze", report.Projects[1].FailedStage)
	assert.Contains(t, report.Projects[1].Error, "model timeout")
	assert.Equal(t, models.ItemSuccess, report.Projects[2].Status)
	assert.LessOrEqual(t, report.ProjectsAnalyzed, report.ProjectsFound)

	// The failed item still leaves a record marked failed.
	data, err := h.store.Get(context.Background(), storage.Join(job.ID, "projects", models.ProjectSlug("https://example.com/b")+".json"))
	require.NoError(t, err)
	var rec models.CaseStudyReport
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, models.ItemFailed, rec.Status)
	assert.Nil(t, rec.Analysis)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.itemsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.itemsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.jobsTotal.WithLabelValues("completed")))
}

func TestRunFailsOnPortfolioScrapeError(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	h.scraper.portfolioErr = errors.New("HTTP 503 for https://example.com")

	job, report, err := h.run(t, context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, report)

	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "HTTP 503")
	assert.Empty(t, h.scraper.scrapedURLs())

	updates := h.status.recorded()
	last := updates[len(updates)-1]
	prev := updates[len(updates)-2]
	assert.Equal(t, models.StatusFailed, last.Status)
	assert.Equal(t, prev.Progress, last.Progress, "progress is left at its last value")
	for _, u := range updates {
		assert.NotEqual(t, models.StatusCompleted, u.Status)
	}

	objects, err := h.store.List(context.Background(), job.ID+"/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRunFailsOnPortfolioAnalyzeError(t *testing.T) {
	h := newHarness(t)
	h.analyzer.portfolioErr = errors.New("analysis: invalid model response")

	job, _, err := h.run(t, context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "failed to analyze portfolio")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.jobsTotal.WithLabelValues("failed")))
}

func TestRunProgressIsMonotonic(t *testing.T) {
	urls := []string{
		"https://example.com/1", "https://example.com/2", "https://example.com/3",
		"https://example.com/4", "https://example.com/5",
	}
	h := newHarness(t, urls...)
	h.analyzer.failItems = map[string]error{urls[3]: errors.New("bad json")}

	job, _, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, job.Status)

	updates := h.status.recorded()
	var itemProgress []int
	for i, u := range updates {
		if i > 0 {
			assert.GreaterOrEqual(t, u.Progress, updates[i-1].Progress, "update %d (%s)", i, u.Message)
		}
		if strings.HasPrefix(u.Message, "Processed") {
			itemProgress = append(itemProgress, u.Progress)
		}
	}
	assert.Equal(t, []int{54, 63, 72, 81, 90}, itemProgress)
	assert.Equal(t, 100, updates[len(updates)-1].Progress)
}

func TestRunPublishesPartialCounts(t *testing.T) {
	h := newHarness(t, "https://example.com/a", "https://example.com/b")
	h.analyzer.failItems = map[string]error{"https://example.com/a": errors.New("boom")}

	_, _, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	var analyzed []any
	for _, u := range h.status.recorded() {
		if strings.HasPrefix(u.Message, "Processed") {
			assert.Equal(t, 2, u.Result[models.ResultProjectsFound])
			analyzed = append(analyzed, u.Result[models.ResultProjectsAnalyzed])
		}
	}
	assert.Equal(t, []any{0, 1}, analyzed)
}

func TestRunDeduplicatesDiscoveredProjects(t *testing.T) {
	h := newHarness(t, "a", "a", "b")

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	want := []string{"https://example.com/a", "https://example.com/b"}
	assert.Equal(t, want, h.scraper.scrapedURLs())
	assert.Equal(t, 2, job.Result[models.ResultProjectsFound])
	assert.Equal(t, 2, report.ProjectsFound)
}

func TestRunKeepsProjectsDifferingByQuery(t *testing.T) {
	one, two := "https://x.io/work?id=1", "https://x.io/work?id=2"
	h := newHarness(t, one, two)

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ProjectsAnalyzed)
	assert.Len(t, job.Result[models.ResultProjectReports], 2)

	ctx := context.Background()
	objects, err := h.store.List(ctx, storage.Join(job.ID, "projects")+"/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	for _, u := range []string{one, two} {
		data, err := h.store.Get(ctx, storage.Join(job.ID, "projects", models.ProjectSlug(u)+".json"))
		require.NoError(t, err)
		var rec models.CaseStudyReport
		require.NoError(t, json.Unmarshal(data, &rec))
		assert.Equal(t, u, rec.URL)

		_, err = h.docs.Get(ctx, docstore.Path("analysis_jobs", job.ID, "projects", models.ProjectSlug(u)))
		assert.NoError(t, err)
	}
}

func TestDiscover(t *testing.T) {
	analysis := func(urls ...string) *models.PortfolioAnalysis {
		sc := &models.StructuredContent{}
		for _, u := range urls {
			sc.Projects = append(sc.Projects, models.ProjectRef{URL: u})
		}
		return &models.PortfolioAnalysis{StructuredContent: sc}
	}

	assert.Equal(t, []string{"a", "b"}, Discover("", analysis("a", "a", "b")))
	assert.Equal(t, []string{"https://x.io/b", "https://x.io/a"}, Discover("https://x.io/", analysis("b", " ", "/a", "https://x.io/b")))
	assert.Empty(t, Discover("https://x.io", analysis()))
	assert.Empty(t, Discover("https://x.io", &models.PortfolioAnalysis{}))
	assert.Empty(t, Discover("https://x.io", nil))
}

func TestRunWithNoProjectsCompletes(t *testing.T) {
	h := newHarness(t)

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 0, job.Result[models.ResultProjectsFound])
	assert.Equal(t, 0, job.Result[models.ResultProjectsAnalyzed])
	assert.Empty(t, report.Projects)
	assert.NotEmpty(t, job.Result[models.ResultTimeReportURL])
}

func TestRunSwallowsPortfolioPersistFailure(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	h.deps.Store = failingStore{Client: h.store, suffix: "_main_portfolio.json"}

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.NotContains(t, job.Result, models.ResultMainReportURL)
	assert.Equal(t, 1, job.Result[models.ResultProjectsAnalyzed])

	require.Len(t, report.Suppressed, 1)
	assert.Equal(t, "persist_portfolio", report.Suppressed[0].Stage)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.suppressedTotal.WithLabelValues("persist_portfolio")))
}

func TestRunStoresPortfolioReport(t *testing.T) {
	h := newHarness(t)

	job, _, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	path := storage.Join(job.ID, "example_com_main_portfolio.json")
	assert.Equal(t, h.store.URL(path), job.Result[models.ResultMainReportURL])

	data, err := h.store.Get(context.Background(), path)
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Equal(t, portfolioURL, rep["url"])
	assert.Contains(t, rep, "structured_content")
	assert.Contains(t, rep, "analysis")

	doc, err := h.docs.Get(context.Background(), docstore.Path("analysis_jobs", job.ID, "portfolio", "main"))
	require.NoError(t, err)
	assert.Equal(t, h.store.URL(path), doc["gcsUrl"])
}

func TestRunRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.analyzer.portfolioPanic = true

	job, _, err := h.run(t, context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "model client exploded")
}

func TestRunIsolatesItemPanic(t *testing.T) {
	h := newHarness(t, "https://example.com/a", "https://example.com/b")
	h.analyzer.panicItems = map[string]bool{"https://example.com/a": true}

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Result[models.ResultProjectsAnalyzed])
	assert.Equal(t, models.ItemFailed, report.Projects[0].Status)
	assert.Contains(t, report.Projects[0].Error, "nil score table")
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, _, err := h.run(t, ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.Message, "context canceled")
}

func TestRunItemPoolKeepsOrder(t *testing.T) {
	var urls []string
	for _, p := range []string{"1", "2", "3", "4", "5", "6"} {
		urls = append(urls, "https://example.com/"+p)
	}
	h := newHarness(t, urls...)
	h.deps.ItemConcurrency = 3
	h.analyzer.failItems = map[string]error{urls[2]: errors.New("boom")}

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, job.Result[models.ResultProjectsAnalyzed])

	require.Len(t, report.Projects, len(urls))
	for i, it := range report.Projects {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, urls[i], it.URL)
	}
	assert.Equal(t, models.ItemFailed, report.Projects[2].Status)

	updates := h.status.recorded()
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Progress, updates[i-1].Progress)
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type stubCapturer struct {
	data []byte
	err  error
}

func (c stubCapturer) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	return c.data, c.err
}

func TestRunAttachesScreenshots(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	h.deps.Screenshots = screenshot.NewService(stubCapturer{data: testPNG(t)}, h.store, screenshot.Options{})

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	item := report.Projects[0]
	require.NotEmpty(t, item.ScreenshotURL)
	assert.Equal(t, []string{item.ScreenshotURL}, job.Result[models.ResultUploadedScreenshots])
	assert.NotEmpty(t, h.analyzer.screenshots["https://example.com/a"], "screenshot bytes reach the analyzer")

	path := screenshot.Path(job.ID, "https://example.com/a", job.CreatedAt)
	assert.Equal(t, 1, h.store.Puts(path))
}

func TestRunScreenshotFailureIsBestEffort(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	h.deps.Screenshots = screenshot.NewService(stubCapturer{err: errors.New("chrome crashed")}, h.store, screenshot.Options{})

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, job.Result[models.ResultProjectsAnalyzed])
	assert.Equal(t, models.ItemSuccess, report.Projects[0].Status)
	assert.Empty(t, report.Projects[0].ScreenshotURL)
	require.Len(t, report.Suppressed, 1)
	assert.Equal(t, "screenshot", report.Suppressed[0].Stage)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.suppressedTotal.WithLabelValues("screenshot")))
}

func TestRunWithoutDocumentStore(t *testing.T) {
	h := newHarness(t, "https://example.com/a")
	board, err := queue.NewBoard(t.TempDir(), docstore.Noop{})
	require.NoError(t, err)
	h.status = &recordingStatus{Board: board}
	h.deps.Status = h.status
	h.deps.Docs = nil

	job, report, err := h.run(t, context.Background(), &models.Job{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Result[models.ResultProjectsAnalyzed])
	assert.Empty(t, report.Suppressed, "an absent document store is not a suppressed failure")
}

func TestRunMirrorsReportsToDocumentStore(t *testing.T) {
	h := newHarness(t, "https://example.com/a")

	job, _, err := h.run(t, context.Background(), &models.Job{UserID: "u1"})
	require.NoError(t, err)
	ctx := context.Background()
	slug := models.ProjectSlug("https://example.com/a")

	project, err := h.docs.Get(ctx, docstore.Path("analysis_jobs", job.ID, "projects", slug))
	require.NoError(t, err)
	assert.Equal(t, "success", project["status"])
	assert.Equal(t, 72.0, project["analysis"].(map[string]any)["overall_score"])

	_, err = h.docs.Get(ctx, docstore.Path("users", "u1", "case_studies", slug))
	require.NoError(t, err)

	timing, err := h.docs.Get(ctx, docstore.Path("analysis_jobs", job.ID, "reports", "time_report"))
	require.NoError(t, err)
	assert.Equal(t, job.Result[models.ResultTimeReportURL], timing["gcsUrl"])
}

func TestRunProcessesResume(t *testing.T) {
	h := newHarness(t)
	h.deps.ParseResume = func(ctx context.Context, path string) (models.ResumeData, error) {
		return models.ResumeData{Name: "Ana López", Email: "ana@example.com"}, nil
	}
	resumePath := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(resumePath, []byte("%PDF-1.4 fake"), 0644))

	job, _, err := h.run(t, context.Background(), &models.Job{
		UserID:     "u1",
		ResumeFile: resumePath,
		ResumeName: "Ana Resume.pdf",
	})
	require.NoError(t, err)
	ctx := context.Background()

	blob := storage.Join(job.ID, "Ana_Resume.pdf")
	assert.Equal(t, h.store.URL(blob), job.Result[models.ResultResumeURL])
	assert.Equal(t, models.ResumeData{Name: "Ana López", Email: "ana@example.com"}, job.Result[models.ResultResumeData])

	profile, err := docstore.GetUserProfile(ctx, h.docs, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana López", profile.Name)
	assert.Equal(t, job.ID, profile.StorageID)

	ok, err := h.store.Exists(ctx, storage.Join(job.ID, "u1_time_report.json"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunResumeFailureIsBestEffort(t *testing.T) {
	h := newHarness(t)
	h.deps.ParseResume = func(ctx context.Context, path string) (models.ResumeData, error) {
		return models.ResumeData{}, errors.New("not a pdf")
	}

	job, report, err := h.run(t, context.Background(), &models.Job{ResumeFile: filepath.Join(t.TempDir(), "missing.pdf")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.NotContains(t, job.Result, models.ResultResumeURL)

	var stages []string
	for _, s := range report.Suppressed {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{"resume_parse", "resume_upload"}, stages)
}

func TestTimingReportTotalCoversStages(t *testing.T) {
	h := newHarness(t, "https://example.com/a", "https://example.com/b")
	// Each call to Now advances the clock by a second.
	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.deps.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	job, report, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.Total, report.Stages.Sum())
	for _, it := range report.Projects {
		assert.GreaterOrEqual(t, it.Total, it.Timings.Sum())
		assert.Positive(t, it.Timings.Scrape)
		assert.Positive(t, it.Timings.Analyze)
		assert.Positive(t, it.Timings.Persist)
	}

	data, err := h.store.Get(context.Background(), storage.Join(job.ID, "anonymous_time_report.json"))
	require.NoError(t, err)
	var stored models.TimingReport
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, report.Total, stored.Total)
	assert.Len(t, stored.Projects, 2)
}

func TestNewCoordinatorRequiresDeps(t *testing.T) {
	_, err := NewCoordinator(Deps{})
	assert.Error(t, err)
}
