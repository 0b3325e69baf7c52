package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"runtime/debug"
	"sync"

	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/screenshot"
	"github.com/jupark12/portfolio-grader/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runItems runs the case-study pipeline for every URL and returns the
// outcomes in the order of urls. With ItemConcurrency > 1 items run on a
// bounded pool; progress is still reported from a single counter.
func (r *run) runItems(ctx context.Context, urls []string) []models.ProjectItem {
	items := make([]models.ProjectItem, len(urls))
	if len(urls) == 0 {
		return items
	}

	workers := r.c.deps.ItemConcurrency
	if workers <= 1 {
		for i, u := range urls {
			items[i] = r.item(ctx, i, u)
			r.itemDone(ctx, items[i])
		}
		return items
	}

	if workers > len(urls) {
		workers = len(urls)
	}
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				items[i] = r.item(ctx, i, urls[i])
				r.itemDone(ctx, items[i])
			}
		}()
	}
	for i := range urls {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return items
}

// itemDone advances progress and the partial counts after one item.
func (r *run) itemDone(ctx context.Context, item models.ProjectItem) {
	r.mu.Lock()
	r.done++
	if item.Status == models.ItemSuccess {
		r.analyzed++
	}
	progress := progressItemsBase + r.done*progressItemsRange/r.found
	err := r.reportLocked(ctx, progress,
		fmt.Sprintf("Processed %d of %d case studies", r.done, r.found),
		map[string]any{
			models.ResultProjectsFound:    r.found,
			models.ResultProjectsAnalyzed: r.analyzed,
		})
	r.mu.Unlock()

	r.bestEffort("status", item.URL, err)
}

// item runs scrape, screenshot, analyze and persist for one case study. It
// never returns an error: any failure, panics included, is recorded on the
// returned item.
func (r *run) item(ctx context.Context, index int, pageURL string) (item models.ProjectItem) {
	item = models.ProjectItem{
		Index:  index,
		URL:    pageURL,
		Slug:   models.ProjectSlug(pageURL),
		Status: models.ItemSuccess,
	}
	log := r.log.With("url", pageURL, "item", index+1)

	ctx, span := tracer.Start(ctx, "item", trace.WithAttributes(
		attribute.String("url", pageURL),
		attribute.Int("index", index),
	))
	start := r.c.now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("case study pipeline panicked", "panic", p, "stack", string(debug.Stack()))
			item.Status = models.ItemFailed
			item.Error = fmt.Sprintf("unexpected error: %v", p)
			if item.FailedStage == "" {
				item.FailedStage = "unknown"
			}
		}
		item.Total = r.c.now().Sub(start)
		if item.Status == models.ItemFailed {
			span.SetStatus(codes.Error, item.Error)
		}
		span.End()
		r.c.deps.Metrics.itemDone(string(item.Status))
		log.Info("case study finished", "status", item.Status, "total", item.Total)
	}()

	if err := ctx.Err(); err != nil {
		r.failItem(ctx, &item, "scrape", err, nil)
		return item
	}

	page, err := r.scrapeItem(ctx, &item)
	if err != nil {
		r.failItem(ctx, &item, "scrape", err, nil)
		return item
	}

	var shotData []byte
	if shot := r.capture(ctx, &item); shot != nil {
		shotData = shot.Data
		item.ScreenshotURL = shot.URL
	}

	result, err := r.analyzeItem(ctx, &item, page, shotData)
	if err != nil {
		r.failItem(ctx, &item, "analyze", err, page)
		return item
	}

	if err := r.persistItem(ctx, &item, page, result); err != nil {
		item.Status = models.ItemFailed
		item.FailedStage = "persist"
		item.Error = err.Error()
		log.Warn("case study failed", "stage", "persist", "err", err)
	}
	return item
}

// failItem marks item failed and stores a record of the failure.
func (r *run) failItem(ctx context.Context, item *models.ProjectItem, stage string, err error, page *models.ScrapeResult) {
	item.Status = models.ItemFailed
	item.FailedStage = stage
	item.Error = err.Error()
	r.log.Warn("case study failed", "url", item.URL, "stage", stage, "err", err)

	r.bestEffort("persist_failed_item", item.URL, r.persistItem(context.WithoutCancel(ctx), item, page, nil))
}

func (r *run) scrapeItem(ctx context.Context, item *models.ProjectItem) (*models.ScrapeResult, error) {
	ctx, end := r.stage(ctx, "item_scrape")
	ctx, cancel := context.WithTimeout(ctx, r.c.deps.ScrapeTimeout)
	defer cancel()

	page, err := r.c.deps.Scraper.ScrapeProject(ctx, r.job.PortfolioURL, item.URL)
	if err != nil {
		err = fmt.Errorf("failed to scrape case study: %w", err)
	}
	item.Timings.Scrape = end(err)
	return page, err
}

// capture takes the item's screenshot. Failures are suppressed and yield nil.
func (r *run) capture(ctx context.Context, item *models.ProjectItem) *screenshot.Shot {
	if r.c.deps.Screenshots == nil {
		return nil
	}
	ctx, end := r.stage(ctx, "item_screenshot")
	ctx, cancel := context.WithTimeout(ctx, r.c.deps.ScrapeTimeout)
	defer cancel()

	shot, err := r.c.deps.Screenshots.Take(ctx, r.job.ID, item.URL, r.job.CreatedAt)
	item.Timings.Screenshot = end(err)
	if err != nil {
		r.bestEffort("screenshot", item.URL, err)
		return nil
	}

	r.mirror(ctx, "mirror_screenshot", docstore.Path("analysis_jobs", r.job.ID, "screenshots", item.Slug), map[string]any{
		"projectUrl":    item.URL,
		"screenshotUrl": shot.URL,
		"fileName":      path.Base(shot.Path),
		"reused":        shot.Reused,
		"savedAt":       r.c.now().UTC(),
	})
	return shot
}

func (r *run) analyzeItem(ctx context.Context, item *models.ProjectItem, page *models.ScrapeResult, shot []byte) (*models.CaseStudyAnalysis, error) {
	ctx, end := r.stage(ctx, "item_analyze")
	ctx, cancel := context.WithTimeout(ctx, r.c.deps.AnalyzeTimeout)
	defer cancel()

	result, err := r.c.deps.Analyzer.AnalyzeCaseStudy(ctx, page, shot)
	if err != nil {
		err = fmt.Errorf("failed to analyze case study: %w", err)
	}
	item.Timings.Analyze = end(err)
	return result, err
}

// persistItem stores the case-study report and mirrors a summary of it.
func (r *run) persistItem(ctx context.Context, item *models.ProjectItem, page *models.ScrapeResult, analysis *models.CaseStudyAnalysis) error {
	job := r.job
	ctx, end := r.stage(ctx, "item_persist")

	rep := &models.CaseStudyReport{
		GeneratedAt:     r.c.now().UTC(),
		URL:             item.URL,
		ParentPortfolio: job.PortfolioURL,
		Status:          item.Status,
		Error:           item.Error,
		Screenshot:      item.ScreenshotURL,
		ScrapedData:     page,
		Analysis:        analysis,
		Timings:         item.Timings,
	}

	var url string
	data, err := json.MarshalIndent(rep, "", "  ")
	if err == nil {
		url, err = r.c.deps.Store.Put(ctx, storage.Join(job.ID, "projects", item.Slug+".json"), data, "application/json")
	}
	item.Timings.Persist = end(err)
	if err != nil {
		return fmt.Errorf("failed to save case study report: %w", err)
	}
	item.ReportURL = url

	summary := projectSummary(rep, url)
	r.mirror(ctx, "mirror_project", docstore.Path("analysis_jobs", job.ID, "projects", item.Slug), summary)
	if job.UserID != "" {
		summary["storageId"] = job.ID
		r.mirror(ctx, "mirror_project", docstore.Path(docstore.UserPath(job.UserID), "case_studies", item.Slug), summary)
	}
	return nil
}

// projectSummary is the document-store view of a case-study report: the
// scores plus a bounded excerpt of the scraped page.
func projectSummary(rep *models.CaseStudyReport, reportURL string) map[string]any {
	fields := map[string]any{
		"url":     rep.URL,
		"gcsUrl":  reportURL,
		"status":  string(rep.Status),
		"savedAt": rep.GeneratedAt,
	}
	if rep.Screenshot != "" {
		fields["screenshotUrl"] = rep.Screenshot
	}
	if rep.Error != "" {
		fields["error"] = rep.Error
	}
	if p := rep.ScrapedData; p != nil {
		headings := p.Headings
		if len(headings) > 20 {
			headings = headings[:20]
		}
		fields["title"] = p.Title
		fields["scraped"] = map[string]any{
			"title":            p.Title,
			"meta_description": p.MetaDescription,
			"full_text_length": p.FullTextLength,
			"total_images":     p.TotalImages,
			"headings":         headings,
			"excerpt":          excerpt(p.Text, 1000),
		}
	}
	if a := rep.Analysis; a != nil {
		fields["analysis"] = map[string]any{
			"overall_score": a.OverallScore,
			"phase_scores":  a.PhaseScores,
			"ux_keywords":   a.UXKeywords,
			"improvements":  a.Improvements,
			"verdict":       a.Verdict,
			"summary":       a.Summary,
		}
	}
	return fields
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
