package reports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, store storage.Client, p string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), p, data, storage.ContentType(p))
	require.NoError(t, err)
}

func caseStudy(url string, score float64) models.CaseStudyReport {
	a := &models.CaseStudyAnalysis{OverallScore: score, Summary: "Good", Verdict: "Hire", UXKeywords: []string{"research"}}
	for _, p := range models.CaseStudyPhases {
		a.PhaseScores = append(a.PhaseScores, models.PhaseScore{Phase: p.Name, Score: p.MaxScore, MaxScore: p.MaxScore})
	}
	return models.CaseStudyReport{
		GeneratedAt: time.Now().UTC(),
		URL:         url,
		Status:      models.ItemSuccess,
		ScrapedData: &models.ScrapeResult{URL: url, Title: "Checkout redesign"},
		Analysis:    a,
	}
}

func seed(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	put(t, store, "job1/www_jane_design_main_portfolio.json", models.PortfolioReport{
		Platform: "generic",
		PortfolioAnalysis: &models.PortfolioAnalysis{
			URL: "https://www.jane.design",
			StructuredContent: &models.StructuredContent{
				Hero:     "Jane, product designer",
				Skills:   []string{"Figma"},
				Projects: []models.ProjectRef{{Name: "Checkout", URL: "https://www.jane.design/checkout"}},
				Contact:  models.Contact{Email: "jane@jane.design"},
			},
			Analysis: &models.PortfolioFeedback{
				OverallFeedback: "Tighten the hero",
				SectionWise:     []models.SectionFeedback{{Section: "Hero", Suggestion: "Shorter"}},
			},
		},
	})
	put(t, store, "job1/projects/www_jane_design_checkout.json", caseStudy("https://www.jane.design/checkout", 81.5))
	put(t, store, "job1/anonymous_time_report.json", models.TimingReport{JobID: "job1"})
	_, err := store.Put(context.Background(), "job1/screenshots/www_jane_design_checkout_20240501_120000.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	return store
}

func TestJobNormalizesReports(t *testing.T) {
	store := seed(t)
	reports, err := NewReader(store).Job(context.Background(), "job1")
	require.NoError(t, err)
	require.Len(t, reports, 2, "the timing report is not a report")

	p := reports[0]
	assert.Equal(t, TypePortfolio, p.Type)
	assert.Equal(t, "job1", p.ID)
	assert.Equal(t, "https://www.jane.design", p.URL)
	assert.Equal(t, "Jane, product designer", p.Hero)
	assert.Equal(t, "Tighten the hero", p.OverallFeedback)
	assert.Len(t, p.Sections, 1)
	assert.Equal(t, "jane@jane.design", p.Contact.Email)
	assert.Equal(t, store.URL("job1/www_jane_design_main_portfolio.json"), p.Source)

	c := reports[1]
	assert.Equal(t, TypeCaseStudy, c.Type)
	assert.Equal(t, "Checkout redesign", c.Title)
	assert.Len(t, c.PhaseScores, len(models.CaseStudyPhases))
	assert.Equal(t, []string{store.URL("job1/screenshots/www_jane_design_checkout_20240501_120000.jpg")}, c.Screenshots)
}

func TestCaseStudyRoundTripKeepsOverallScore(t *testing.T) {
	stored := caseStudy("https://x.io/a", 64)
	data, err := json.Marshal(stored)
	require.NoError(t, err)

	rep, ok, err := Normalize("job", data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TypeCaseStudy, rep.Type)
	require.NotNil(t, rep.OverallScore)
	assert.Equal(t, stored.Analysis.OverallScore, *rep.OverallScore)

	out, err := json.Marshal(rep)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, 64.0, wire["overallScore"])
	assert.Equal(t, "case_study", wire["type"])
}

func TestNormalizeFailedCaseStudy(t *testing.T) {
	data, err := json.Marshal(models.CaseStudyReport{
		URL:         "https://x.io/a",
		Status:      models.ItemFailed,
		Error:       "failed to analyze case study: timeout",
		ScrapedData: &models.ScrapeResult{Title: "A"},
	})
	require.NoError(t, err)

	rep, ok, err := Normalize("job", data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ItemFailed, rep.Status)
	assert.Nil(t, rep.OverallScore)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, _, err := Normalize("job", []byte("{nope"))
	assert.Error(t, err)

	_, ok, err := Normalize("job", []byte(`{"job_id":"x"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllGroupsByJob(t *testing.T) {
	store := seed(t)
	put(t, store, "job2/projects/x_io_b.json", caseStudy("https://x.io/b", 50))

	reports, err := NewReader(store).All(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "job1", reports[0].ID)
	assert.Equal(t, "job2", reports[2].ID)
	assert.Empty(t, reports[2].Screenshots)
}

func TestScreenshotAlternateExtension(t *testing.T) {
	store := seed(t)
	r := NewReader(store)
	ctx := context.Background()

	data, name, err := r.Screenshot(ctx, "job1", "www_jane_design_checkout_20240501_120000.webp")
	require.NoError(t, err)
	assert.Equal(t, "www_jane_design_checkout_20240501_120000.jpg", name)
	assert.Equal(t, []byte("jpeg"), data)

	_, _, err = r.Screenshot(ctx, "job1", "missing.png")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	_, _, err = r.Screenshot(ctx, "job1", "../job2/secret.jpg")
	assert.ErrorIs(t, err, ErrInvalidName)
}
