// Package reports reads the reports a job persisted and normalizes them into
// the records served to clients.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/storage"
)

const (
	TypePortfolio = "portfolio"
	TypeCaseStudy = "case_study"
)

// ErrInvalidName is returned for screenshot names that are not plain file
// names.
var ErrInvalidName = errors.New("reports: invalid file name")

// Report is a normalized portfolio or case-study report.
type Report struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	URL    string `json:"url"`
	Source string `json:"source"`

	Hero            string                   `json:"hero,omitempty"`
	About           string                   `json:"about,omitempty"`
	Skills          []string                 `json:"skills,omitempty"`
	Projects        []models.ProjectRef      `json:"projects,omitempty"`
	Contact         *models.Contact          `json:"contact,omitempty"`
	Links           []models.Link            `json:"links,omitempty"`
	OverallFeedback string                   `json:"overall_feedback,omitempty"`
	Sections        []models.SectionFeedback `json:"sections,omitempty"`

	Title        string               `json:"title,omitempty"`
	Status       models.ItemStatus    `json:"status,omitempty"`
	Error        string               `json:"error,omitempty"`
	OverallScore *float64             `json:"overallScore,omitempty"`
	PhaseScores  []models.PhaseScore  `json:"phaseScores,omitempty"`
	Summary      string               `json:"summary,omitempty"`
	Improvements []models.Improvement `json:"improvements,omitempty"`
	Verdict      string               `json:"verdict,omitempty"`
	UXKeywords   []string             `json:"ux_keywords,omitempty"`
	Screenshot   string               `json:"screenshot,omitempty"`

	Screenshots []string `json:"screenshots"`
}

// Normalize turns a stored report document into a Report. ok is false for
// documents that are neither portfolio nor case-study reports, such as
// timing reports.
func Normalize(id string, data []byte) (rep *Report, ok bool, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("failed to parse report: %w", err)
	}

	switch {
	case present(probe["structured_content"]):
		var doc models.PortfolioReport
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false, fmt.Errorf("failed to decode portfolio report: %w", err)
		}
		rep = &Report{ID: id, Type: TypePortfolio}
		if doc.PortfolioAnalysis == nil {
			return rep, true, nil
		}
		rep.URL = doc.URL
		if sc := doc.StructuredContent; sc != nil {
			rep.Hero = sc.Hero
			rep.About = sc.About
			rep.Skills = sc.Skills
			rep.Projects = sc.Projects
			rep.Contact = &sc.Contact
			rep.Links = sc.AllLinks
		}
		if a := doc.Analysis; a != nil {
			rep.OverallFeedback = a.OverallFeedback
			rep.Sections = a.SectionWise
		}
		return rep, true, nil

	case present(probe["scraped_data"]) || present(probe["analysis"]):
		var doc models.CaseStudyReport
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false, fmt.Errorf("failed to decode case study report: %w", err)
		}
		rep = &Report{
			ID:         id,
			Type:       TypeCaseStudy,
			URL:        doc.URL,
			Status:     doc.Status,
			Error:      doc.Error,
			Screenshot: doc.Screenshot,
		}
		if doc.ScrapedData != nil {
			rep.Title = doc.ScrapedData.Title
		}
		if a := doc.Analysis; a != nil {
			score := a.OverallScore
			rep.OverallScore = &score
			rep.PhaseScores = a.PhaseScores
			rep.Summary = a.Summary
			rep.Improvements = a.Improvements
			rep.Verdict = a.Verdict
			rep.UXKeywords = a.UXKeywords
		}
		return rep, true, nil
	}
	return nil, false, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// Reader loads reports from a storage client.
type Reader struct {
	store storage.Client
}

// NewReader creates a Reader over store.
func NewReader(store storage.Client) *Reader {
	return &Reader{store: store}
}

// Job returns the normalized reports of one job: the portfolio report
// first, then case studies ordered by path. Unreadable documents are
// skipped.
func (r *Reader) Job(ctx context.Context, jobID string) ([]Report, error) {
	objects, err := r.store.List(ctx, jobID+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list reports of %s: %w", jobID, err)
	}
	return r.normalize(ctx, jobID, objects), nil
}

// All returns the normalized reports of every job in the store.
func (r *Reader) All(ctx context.Context) ([]Report, error) {
	objects, err := r.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	byJob := make(map[string][]storage.Object)
	var jobs []string
	for _, obj := range objects {
		id, _, ok := strings.Cut(obj.Path, "/")
		if !ok {
			continue
		}
		if _, seen := byJob[id]; !seen {
			jobs = append(jobs, id)
		}
		byJob[id] = append(byJob[id], obj)
	}

	var out []Report
	for _, id := range jobs {
		out = append(out, r.normalize(ctx, id, byJob[id])...)
	}
	return out, nil
}

func (r *Reader) normalize(ctx context.Context, jobID string, objects []storage.Object) []Report {
	screenshots := make([]string, 0)
	for _, obj := range objects {
		if isScreenshot(obj.Path) {
			screenshots = append(screenshots, obj.URL)
		}
	}

	var out []Report
	for _, obj := range objects {
		if path.Ext(obj.Path) != ".json" {
			continue
		}
		data, err := r.store.Get(ctx, obj.Path)
		if err != nil {
			slog.Warn("failed to read report", "path", obj.Path, "err", err)
			continue
		}
		rep, ok, err := Normalize(jobID, data)
		if err != nil {
			slog.Warn("failed to normalize report", "path", obj.Path, "err", err)
			continue
		}
		if !ok {
			continue
		}
		rep.Source = obj.URL
		rep.Screenshots = screenshots
		out = append(out, *rep)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Type == TypePortfolio && out[j].Type != TypePortfolio
	})
	return out
}

func isScreenshot(p string) bool {
	if !strings.Contains(p, "/screenshots/") {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// screenshotExts are tried in order when the requested file is missing.
var screenshotExts = []string{".webp", ".png", ".jpg", ".jpeg"}

// Screenshot reads a job's screenshot by file name. When no object has
// that exact name, the same name with another image extension is tried.
func (r *Reader) Screenshot(ctx context.Context, jobID, file string) (data []byte, name string, err error) {
	if file == "" || file != path.Base(file) || strings.HasPrefix(file, ".") {
		return nil, "", ErrInvalidName
	}
	dir := storage.Join(jobID, "screenshots")

	candidates := []string{file}
	stem := strings.TrimSuffix(file, path.Ext(file))
	for _, ext := range screenshotExts {
		if c := stem + ext; c != file {
			candidates = append(candidates, c)
		}
	}

	for _, c := range candidates {
		data, err := r.store.Get(ctx, storage.Join(dir, c))
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return data, c, nil
	}
	return nil, "", storage.ErrNotExist
}
