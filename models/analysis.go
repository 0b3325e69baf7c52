package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PortfolioAnalysis is the structured response expected for a top-level
// portfolio page.
type PortfolioAnalysis struct {
	URL               string             `json:"url"`
	StructuredContent *StructuredContent `json:"structured_content"`
	Analysis          *PortfolioFeedback `json:"analysis"`
}

type StructuredContent struct {
	Hero     string       `json:"hero"`
	About    string       `json:"about"`
	Skills   []string     `json:"skills"`
	Projects []ProjectRef `json:"projects"`
	Contact  Contact      `json:"contact"`
	AllLinks []Link       `json:"all_links"`
}

type ProjectRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Contact struct {
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Socials []Social `json:"socials"`
}

type Social struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type PortfolioFeedback struct {
	OverallFeedback string            `json:"overall_feedback"`
	SectionWise     []SectionFeedback `json:"section_wise"`
}

type SectionFeedback struct {
	Section         string `json:"section"`
	Existing        string `json:"existing"`
	Suggestion      string `json:"suggestion"`
	ImprovedExample string `json:"improved_example"`
}

// Validate checks the fields the pipeline depends on.
func (a *PortfolioAnalysis) Validate() error {
	if a.StructuredContent == nil {
		return errors.New("missing structured_content")
	}
	if a.Analysis == nil {
		return errors.New("missing analysis")
	}
	return nil
}

// CaseStudyAnalysis is the structured score document for one case study.
type CaseStudyAnalysis struct {
	OverallScore float64       `json:"overall_score"`
	PhaseScores  []PhaseScore  `json:"phase_scores"`
	Summary      string        `json:"summary"`
	UXKeywords   []string      `json:"ux_keywords"`
	Improvements []Improvement `json:"improvements"`
	Verdict      string        `json:"verdict"`
}

type PhaseScore struct {
	Phase       string       `json:"phase"`
	Score       float64      `json:"score"`
	MaxScore    float64      `json:"max_score"`
	Reasoning   string       `json:"reasoning"`
	Subsections []Subsection `json:"subsections"`
}

type Subsection struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score"`
	Reasoning string  `json:"reasoning"`
}

type Improvement struct {
	Phase          string `json:"phase"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
}

// Phase is one of the fixed scoring phases of the case-study model.
type Phase struct {
	Name     string
	MaxScore float64
}

// CaseStudyPhases is the scoring model, in order. Max scores add up to 100.
var CaseStudyPhases = []Phase{
	{"Research & Insights", 15},
	{"Context, Domain & Problem Definition", 15},
	{"Ideation & Design Process", 20},
	{"Visual Design & UX/UI Quality", 20},
	{"Validation & Iteration", 15},
	{"Storytelling & UX Copywriting", 10},
	{"Bonus Points", 5},
}

// Validate checks score ranges and that every fixed phase is present, in
// order, with its fixed maximum.
func (a *CaseStudyAnalysis) Validate() error {
	if a.OverallScore < 0 || a.OverallScore > 100 {
		return fmt.Errorf("overall_score %v out of range", a.OverallScore)
	}
	if len(a.PhaseScores) != len(CaseStudyPhases) {
		return fmt.Errorf("want %d phase_scores, got %d", len(CaseStudyPhases), len(a.PhaseScores))
	}
	for i, p := range a.PhaseScores {
		want := CaseStudyPhases[i]
		if !phaseNameMatches(p.Phase, want.Name) {
			return fmt.Errorf("phase %d: got %q, want %q", i+1, p.Phase, want.Name)
		}
		if p.MaxScore != want.MaxScore {
			return fmt.Errorf("phase %d (%s): max_score %v, want %v", i+1, p.Phase, p.MaxScore, want.MaxScore)
		}
		if p.Score < 0 || p.Score > p.MaxScore {
			return fmt.Errorf("phase %d (%s): score %v out of range", i+1, p.Phase, p.Score)
		}
	}
	return nil
}

// phaseNameMatches compares a returned phase name with the expected one
// loosely: case, punctuation and a leading number are ignored, and the
// returned name only has to start with the expected name's first word.
func phaseNameMatches(got, want string) bool {
	g, w := phaseWords(got), phaseWords(want)
	return len(g) > 0 && len(w) > 0 && strings.HasPrefix(g[0], w[0])
}

func phaseWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
