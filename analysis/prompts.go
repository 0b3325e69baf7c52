package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
)

// Context budgets sent to the model.
const (
	PortfolioTextBudget    = 2000
	PortfolioLinkBudget    = 50
	CaseStudyTextBudget    = 5000
	CaseStudyHeadingBudget = 15
)

// subsection is a scored criterion within a phase.
type subsection struct {
	Name     string
	MaxScore int
}

// phaseSubsections follows the order of models.CaseStudyPhases.
var phaseSubsections = [][]subsection{
	{{"Secondary research", 5}, {"Primary research", 5}, {"Quality & depth of insights", 5}},
	{{"Problem statement clarity", 5}, {"Business context & target audience", 5}, {"Success metrics defined", 5}},
	{{"Brainstorming & ideation", 5}, {"Design iterations", 5}, {"Wireframes/sketches/prototypes", 5}, {"Design decision rationale", 5}},
	{{"Visual hierarchy & aesthetics", 5}, {"Layout, grids & design system", 6}, {"Accessibility", 3}, {"UX copywriting", 3}, {"Microinteractions & feedback", 3}},
	{{"Usability testing", 5}, {"Feedback incorporation", 5}, {"Metrics & results", 5}},
	{{"Narrative flow", 3}, {"Presentation & visuals", 3}, {"Writing quality", 4}},
	{{"Gamification", 2}, {"Innovation", 2}, {"Systems thinking", 1}},
}

const portfolioTemplate = `You are an expert UI/UX portfolio analyzer.

Analyze this portfolio based on the extracted content and links.

URL: %s

TEXT CONTENT (first %d chars):
%s

ANCHOR LINKS (first %d):
%s

Return ONLY valid JSON (no markdown, no descriptions). Use EXACTLY this format:

{
  "url": %s,
  "structured_content": {
    "hero": "",
    "about": "",
    "skills": [],
    "projects": [{"name": "", "url": ""}],
    "contact": {
      "email": "",
      "phone": "",
      "socials": [{"platform": "", "url": ""}]
    },
    "all_links": [{"text": "", "href": ""}]
  },
  "analysis": {
    "overall_feedback": "",
    "section_wise": [
      {"section": "", "existing": "", "suggestion": "", "improved_example": ""}
    ]
  }
}

List every case study or project page of the portfolio in structured_content.projects with its absolute URL.`

// PortfolioPrompt builds the top-level portfolio prompt. Text and links are
// cut to their budgets.
func PortfolioPrompt(page *models.ScrapeResult) (string, error) {
	text, err := json.Marshal(truncateRunes(page.Text, PortfolioTextBudget))
	if err != nil {
		return "", err
	}
	links := page.Links
	if len(links) > PortfolioLinkBudget {
		links = links[:PortfolioLinkBudget]
	}
	if links == nil {
		links = []models.Link{}
	}
	linksJSON, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return "", err
	}
	quotedURL, err := json.Marshal(page.URL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(portfolioTemplate,
		page.URL,
		PortfolioTextBudget, text,
		PortfolioLinkBudget, linksJSON,
		quotedURL,
	), nil
}

// CaseStudyPrompt builds the scoring prompt for one case study.
func CaseStudyPrompt(page *models.ScrapeResult, withScreenshot bool) (string, error) {
	headings := page.Headings
	if len(headings) > CaseStudyHeadingBudget {
		headings = headings[:CaseStudyHeadingBudget]
	}
	if headings == nil {
		headings = []models.Heading{}
	}
	headingsJSON, err := json.MarshalIndent(headings, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an expert UX case study reviewer with deep knowledge of design thinking, user research, and best practices in product design.\n\n")
	b.WriteString("Analyze the provided case study page according to this scoring model (100 points total):\n\n")
	for i, p := range models.CaseStudyPhases {
		fmt.Fprintf(&b, "%d. %s (%g points)\n", i+1, p.Name, p.MaxScore)
	}

	b.WriteString("\nCASE STUDY PAGE DATA\n\n")
	fmt.Fprintf(&b, "Title: %s\n", orNA(page.Title))
	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	fmt.Fprintf(&b, "Description: %s\n", orNA(page.MetaDescription))
	fmt.Fprintf(&b, "Content Length: %d characters\n", page.FullTextLength)
	fmt.Fprintf(&b, "Total Images: %d\n", page.TotalImages)
	fmt.Fprintf(&b, "Headings Count: %d\n\n", len(page.Headings))
	fmt.Fprintf(&b, "TEXT CONTENT (first %d chars):\n%s\n\n", CaseStudyTextBudget, truncateRunes(page.Text, CaseStudyTextBudget))
	fmt.Fprintf(&b, "HEADINGS:\n%s\n\n", headingsJSON)
	if withScreenshot {
		b.WriteString("A screenshot of the case study page is also provided for visual assessment.\n\n")
	}

	b.WriteString("Return ONLY valid JSON (no markdown, no commentary). Use EXACTLY this structure, keeping the phases in this order with these max_score values:\n\n")
	b.WriteString(caseStudySchema())
	return b.String(), nil
}

func caseStudySchema() string {
	type sub struct {
		Name      string `json:"name"`
		Score     string `json:"score"`
		MaxScore  int    `json:"max_score"`
		Reasoning string `json:"reasoning"`
	}
	type phase struct {
		Phase       string `json:"phase"`
		Score       string `json:"score"`
		MaxScore    int    `json:"max_score"`
		Reasoning   string `json:"reasoning"`
		Subsections []sub  `json:"subsections"`
	}
	phases := make([]phase, len(models.CaseStudyPhases))
	for i, p := range models.CaseStudyPhases {
		phases[i] = phase{Phase: p.Name, Score: "<number>", MaxScore: int(p.MaxScore), Reasoning: "<detailed explanation>"}
		for _, s := range phaseSubsections[i] {
			phases[i].Subsections = append(phases[i].Subsections, sub{Name: s.Name, Score: "<number>", MaxScore: s.MaxScore, Reasoning: "<explanation>"})
		}
	}
	schema := map[string]any{
		"overall_score": "<number 0-100>",
		"phase_scores":  phases,
		"summary":       "<2-3 paragraph summary>",
		"ux_keywords":   []string{"<keyword1>", "<keyword2>"},
		"improvements":  []map[string]string{{"phase": "<phase>", "issue": "<issue>", "recommendation": "<action>"}},
		"verdict":       "<one-line final verdict>",
	}
	out, _ := json.MarshalIndent(schema, "", "  ")
	return string(out)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
