package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	valid := [][2]JobStatus{
		{StatusQueued, StatusProcessing},
		{StatusQueued, StatusFailed},
		{StatusProcessing, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
	}
	for _, tr := range valid {
		assert.NoError(t, ValidateTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	invalid := [][2]JobStatus{
		{StatusQueued, StatusCompleted},
		{StatusCompleted, StatusProcessing},
		{StatusFailed, StatusCompleted},
		{StatusCompleted, StatusCompleted},
		{"bogus", StatusProcessing},
	}
	for _, tr := range invalid {
		assert.Error(t, ValidateTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, JobStatus("bogus").Valid())
}

func TestJobClone(t *testing.T) {
	j := &Job{ID: "a", Result: map[string]any{"k": 1}}
	c := j.Clone()
	c.Result["k"] = 2
	c.ID = "b"
	assert.Equal(t, 1, j.Result["k"])
	assert.Equal(t, "a", j.ID)
}

func TestSlugs(t *testing.T) {
	assert.Equal(t, "www_behance_net_gallery_123_Checkout", ProjectSlug("https://www.behance.net/gallery/123/Checkout"))
	assert.Equal(t, "jane_dev", ProjectSlug("https://jane.dev"))
	assert.Len(t, ProjectSlug("https://jane.dev/"+strings.Repeat("a", 300)), 150)

	assert.Equal(t, "jane.dev_work_checkout_"+URLHash("https://jane.dev/work/checkout"), SafeURLSlug("https://jane.dev/work/checkout"))
	assert.Len(t, SafeURLSlug("http://jane.dev/"+strings.Repeat("b", 100)), 50)

	assert.Equal(t, "www_behance_net", PlatformDomain("https://www.behance.net/jane"))
	assert.Equal(t, "portfolio", PlatformDomain("not a url"))
}

func TestProjectSlugKeepsQuery(t *testing.T) {
	one := ProjectSlug("https://x.io/work?id=1")
	two := ProjectSlug("https://x.io/work?id=2")
	assert.NotEqual(t, one, two)
	assert.True(t, strings.HasPrefix(one, "x_io_work_"))
	assert.NotEqual(t, ProjectSlug("https://x.io/work#a"), ProjectSlug("https://x.io/work#b"))

	long := "https://jane.dev/" + strings.Repeat("a", 300)
	assert.NotEqual(t, ProjectSlug(long+"/one"), ProjectSlug(long+"/two"))
}

func TestSafeURLSlugDistinguishesLongURLs(t *testing.T) {
	one := SafeURLSlug("https://myportfolio.designer-name.com/case-studies/project-one")
	two := SafeURLSlug("https://myportfolio.designer-name.com/case-studies/project-two")
	assert.NotEqual(t, one, two)
	assert.Len(t, one, 50)
	assert.Len(t, URLHash("https://x.io"), 8)
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 30)
	out := truncate(s, 51)
	assert.Len(t, out, 50)
	assert.True(t, strings.HasPrefix(s, out))
}

func TestStageTimingSums(t *testing.T) {
	s := StageTimings{Scrape: 1, Screenshot: 2, Analyze: 3, Persist: 4}
	assert.EqualValues(t, 10, s.Sum())
	j := JobStageTimings{Resume: 1, Scrape: 1, Analyze: 1, Persist: 1, Discovery: 1, Projects: 1}
	assert.EqualValues(t, 6, j.Sum())
}

func validCaseStudy() *CaseStudyAnalysis {
	a := &CaseStudyAnalysis{OverallScore: 50}
	for _, p := range CaseStudyPhases {
		a.PhaseScores = append(a.PhaseScores, PhaseScore{Phase: p.Name, Score: p.MaxScore / 2, MaxScore: p.MaxScore})
	}
	return a
}

func TestCaseStudyValidate(t *testing.T) {
	require.NoError(t, validCaseStudy().Validate())

	a := validCaseStudy()
	a.OverallScore = 101
	assert.Error(t, a.Validate())

	a = validCaseStudy()
	a.PhaseScores = a.PhaseScores[:6]
	assert.Error(t, a.Validate())

	a = validCaseStudy()
	a.PhaseScores[2].MaxScore = 15
	assert.Error(t, a.Validate())

	a = validCaseStudy()
	a.PhaseScores[6].Score = 6
	assert.Error(t, a.Validate())

	// Two phases with the same maximum swapped.
	a = validCaseStudy()
	a.PhaseScores[0], a.PhaseScores[1] = a.PhaseScores[1], a.PhaseScores[0]
	assert.ErrorContains(t, a.Validate(), "phase 1")

	a = validCaseStudy()
	a.PhaseScores[0].Phase = "1. Research and insights"
	a.PhaseScores[3].Phase = "visual design"
	assert.NoError(t, a.Validate())

	a = validCaseStudy()
	a.PhaseScores[5].Phase = ""
	assert.Error(t, a.Validate())

	var total float64
	for _, p := range CaseStudyPhases {
		total += p.MaxScore
	}
	assert.EqualValues(t, 100, total)
}

func TestPortfolioValidate(t *testing.T) {
	assert.Error(t, (&PortfolioAnalysis{}).Validate())
	assert.Error(t, (&PortfolioAnalysis{StructuredContent: &StructuredContent{}}).Validate())
	assert.NoError(t, (&PortfolioAnalysis{StructuredContent: &StructuredContent{}, Analysis: &PortfolioFeedback{}}).Validate())
}
