// Package analysis asks a generative model to score portfolios and case
// studies and turns its answers into validated, typed results.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupark12/portfolio-grader/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("analysis")

// ErrInvalidResponse is returned when the model answered but the answer is
// not a valid result document.
var ErrInvalidResponse = errors.New("analysis: invalid model response")

// Attachment is binary context sent with a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Model generates a text answer for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string, attachments ...Attachment) (string, error)
}

// Analyzer builds prompts, calls the model and validates its answers.
type Analyzer struct {
	model Model
}

// NewAnalyzer creates an Analyzer on top of model.
func NewAnalyzer(model Model) *Analyzer {
	return &Analyzer{model: model}
}

// AnalyzePortfolio extracts the structure of a portfolio and critiques it.
func (a *Analyzer) AnalyzePortfolio(ctx context.Context, page *models.ScrapeResult) (*models.PortfolioAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analyze:portfolio")
	defer span.End()
	span.SetAttributes(attribute.String("url", page.URL))

	prompt, err := PortfolioPrompt(page)
	if err != nil {
		return nil, err
	}
	text, err := a.model.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, fmt.Errorf("portfolio analysis: %w", err)
	}

	var result models.PortfolioAnalysis
	if err := Parse(text, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid response")
		return nil, err
	}
	if err := result.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid response")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.URL == "" {
		result.URL = page.URL
	}
	return &result, nil
}

// AnalyzeCaseStudy scores a case study page. screenshot may be nil.
func (a *Analyzer) AnalyzeCaseStudy(ctx context.Context, page *models.ScrapeResult, screenshot []byte) (*models.CaseStudyAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analyze:case_study")
	defer span.End()
	span.SetAttributes(attribute.String("url", page.URL), attribute.Bool("screenshot", screenshot != nil))

	prompt, err := CaseStudyPrompt(page, screenshot != nil)
	if err != nil {
		return nil, err
	}
	var attachments []Attachment
	if screenshot != nil {
		attachments = append(attachments, Attachment{MIMEType: "image/jpeg", Data: screenshot})
	}
	text, err := a.model.Generate(ctx, prompt, attachments...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, fmt.Errorf("case study analysis: %w", err)
	}

	var result models.CaseStudyAnalysis
	if err := Parse(text, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid response")
		return nil, err
	}
	if err := result.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid response")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &result, nil
}
