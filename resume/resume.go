// Package resume pulls contact details out of resume PDFs.
package resume

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/jupark12/portfolio-grader/models"
	"github.com/ledongthuc/pdf"
)

// maxNameLines is how many leading lines are searched for the name.
const maxNameLines = 10

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	linkedinPattern = regexp.MustCompile(`(?i)linkedin\.com/(?:in|company|profile)/[\w\-]+`)
	phonePatterns   = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})\b`),
		regexp.MustCompile(`\+?\b[1-9]\d{9,14}\b`),
		regexp.MustCompile(`(?i)\b(?:Phone|Mobile|Tel|Ph)[:\s]+([+\d\-\(\)\s]+)`),
	}
	phoneStrip = regexp.MustCompile(`[^\d+]`)
	nameStrip  = regexp.MustCompile(`[^\p{L}\s\-.'&]`)

	nameSkipWords = []string{
		"resume", "cv", "curriculum", "vitae", "phone", "email", "linkedin",
		"portfolio", "website", "contact", "mobile:", "tel:", "www", "http",
		"|", "/", "-", "@",
	}
)

// ParseFile extracts resume fields from the PDF at path. When the PDF has
// no extractable text layer, pdftotext is tried if it is installed.
func ParseFile(ctx context.Context, path string) (models.ResumeData, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return models.ResumeData{}, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	text, err := plainText(r)
	if err != nil {
		return models.ResumeData{}, err
	}
	if strings.TrimSpace(text) == "" {
		text = pdftotext(ctx, path)
	}
	return ExtractFields(text), nil
}

// Parse extracts resume fields from PDF bytes.
func Parse(data []byte) (models.ResumeData, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return models.ResumeData{}, fmt.Errorf("failed to read pdf: %w", err)
	}
	text, err := plainText(r)
	if err != nil {
		return models.ResumeData{}, err
	}
	return ExtractFields(text), nil
}

// ParseReader is Parse for an upload stream.
func ParseReader(r io.Reader) (models.ResumeData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.ResumeData{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return Parse(data)
}

func plainText(r *pdf.Reader) (string, error) {
	var b strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func pdftotext(ctx context.Context, path string) string {
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output()
	if err != nil {
		slog.Debug("pdftotext fallback unavailable", "path", path, "err", err)
		return ""
	}
	return string(out)
}

// ExtractFields finds the name, email, phone number and LinkedIn URL in
// resume text. Fields that cannot be found are left empty.
func ExtractFields(text string) models.ResumeData {
	return models.ResumeData{
		Name:        extractName(text),
		Email:       emailPattern.FindString(text),
		Phone:       extractPhone(text),
		LinkedInURL: extractLinkedIn(text),
	}
}

func extractPhone(text string) string {
	for _, pattern := range phonePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			phone := phoneStrip.ReplaceAllString(match, "")
			if len(phone) >= 10 {
				return phone
			}
		}
	}
	return ""
}

func extractLinkedIn(text string) string {
	match := linkedinPattern.FindString(text)
	if match == "" {
		return ""
	}
	return "https://" + match
}

// extractName takes the first short line near the top that does not look
// like a header or contact detail.
func extractName(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > maxNameLines {
		lines = lines[:maxNameLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 2 || len(line) > 100 || containsAny(strings.ToLower(line), nameSkipWords) {
			continue
		}
		name := strings.Join(strings.Fields(nameStrip.ReplaceAllString(line, "")), " ")
		if len(name) >= 2 {
			return name
		}
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
