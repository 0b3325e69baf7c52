package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiOptions configures a Gemini client.
type GeminiOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Gemini calls the Gemini generateContent REST endpoint and asks for JSON
// output.
type Gemini struct {
	http  *resty.Client
	model string
	key   string
}

// NewGemini creates a Gemini client.
func NewGemini(opts GeminiOptions) *Gemini {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGeminiBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetHeader("content-type", "application/json")
	return &Gemini{http: client, model: opts.Model, key: opts.APIKey}
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMIMEType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate implements Model.
func (g *Gemini) Generate(ctx context.Context, prompt string, attachments ...Attachment) (string, error) {
	if g.key == "" {
		return "", fmt.Errorf("gemini: api key is not configured")
	}

	parts := []geminiPart{{Text: prompt}}
	for _, a := range attachments {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: a.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		}})
	}
	req := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}
	req.GenerationConfig.ResponseMIMEType = "application/json"
	req.GenerationConfig.Temperature = 0.4

	var out geminiResponse
	var apiErr geminiError
	res, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("key", g.key).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/models/%s:generateContent", g.model))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if res.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = res.Status()
		}
		return "", fmt.Errorf("gemini: HTTP %d: %s", res.StatusCode(), msg)
	}

	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrInvalidResponse, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty answer (finish reason %s)", ErrInvalidResponse, out.Candidates[0].FinishReason)
	}
	return text.String(), nil
}
