// Package gemini is a small client for the Gemini generateContent API.  It
// backs recall short summaries, part alert descriptions, service
// recommendations, inspection report extraction and price estimates.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/autoseers/carseer/internal/apperr"
)

// DefaultBaseURL is the public Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrDisabled is returned by every call when no API key is configured.
var ErrDisabled = errors.New("gemini api key not configured")

// Client calls generateContent for a single model.
type Client struct {
	http   *resty.Client
	apiKey string
	model  string
}

// New returns a Client.  An empty baseURL selects DefaultBaseURL.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{http: c, apiKey: strings.TrimSpace(apiKey), model: strings.TrimSpace(model)}
}

// Enabled reports whether the client has credentials.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends prompt (and an optional image) and returns the text of the
// first candidate part that has any.  Failures are reported as
// apperr.ErrCollaboratorUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if !c.Enabled() {
		return "", apperr.Unavailable("gemini", ErrDisabled)
	}
	parts := []part{{Text: prompt}}
	if len(image) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}})
	}
	body := request{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{Temperature: 1.0, ResponseMimeType: "application/json"},
	}

	var out response
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetPathParam("model", c.model).
		SetBody(&body).
		SetResult(&out).
		SetError(&out).
		Post("/models/{model}:generateContent")
	if err != nil {
		return "", apperr.Unavailable("gemini", err)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := strings.TrimSpace(resp.String())
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", apperr.Unavailable("gemini", fmt.Errorf("status %d: %s", resp.StatusCode(), msg))
	}
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				return t, nil
			}
		}
	}
	return "", apperr.Unavailable("gemini", errors.New("empty response"))
}

// generateJSON runs Generate and decodes the returned text into v.
func (c *Client) generateJSON(ctx context.Context, prompt string, image []byte, mimeType string, v any) error {
	text, err := c.Generate(ctx, prompt, image, mimeType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFence(text)), v); err != nil {
		return apperr.Unavailable("gemini", fmt.Errorf("decode generated json: %w", err))
	}
	return nil
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
