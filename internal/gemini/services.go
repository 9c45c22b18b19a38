package gemini

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// MaxRecommendations caps the recommendation list.
const MaxRecommendations = 8

// MaxTitleRunes is the width of recalls.short_summary in characters.
const MaxTitleRunes = 255

// SummarizeRecalls returns one short title per record, positionally.  The
// result may be shorter or longer than recs when the model misbehaves;
// callers re-associate by index and treat missing entries as empty.
// Titles are trimmed and cut to MaxTitleRunes.
func (c *Client) SummarizeRecalls(ctx context.Context, recs []model.RecallRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	type item struct {
		Component   string `json:"Component"`
		Summary     string `json:"Summary"`
		Consequence string `json:"Consequence"`
	}
	in := struct {
		Results []item `json:"results"`
	}{}
	for _, r := range recs {
		in.Results = append(in.Results, item{Component: r.Component, Summary: r.Summary, Consequence: r.Consequence})
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out struct {
		Summaries []string `json:"summaries"`
	}
	if err := c.generateJSON(ctx, recallSummaryPrompt(string(payload)), nil, "", &out); err != nil {
		return nil, err
	}
	for i, title := range out.Summaries {
		out.Summaries[i] = clampTitle(title)
	}
	return out.Summaries, nil
}

func clampTitle(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxTitleRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxTitleRunes]))
}

// AlertSummary describes why a part may be in its current condition.
func (c *Client) AlertSummary(ctx context.Context, p model.PartStatus) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.generateJSON(ctx, alertPrompt(p), nil, "", &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

// Recommendation is one suggested maintenance service.
type Recommendation struct {
	ServiceName  string `json:"serviceName"`
	AveragePrice string `json:"averagePrice"`
	Description  string `json:"description"`
	Frequency    string `json:"frequency"`
	Priority     int    `json:"priority"`
}

// Recommendations suggests up to MaxRecommendations services for v.
// Priorities are clamped to 1..10.
func (c *Client) Recommendations(ctx context.Context, v model.Vehicle) ([]Recommendation, error) {
	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := c.generateJSON(ctx, recommendationsPrompt(v), nil, "", &out); err != nil {
		return nil, err
	}
	recs := out.Recommendations
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	for i := range recs {
		recs[i].Priority = min(max(recs[i].Priority, 1), 10)
	}
	return recs, nil
}

// Report is the structured content of an inspection report image.
type Report struct {
	Valid   bool
	Make    string
	Model   string
	Year    int
	Mileage int
	Parts   []model.PartStatus
}

type reportPayload struct {
	Valid   *bool  `json:"is_image_valid"`
	Make    string `json:"car_make"`
	Model   string `json:"car_model"`
	Year    string `json:"car_year"`
	Mileage string `json:"mileage"`
	Parts   []struct {
		Part     string `json:"part"`
		Status   string `json:"status"`
		Category string `json:"category"`
	} `json:"carParts"`
}

// ExtractReport reads an inspection report image.  Parts whose status is
// not one of Good, Medium or Bad are dropped.
func (c *Client) ExtractReport(ctx context.Context, image []byte, mimeType string) (Report, error) {
	if len(image) == 0 {
		return Report{}, apperr.Invalid("empty report image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	var p reportPayload
	if err := c.generateJSON(ctx, reportPrompt, image, mimeType, &p); err != nil {
		return Report{}, err
	}
	r := Report{
		Valid:   p.Valid == nil || *p.Valid,
		Make:    strings.TrimSpace(p.Make),
		Model:   strings.TrimSpace(p.Model),
		Year:    leadingInt(p.Year),
		Mileage: leadingInt(p.Mileage),
	}
	for _, part := range p.Parts {
		cond, ok := model.ParseCondition(part.Status)
		if !ok || strings.TrimSpace(part.Part) == "" {
			continue
		}
		r.Parts = append(r.Parts, model.PartStatus{
			Name:     strings.TrimSpace(part.Part),
			Category: strings.TrimSpace(part.Category),
			Status:   cond,
		})
	}
	return r, nil
}

// EstimatePrice returns a dollar-formatted estimate, or "" when the model
// could not produce one.
func (c *Client) EstimatePrice(ctx context.Context, v model.Vehicle) (string, error) {
	if !v.Complete() {
		return "", apperr.Invalid("vehicle %s lacks make, model or year", v.ID)
	}
	var out struct {
		Price string `json:"estimatedCarPrice"`
	}
	if err := c.generateJSON(ctx, pricePrompt(v), nil, "", &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Price), nil
}

// leadingInt parses the digits of s ignoring thousands separators and
// trailing units ("42,000 miles" → 42000).  Unparseable input yields 0.
func leadingInt(s string) int {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ',' && b.Len() > 0:
		default:
			if b.Len() > 0 {
				return atoi(b.String())
			}
		}
	}
	return atoi(b.String())
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

