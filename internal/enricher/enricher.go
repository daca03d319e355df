package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider names
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
	ProviderNone   = "none"
)

var (
	// ErrNoResult means the provider answered but nothing usable could be parsed
	ErrNoResult = errors.New("no enrichment result")
	// ErrUnknownProvider is returned by New for an unrecognized provider name
	ErrUnknownProvider = errors.New("unknown enrichment provider")
)

const (
	maxTags       = 40
	maxCaption    = 400
	maxLabelChars = 80
)

// Input is everything a provider may look at for one file
type Input struct {
	Path      string
	Name      string
	Extension string
	MimeType  string
	Category  string

	// Image holds raw bytes for formats a vision model accepts
	Image          []byte
	ImageMediaType string

	// Text is an extracted snippet for documents
	Text string
}

// HasImage reports whether the input carries image bytes
func (in Input) HasImage() bool {
	return len(in.Image) > 0 && in.ImageMediaType != ""
}

// Result is the metadata learned about one file
type Result struct {
	Label         string
	Tags          []string
	Caption       string
	Confidence    float64
	ExtractedText string
	Source        string
}

// Empty reports whether the result carries no enrichment at all
func (r *Result) Empty() bool {
	return r == nil || (r.Label == "" && r.Caption == "" && len(r.Tags) == 0 && r.ExtractedText == "")
}

// Provider learns a label, tags and a caption for a file
type Provider interface {
	Enrich(ctx context.Context, in Input) (*Result, error)
	Name() string
}

const systemPrompt = `You classify files for a personal search index. Reply with ONE JSON object and nothing else.
Schema:
{
  "type": "<one short high-level concept: invoice, receipt, screenshot, photograph, meme, slide, chart, document page, resume, contract, code, other>",
  "caption": "<at most 400 characters; what the file shows or contains and what it is for>",
  "tags": ["<10 to 40 short lowercase tags: subjects, objects, setting, platform, style, colors, brands, purpose>"],
  "detected_text": "<legible text transcribed verbatim, or \"none\">",
  "confidence": <number between 0 and 1>
}
Never copy overlay text into "type". No markdown fences, no trailing commas, no duplicate tags.`

// userPrompt describes the file to a text or vision model
func userPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File name: %s\n", in.Name)
	if in.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", in.Category)
	}
	if in.MimeType != "" {
		fmt.Fprintf(&sb, "MIME type: %s\n", in.MimeType)
	}
	switch {
	case in.HasImage():
		sb.WriteString("The image is attached.\n")
	case strings.TrimSpace(in.Text) != "":
		sb.WriteString("Extracted content:\n")
		sb.WriteString(in.Text)
		sb.WriteByte('\n')
	default:
		sb.WriteString("No content could be extracted; classify from the name and type.\n")
	}
	return sb.String()
}

// rawResult is the JSON shape models are asked to return. Alternate key
// names seen in practice are accepted too.
type rawResult struct {
	Type         string          `json:"type"`
	Label        string          `json:"label"`
	Caption      string          `json:"caption"`
	Description  string          `json:"description"`
	Tags         json.RawMessage `json:"tags"`
	DetectedText string          `json:"detected_text"`
	Confidence   json.RawMessage `json:"confidence"`
}

// ParseResponse extracts the JSON object between the first '{' and the last
// '}' of a model reply and normalizes it
func ParseResponse(reply, source string) (*Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrNoResult)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResult, err)
	}

	res := &Result{
		Label:      truncate(strings.TrimSpace(firstNonEmpty(raw.Type, raw.Label)), maxLabelChars),
		Caption:    truncate(strings.TrimSpace(firstNonEmpty(raw.Caption, raw.Description)), maxCaption),
		Tags:       parseTags(raw.Tags),
		Confidence: parseConfidence(raw.Confidence),
		Source:     source,
	}
	if text := strings.TrimSpace(raw.DetectedText); text != "" && !strings.EqualFold(text, "none") {
		res.ExtractedText = text
	}
	if res.Empty() {
		return nil, ErrNoResult
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseTags accepts a JSON array of strings or a single comma-separated string
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil
		}
		list = strings.Split(joined, ",")
	}
	return NormalizeTags(list)
}

// NormalizeTags lowercases, trims and dedupes tags, keeping the first
// occurrence and at most 40 entries
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseConfidence accepts a number or a numeric string and clamps to [0, 1]
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err != nil {
			return 0
		}
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NoneProvider performs no enrichment. Files keep their filesystem facts and
// locally extracted text only.
type NoneProvider struct{}

func (NoneProvider) Enrich(context.Context, Input) (*Result, error) {
	return &Result{Source: ProviderNone}, nil
}

func (NoneProvider) Name() string { return ProviderNone }
