// Package report renders an assessment as JSON, Markdown or HTML.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/enrich"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Format selects a renderer
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts the format names and a few common aliases
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// ContentType is the MIME type of the rendered output
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Extension is the file suffix used when writing reports to disk
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	default:
		return ".json"
	}
}

// Document is everything a report shows
type Document struct {
	Assessment  types.Assessment        `json:"assessment"`
	Skills      map[string]enrich.Skill `json:"skills,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// NewDocument stamps the generation time
func NewDocument(a types.Assessment, skills map[string]enrich.Skill) Document {
	return Document{Assessment: a, Skills: skills, GeneratedAt: time.Now().UTC()}
}

// Options tune rendering. Nonce is only used by the HTML renderer.
type Options struct {
	Nonce string
}

// Render writes doc to w in the requested format
func Render(w io.Writer, doc Document, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, doc)
	case FormatMarkdown:
		return renderMarkdown(w, doc)
	case FormatHTML:
		return renderHTML(w, doc, opts.Nonce)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// StatusLabel is what a report prints in place of a score for findings that
// took no part in scoring
func StatusLabel(f types.Finding) string {
	switch f.Status {
	case types.StatusError:
		return "error"
	case types.StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("%.1f", f.Score)
	}
}

func sortedSkills(skills map[string]enrich.Skill) []enrich.Skill {
	out := make([]enrich.Skill, 0, len(skills))
	for _, s := range skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttributeID < out[j].AttributeID })
	return out
}
