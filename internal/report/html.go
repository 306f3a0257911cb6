package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/enrich"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var htmlTemplate = template.Must(
	template.New("report.html.tmpl").Funcs(template.FuncMap{
		"status":    StatusLabel,
		"join":      strings.Join,
		"score":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"weight":    func(v float64) string { return fmt.Sprintf("%.3f", v) },
		"rfc3339":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"tierLabel": func(t types.Tier) string { return t.Label() },
		"statusClass": func(f types.Finding) string {
			if f.Status == types.StatusSuccess {
				return "ok"
			}
			return string(f.Status)
		},
	}).ParseFS(templateFS, "templates/report.html.tmpl"),
)

type htmlData struct {
	Document
	Nonce      string
	SkillsList []enrich.Skill
}

func renderHTML(w io.Writer, doc Document, nonce string) error {
	return htmlTemplate.Execute(w, htmlData{
		Document:   doc,
		Nonce:      nonce,
		SkillsList: sortedSkills(doc.Skills),
	})
}
