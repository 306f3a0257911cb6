package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func renderMarkdown(w io.Writer, doc Document) error {
	a := doc.Assessment
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# Readiness report: %s\n\n", a.Repository.Name)
	fmt.Fprintf(bw, "**Score:** %.1f / 100  \n", a.OverallScore)
	fmt.Fprintf(bw, "**Certification:** %s (%s)  \n", a.CertificationLevel, a.CertificationLevel.Label())
	fmt.Fprintf(bw, "**Path:** `%s`  \n", a.Repository.Path)
	if a.Repository.URL != "" {
		fmt.Fprintf(bw, "**URL:** %s  \n", a.Repository.URL)
	}
	if a.Repository.PrimaryLanguage != "" {
		fmt.Fprintf(bw, "**Primary language:** %s  \n", a.Repository.PrimaryLanguage)
	}
	fmt.Fprintf(bw, "**Assessed:** %s in %d ms\n\n", a.AssessedAt.UTC().Format(time.RFC3339), a.DurationMs)

	fmt.Fprintf(bw, "%d of %d attributes assessed (%d skipped, %d errored).\n\n",
		a.AttributesAssessed, a.AttributesTotal, a.AttributesSkipped, a.AttributesErrored)

	bw.WriteString("## Findings\n\n")
	bw.WriteString("| Attribute | Category | Score | Evidence |\n")
	bw.WriteString("|---|---|---|---|\n")
	for _, f := range a.Findings {
		fmt.Fprintf(bw, "| %s | %s | %s | %s |\n",
			cell(f.Name), cell(f.Category), StatusLabel(f), cell(strings.Join(f.Evidence, "; ")))
	}

	if len(a.Breakdown) > 0 {
		bw.WriteString("\n## Score breakdown\n\n")
		bw.WriteString("| Assessor | Weight | Score | Contribution |\n")
		bw.WriteString("|---|---:|---:|---:|\n")
		for _, c := range a.Breakdown {
			fmt.Fprintf(bw, "| %s | %.3f | %.1f | %.2f |\n",
				cell(c.AssessorName), c.NormalizedWeight, c.Score, c.Contribution)
		}
	}

	if skills := sortedSkills(doc.Skills); len(skills) > 0 {
		bw.WriteString("\n## Remediation\n")
		for _, s := range skills {
			fmt.Fprintf(bw, "\n### %s\n\n%s\n\n", s.Title, s.Summary)
			for i, step := range s.Steps {
				fmt.Fprintf(bw, "%d. %s\n", i+1, step)
			}
		}
	}

	fmt.Fprintf(bw, "\n_Generated %s_\n", doc.GeneratedAt.UTC().Format(time.RFC3339))
	return bw.Flush()
}
