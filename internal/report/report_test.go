package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/enrich"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

func sampleDocument() Document {
	a := types.Assessment{
		ID: "a-1",
		Repository: types.Repository{
			Name:            "demo",
			Path:            "/src/demo",
			PrimaryLanguage: "Go",
		},
		Findings: []types.Finding{
			{AttributeID: "readme", Name: "README", Category: "documentation", Score: 80, Status: types.StatusSuccess, Evidence: []string{"has install | usage"}},
			{AttributeID: "ci_config", Name: "CI configuration", Status: types.StatusError, Evidence: []string{"assessor panicked"}},
			{AttributeID: "lock_file", Name: "Lock file", Status: types.StatusSkipped, Evidence: []string{"no package manager"}},
		},
		OverallScore:       80,
		AttributesTotal:    3,
		AttributesAssessed: 1,
		AttributesSkipped:  1,
		AttributesErrored:  1,
		CertificationLevel: types.TierGold,
		Breakdown: []types.Contribution{
			{AssessorName: "readme", Weight: 0.1, NormalizedWeight: 1, Score: 80, Contribution: 80},
		},
		AssessedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		DurationMs: 12,
	}
	skills := map[string]enrich.Skill{
		"readme": {AttributeID: "readme", Title: "Improve readme", Summary: "README scored 80/100.", Steps: []string{"Add a <testing> section."}},
	}
	return NewDocument(a, skills)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"html", FormatHTML, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDocument(), FormatJSON, Options{}))

	var decoded Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a-1", decoded.Assessment.ID)
	assert.Equal(t, types.TierGold, decoded.Assessment.CertificationLevel)
	assert.Contains(t, decoded.Skills, "readme")
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDocument(), FormatMarkdown, Options{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Readiness report: demo"))
	assert.Contains(t, out, "**Certification:** Gold (High)")
	assert.Contains(t, out, "| CI configuration |  | error |")
	assert.Contains(t, out, "| Lock file |  | skipped |")
	assert.Contains(t, out, `has install \| usage`)
	assert.Contains(t, out, "1 of 3 attributes assessed (1 skipped, 1 errored)")
	assert.Contains(t, out, "### Improve readme")
	assert.Contains(t, out, "1. Add a <testing> section.")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDocument(), FormatHTML, Options{Nonce: "abc123"}))
	out := buf.String()

	assert.Contains(t, out, `<style nonce="abc123">`)
	assert.Contains(t, out, `<td class="error">error</td>`)
	assert.Contains(t, out, `<td class="skipped">skipped</td>`)
	assert.Contains(t, out, "Add a &lt;testing&gt; section.")
	assert.NotContains(t, out, "<script")
}

func TestRenderUnknownFormat(t *testing.T) {
	assert.Error(t, Render(&bytes.Buffer{}, sampleDocument(), Format("pdf"), Options{}))
}
