package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// commandOutput is what an external benchmark prints on stdout
type commandOutput struct {
	Score    *float64               `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// CommandBenchmark runs an external program once per repository, in its own
// process. The repository path is appended as the last argument and the
// program must print a JSON object {"score": n, "metadata": {...}}. The
// process is killed when the job's context ends.
func CommandBenchmark(name string, args ...string) Func {
	return func(ctx context.Context, repo string) (types.TbenchResult, error) {
		cmd := exec.CommandContext(ctx, name, append(append([]string{}, args...), repo)...)
		cmd.Dir = repo
		// children that inherit stdout must not hold Wait open after a kill
		cmd.WaitDelay = time.Second

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return types.TbenchResult{}, ctx.Err()
			}
			msg := strings.TrimSpace(stderr.String())
			if len(msg) > 512 {
				msg = msg[:512]
			}
			return types.TbenchResult{}, fmt.Errorf("benchmark command: %w: %s", err, msg)
		}

		var out commandOutput
		if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
			return types.TbenchResult{}, fmt.Errorf("decode benchmark output: %w", err)
		}
		if out.Score == nil {
			return types.TbenchResult{}, fmt.Errorf("benchmark output has no score")
		}
		return types.TbenchResult{
			Repository:  repo,
			Score:       *out.Score,
			Metadata:    out.Metadata,
			CompletedAt: time.Now().UTC(),
		}, nil
	}
}

// AssessmentBenchmark scores each repository in-process with the analyzer.
func AssessmentBenchmark(a *analysis.Analyzer) Func {
	return func(ctx context.Context, repo string) (types.TbenchResult, error) {
		assessment, err := a.Assess(ctx, repo)
		if err != nil {
			return types.TbenchResult{}, err
		}
		if err := ctx.Err(); err != nil {
			return types.TbenchResult{}, err
		}

		findings := make(map[string]interface{}, len(assessment.Findings))
		for _, f := range assessment.Findings {
			findings[f.AttributeID] = f.Score
		}
		return types.TbenchResult{
			Repository: repo,
			Score:      assessment.OverallScore,
			Metadata: map[string]interface{}{
				"assessment_id":       assessment.ID,
				"certification_level": string(assessment.CertificationLevel),
				"findings":            findings,
			},
			CompletedAt: time.Now().UTC(),
		}, nil
	}
}

// ComputeDeltas pairs baseline and treatment results by repository and
// attributes the score change to assessorID. Scores are on the 0-100 scale;
// deltas are reported on 0-1. Repositories missing from either side are
// ignored.
func ComputeDeltas(assessorID string, baseline, treatment []types.TbenchResult) []types.DeltaResult {
	base := make(map[string]float64, len(baseline))
	for _, b := range baseline {
		base[b.Repository] = b.Score
	}

	out := make([]types.DeltaResult, 0, len(treatment))
	for _, tr := range treatment {
		b, ok := base[tr.Repository]
		if !ok {
			continue
		}
		out = append(out, types.DeltaResult{
			AssessorID: assessorID,
			DeltaScore: (tr.Score - b) / 100,
			Repository: tr.Repository,
		})
	}
	return out
}
