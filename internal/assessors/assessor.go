package assessors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Assessor inspects a repository and produces exactly one Finding.
// Implementations must not panic or return partial findings; Run enforces
// that at the boundary anyway.
type Assessor interface {
	ID() string
	Name() string
	Category() string
	Assess(repo types.Repository) types.Finding
}

// Default returns the built-in assessors in report order.
func Default() []Assessor {
	return []Assessor{
		&readmeCheck{},
		&fileCheck{
			id: "agent_context", name: "Agent context file", cat: "documentation",
			files:       []string{"CLAUDE.md", "AGENTS.md", ".github/copilot-instructions.md"},
			remediation: "Add a CLAUDE.md or AGENTS.md describing build, test and layout conventions.",
		},
		&preCommitCheck{},
		&ciCheck{},
		&lockFileCheck{},
		&testRatioCheck{target: defaultTestRatioTarget},
		&docRatioCheck{target: defaultDocRatioTarget},
		&fileCheck{
			id: "gitignore", name: "Gitignore", cat: "hygiene",
			files:       []string{".gitignore"},
			remediation: "Add a .gitignore for build output and local tooling.",
		},
		&fileCheck{
			id: "license", name: "License", cat: "governance",
			globs:       []string{"LICENSE*", "LICENCE*", "COPYING*"},
			remediation: "Add a LICENSE file.",
		},
		&fileCheck{
			id: "contributing", name: "Contributing guide", cat: "governance",
			files:       []string{"CONTRIBUTING.md", ".github/CONTRIBUTING.md", "docs/CONTRIBUTING.md"},
			remediation: "Add CONTRIBUTING.md with setup and review expectations.",
		},
	}
}

// ContextAssessor is implemented by assessors that walk the tree and can
// stop early when the scan is cancelled.
type ContextAssessor interface {
	Assessor
	AssessContext(ctx context.Context, repo types.Repository) types.Finding
}

// Filter drops assessors whose ID is listed in disabled.
func Filter(all []Assessor, disabled []string) []Assessor {
	if len(disabled) == 0 {
		return all
	}
	skip := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		skip[id] = true
	}
	out := make([]Assessor, 0, len(all))
	for _, a := range all {
		if !skip[a.ID()] {
			out = append(out, a)
		}
	}
	return out
}

// Run executes a with a panic boundary and normalizes the finding so that
// callers always receive a well-formed value.
func Run(a Assessor, repo types.Repository) types.Finding {
	return RunContext(context.Background(), a, repo)
}

// RunContext is Run with cancellation. A done ctx yields an error finding
// without calling the assessor.
func RunContext(ctx context.Context, a Assessor, repo types.Repository) (f types.Finding) {
	defer func() {
		if r := recover(); r != nil {
			f = errorFinding(a, fmt.Errorf("assessor panicked: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorFinding(a, err)
	}
	if ca, ok := a.(ContextAssessor); ok {
		f = ca.AssessContext(ctx, repo)
	} else {
		f = a.Assess(repo)
	}
	if f.AttributeID == "" {
		f.AttributeID = a.ID()
	}
	if f.Name == "" {
		f.Name = a.Name()
	}
	if f.Category == "" {
		f.Category = a.Category()
	}
	if f.Evidence == nil {
		f.Evidence = []string{}
	}
	switch f.Status {
	case types.StatusSuccess, types.StatusSkipped:
	case types.StatusError:
		f.Score = 0
	default:
		f.Status = types.StatusSuccess
	}
	f.Score = clamp(f.Score, 0, 100)
	return f
}

func success(a Assessor, score float64, remediation string, evidence ...string) types.Finding {
	f := types.Finding{
		AttributeID: a.ID(),
		Name:        a.Name(),
		Category:    a.Category(),
		Score:       clamp(score, 0, 100),
		Evidence:    evidence,
		Status:      types.StatusSuccess,
	}
	if f.Score < 100 {
		f.Remediation = remediation
	}
	return f
}

func skipped(a Assessor, reason string) types.Finding {
	return types.Finding{
		AttributeID: a.ID(),
		Name:        a.Name(),
		Category:    a.Category(),
		Evidence:    []string{reason},
		Status:      types.StatusSkipped,
	}
}

func errorFinding(a Assessor, err error) types.Finding {
	return types.Finding{
		AttributeID: a.ID(),
		Name:        a.Name(),
		Category:    a.Category(),
		Score:       0,
		Evidence:    []string{err.Error()},
		Status:      types.StatusError,
	}
}

// linear interpolates value toward target and caps the result at 100.
func linear(value, target float64) float64 {
	if target <= 0 {
		return 100
	}
	return clamp(value/target*100, 0, 100)
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// firstExisting returns the first of rels that exists under root.
func firstExisting(root string, rels ...string) (string, bool) {
	for _, rel := range rels {
		if fileExists(filepath.Join(root, rel)) {
			return rel, true
		}
	}
	return "", false
}

// readFile returns the file content, or nil without error when it is missing.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}
