package assessors

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

var testCommandPattern = regexp.MustCompile(`(?i)\b(go test|pytest|npm (run )?test|yarn test|pnpm test|cargo test|make test|tox|jest|vitest|mvn test|gradle test|bundle exec rspec)\b`)

// ciCheck detects CI configuration and looks for a test step in it.
type ciCheck struct{}

func (c *ciCheck) ID() string       { return "ci_config" }
func (c *ciCheck) Name() string     { return "CI configuration" }
func (c *ciCheck) Category() string { return "automation" }

func (c *ciCheck) Assess(repo types.Repository) types.Finding {
	const remediation = "Add a CI workflow that runs the test suite on every push."

	configs, err := ciConfigs(repo.Path)
	if err != nil {
		return errorFinding(c, err)
	}
	if len(configs) == 0 {
		return success(c, 0, remediation, "no CI configuration found")
	}

	evidence := make([]string, 0, len(configs)+1)
	runsTests := false
	for _, rel := range configs {
		evidence = append(evidence, "found "+rel)
		data, err := readFile(filepath.Join(repo.Path, rel))
		if err != nil {
			return errorFinding(c, fmt.Errorf("read %s: %w", rel, err))
		}
		if testCommandPattern.Match(data) {
			runsTests = true
		}
	}

	score := 70.0
	if runsTests {
		score = 100
		evidence = append(evidence, "test command referenced")
	} else {
		evidence = append(evidence, "no test command referenced")
	}
	return success(c, score, remediation, evidence...)
}

func ciConfigs(root string) ([]string, error) {
	var found []string
	for _, pattern := range []string{".github/workflows/*.yml", ".github/workflows/*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err == nil {
				found = append(found, filepath.ToSlash(rel))
			}
		}
	}
	for _, rel := range []string{".gitlab-ci.yml", ".circleci/config.yml", "Jenkinsfile", "azure-pipelines.yml", ".travis.yml"} {
		if fileExists(filepath.Join(root, filepath.FromSlash(rel))) {
			found = append(found, rel)
		}
	}
	sort.Strings(found)
	return found, nil
}

// preCommitCheck rewards a pre-commit config and the number of hooks it wires.
type preCommitCheck struct{}

func (c *preCommitCheck) ID() string       { return "pre_commit" }
func (c *preCommitCheck) Name() string     { return "Pre-commit hooks" }
func (c *preCommitCheck) Category() string { return "automation" }

func (c *preCommitCheck) Assess(repo types.Repository) types.Finding {
	const remediation = "Add .pre-commit-config.yaml with formatting and lint hooks."

	data, err := readFile(filepath.Join(repo.Path, ".pre-commit-config.yaml"))
	if err != nil {
		return errorFinding(c, fmt.Errorf("read pre-commit config: %w", err))
	}
	if data == nil {
		return success(c, 0, remediation, "missing .pre-commit-config.yaml")
	}

	hooks := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "- id:") {
			hooks++
		}
	}
	return success(c, 60+10*float64(hooks), remediation,
		"found .pre-commit-config.yaml",
		fmt.Sprintf("%d hooks configured", hooks),
	)
}
