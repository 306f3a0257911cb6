package assessors

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// fileCheck scores 100 when any of its well-known files exists, 0 otherwise.
type fileCheck struct {
	id          string
	name        string
	cat         string
	files       []string // relative paths, checked in order
	globs       []string // root-level glob patterns
	remediation string
}

func (c *fileCheck) ID() string       { return c.id }
func (c *fileCheck) Name() string     { return c.name }
func (c *fileCheck) Category() string { return c.cat }

func (c *fileCheck) Assess(repo types.Repository) types.Finding {
	if rel, ok := firstExisting(repo.Path, c.files...); ok {
		return success(c, 100, c.remediation, "found "+rel)
	}
	for _, pattern := range c.globs {
		matches, err := filepath.Glob(filepath.Join(repo.Path, pattern))
		if err != nil {
			return errorFinding(c, fmt.Errorf("glob %s: %w", pattern, err))
		}
		for _, m := range matches {
			if fileExists(m) {
				return success(c, 100, c.remediation, "found "+filepath.Base(m))
			}
		}
	}
	return success(c, 0, c.remediation, "missing "+strings.Join(append(append([]string{}, c.files...), c.globs...), ", "))
}

const readmeHeadingTarget = 5

// readmeCheck gives half credit for a README and the rest for structure.
type readmeCheck struct{}

func (c *readmeCheck) ID() string       { return "readme" }
func (c *readmeCheck) Name() string     { return "README" }
func (c *readmeCheck) Category() string { return "documentation" }

func (c *readmeCheck) Assess(repo types.Repository) types.Finding {
	const remediation = "Add a README.md with install, usage, testing and contributing sections."

	rel, ok := firstExisting(repo.Path, "README.md", "README.rst", "README.txt", "README", "readme.md", "Readme.md")
	if !ok {
		return success(c, 0, remediation, "missing README")
	}
	data, err := readFile(filepath.Join(repo.Path, rel))
	if err != nil {
		return errorFinding(c, fmt.Errorf("read %s: %w", rel, err))
	}

	headings := countSectionHeadings(string(data))
	score := 50 + linear(float64(headings), readmeHeadingTarget)/2
	return success(c, score, remediation,
		"found "+rel,
		fmt.Sprintf("%d ## headings (target %d)", headings, readmeHeadingTarget),
	)
}

// countSectionHeadings counts "## " headings outside fenced code blocks.
func countSectionHeadings(text string) int {
	headings := 0
	fence := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "```"):
			fence = "```"
		case strings.HasPrefix(trimmed, "~~~"):
			fence = "~~~"
		case trimmed == "##" || strings.HasPrefix(trimmed, "## "):
			headings++
		}
	}
	return headings
}

var lockFiles = []string{
	"go.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb",
	"poetry.lock", "uv.lock", "Pipfile.lock", "Cargo.lock", "Gemfile.lock", "composer.lock",
}

var manifests = []string{
	"go.mod", "package.json", "pyproject.toml", "Pipfile", "requirements.txt",
	"Cargo.toml", "Gemfile", "composer.json",
}

// lockFileCheck only applies when the repository declares dependencies.
type lockFileCheck struct{}

func (c *lockFileCheck) ID() string       { return "lock_file" }
func (c *lockFileCheck) Name() string     { return "Dependency lock file" }
func (c *lockFileCheck) Category() string { return "reproducibility" }

func (c *lockFileCheck) Assess(repo types.Repository) types.Finding {
	manifest, ok := firstExisting(repo.Path, manifests...)
	if !ok {
		return skipped(c, "no dependency manifest found")
	}
	if lock, ok := firstExisting(repo.Path, lockFiles...); ok {
		return success(c, 100, "", "manifest "+manifest, "lock file "+lock)
	}
	return success(c, 0, "Commit the lock file generated by your package manager.",
		"manifest "+manifest, "no lock file")
}
