package assessors

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

const (
	defaultTestRatioTarget = 0.5
	defaultDocRatioTarget  = 0.8
)

var testDirs = map[string]bool{
	"test":      true,
	"tests":     true,
	"__tests__": true,
	"spec":      true,
	"testdata":  true,
}

func isTestFile(rel string) bool {
	base := path.Base(rel)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.HasSuffix(base, "_spec.rb"):
		return true
	}
	for _, dir := range strings.Split(path.Dir(rel), "/") {
		if testDirs[dir] {
			return true
		}
	}
	return false
}

func isCodeFile(rel string) bool {
	_, ok := languageByExt[strings.ToLower(path.Ext(rel))]
	return ok
}

// testRatioCheck compares test files to source files.
type testRatioCheck struct {
	target float64
}

func (c *testRatioCheck) ID() string       { return "test_ratio" }
func (c *testRatioCheck) Name() string     { return "Test coverage ratio" }
func (c *testRatioCheck) Category() string { return "testing" }

func (c *testRatioCheck) Assess(repo types.Repository) types.Finding {
	return c.AssessContext(context.Background(), repo)
}

func (c *testRatioCheck) AssessContext(ctx context.Context, repo types.Repository) types.Finding {
	var sources, tests int
	testDirSeen := false
	err := walkFiles(ctx, repo.Path, func(rel string) {
		if !isCodeFile(rel) {
			return
		}
		if isTestFile(rel) {
			tests++
			for _, dir := range strings.Split(path.Dir(rel), "/") {
				if testDirs[dir] {
					testDirSeen = true
				}
			}
			return
		}
		sources++
	})
	if err != nil {
		return errorFinding(c, fmt.Errorf("walk: %w", err))
	}
	if sources == 0 {
		return skipped(c, "no source files found")
	}

	ratio := float64(tests) / float64(sources)
	evidence := []string{
		fmt.Sprintf("%d test files, %d source files", tests, sources),
		fmt.Sprintf("ratio %.2f (target %.2f)", ratio, c.target),
	}
	if testDirSeen {
		evidence = append(evidence, "dedicated test directory present")
	}
	return success(c, linear(ratio, c.target),
		"Add tests alongside the source files that lack them.", evidence...)
}

var (
	goFuncPattern = regexp.MustCompile(`^func\s`)
	pyDefPattern  = regexp.MustCompile(`^\s*(async\s+)?def\s`)
	jsFuncPattern = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s`)
)

// docRatioCheck measures the share of function declarations carrying a doc
// comment (Go, JavaScript, TypeScript) or a docstring (Python).
type docRatioCheck struct {
	target float64
}

func (c *docRatioCheck) ID() string       { return "doc_ratio" }
func (c *docRatioCheck) Name() string     { return "Docstring coverage" }
func (c *docRatioCheck) Category() string { return "documentation" }

func (c *docRatioCheck) Assess(repo types.Repository) types.Finding {
	return c.AssessContext(context.Background(), repo)
}

func (c *docRatioCheck) AssessContext(ctx context.Context, repo types.Repository) types.Finding {
	var funcs, documented int
	var readErr error
	err := walkFiles(ctx, repo.Path, func(rel string) {
		if readErr != nil || isTestFile(rel) {
			return
		}
		ext := strings.ToLower(path.Ext(rel))
		if ext != ".go" && ext != ".py" && ext != ".js" && ext != ".ts" && ext != ".jsx" && ext != ".tsx" {
			return
		}
		data, err := os.ReadFile(filepath.Join(repo.Path, filepath.FromSlash(rel)))
		if err != nil {
			readErr = fmt.Errorf("read %s: %w", rel, err)
			return
		}
		f, d := countDocumented(ext, data)
		funcs += f
		documented += d
	})
	if err == nil {
		err = readErr
	}
	if err != nil {
		return errorFinding(c, err)
	}
	if funcs == 0 {
		return skipped(c, "no function declarations found")
	}

	ratio := float64(documented) / float64(funcs)
	return success(c, linear(ratio, c.target),
		"Document exported functions with a leading comment or docstring.",
		fmt.Sprintf("%d of %d functions documented", documented, funcs),
		fmt.Sprintf("ratio %.2f (target %.2f)", ratio, c.target),
	)
}

// countDocumented is a line-based heuristic, not a parser.
func countDocumented(ext string, data []byte) (funcs, documented int) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	prevNonBlank := func(i int) string {
		for j := i - 1; j >= 0; j-- {
			if s := strings.TrimSpace(lines[j]); s != "" {
				return s
			}
		}
		return ""
	}
	nextNonBlank := func(i int) string {
		for j := i + 1; j < len(lines); j++ {
			if s := strings.TrimSpace(lines[j]); s != "" {
				return s
			}
		}
		return ""
	}

	for i, line := range lines {
		switch ext {
		case ".go":
			if goFuncPattern.MatchString(line) {
				funcs++
				if strings.HasPrefix(prevNonBlank(i), "//") {
					documented++
				}
			}
		case ".py":
			if pyDefPattern.MatchString(line) {
				funcs++
				next := nextNonBlank(i)
				if strings.HasPrefix(next, `"""`) || strings.HasPrefix(next, `'''`) {
					documented++
				}
			}
		default:
			if jsFuncPattern.MatchString(line) {
				funcs++
				prev := prevNonBlank(i)
				if strings.HasSuffix(prev, "*/") || strings.HasPrefix(prev, "//") {
					documented++
				}
			}
		}
	}
	return funcs, documented
}
