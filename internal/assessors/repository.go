package assessors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// MaxFiles bounds every directory walk so huge monorepos stay cheap to scan.
const MaxFiles = 20000

var errWalkLimit = errors.New("walk limit reached")

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

var languageByExt = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".mjs":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".rs":    "Rust",
	".java":  "Java",
	".kt":    "Kotlin",
	".rb":    "Ruby",
	".php":   "PHP",
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".swift": "Swift",
	".scala": "Scala",
	".sh":    "Shell",
}

// ScanRepository builds the Repository value for a local path. The walk
// stops with ctx's error once ctx is done.
func ScanRepository(ctx context.Context, path string) (types.Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return types.Repository{}, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return types.Repository{}, fmt.Errorf("stat repository: %w", err)
	}
	if !info.IsDir() {
		return types.Repository{}, fmt.Errorf("repository path %s is not a directory", abs)
	}

	counts := make(map[string]int)
	total := 0
	err = walkFiles(ctx, abs, func(rel string) {
		total++
		if lang, ok := languageByExt[strings.ToLower(filepath.Ext(rel))]; ok {
			counts[lang]++
		}
	})
	if err != nil {
		return types.Repository{}, fmt.Errorf("walk repository: %w", err)
	}

	languages := make([]string, 0, len(counts))
	for lang := range counts {
		languages = append(languages, lang)
	}
	sort.Slice(languages, func(i, j int) bool {
		if counts[languages[i]] != counts[languages[j]] {
			return counts[languages[i]] > counts[languages[j]]
		}
		return languages[i] < languages[j]
	})

	repo := types.Repository{
		URL:       originURL(abs),
		Path:      abs,
		Name:      filepath.Base(abs),
		Languages: languages,
		Metadata: map[string]string{
			"file_count": strconv.Itoa(total),
		},
	}
	if len(languages) > 0 {
		repo.PrimaryLanguage = languages[0]
	}
	for _, lang := range languages {
		repo.Metadata["files_"+strings.ToLower(lang)] = strconv.Itoa(counts[lang])
	}
	if total >= MaxFiles {
		repo.Metadata["truncated"] = "true"
	}
	return repo, nil
}

// walkFiles calls fn with the slash-separated relative path of every regular
// file under root, skipping vendored and generated directories.
func walkFiles(ctx context.Context, root string, fn func(rel string)) error {
	seen := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		fn(filepath.ToSlash(rel))
		seen++
		if seen >= MaxFiles {
			return errWalkLimit
		}
		return nil
	})
	if errors.Is(err, errWalkLimit) {
		return nil
	}
	return err
}

// originURL pulls the origin remote out of .git/config with a plain text scan.
func originURL(root string) string {
	f, err := os.Open(filepath.Join(root, ".git", "config"))
	if err != nil {
		return ""
	}
	defer f.Close()

	inOrigin := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inOrigin = line == `[remote "origin"]`
			continue
		}
		if inOrigin && strings.HasPrefix(line, "url") {
			if _, v, ok := strings.Cut(line, "="); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}
