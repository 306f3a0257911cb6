package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Skill is a remediation recipe attached to a finding. Summary is filled in
// per repository and is never cached.
type Skill struct {
	AttributeID string   `json:"attribute_id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Steps       []string `json:"steps"`
	Generator   string   `json:"generator"`
}

// Generator produces the repository-independent part of a Skill for a
// finding. Implementations may be slow or billed per call, which is why
// results are cached under a key derived from the finding alone.
type Generator interface {
	Name() string
	Generate(ctx context.Context, f types.Finding) (Skill, error)
}

// Store is the subset of the file cache the enricher needs
type Store interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, value any)
}

// Enricher attaches skills to findings that did not reach a perfect score
type Enricher struct {
	gen    Generator
	store  Store
	logger *monitoring.Logger
}

// NewEnricher creates an enricher. store may be nil to disable caching.
func NewEnricher(gen Generator, store Store, logger *monitoring.Logger) *Enricher {
	if logger == nil {
		logger = monitoring.NewLogger("info")
	}
	return &Enricher{gen: gen, store: store, logger: logger}
}

// Key returns the cache key for a finding
func Key(f types.Finding) string {
	return cache.GenerateKey(f.AttributeID, f.Score, cache.HashEvidence(f.Evidence))
}

// Enrich returns one skill per eligible finding, keyed by attribute id.
// Findings that scored 100, were skipped, or errored get none. Generator
// failures are logged and the finding is left without a skill.
func (e *Enricher) Enrich(ctx context.Context, a types.Assessment) map[string]Skill {
	out := make(map[string]Skill)
	for _, f := range a.Findings {
		if f.Status != types.StatusSuccess || f.Score >= 100 {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Enrichment interrupted", "error", err)
			break
		}

		s, err := e.skillFor(ctx, a.Repository, f)
		if err != nil {
			e.logger.Warn("Skill generation failed", "attribute_id", f.AttributeID, "error", err)
			continue
		}
		out[f.AttributeID] = s
	}
	return out
}

func (e *Enricher) skillFor(ctx context.Context, repo types.Repository, f types.Finding) (Skill, error) {
	s, err := e.recipeFor(ctx, f)
	if err != nil {
		return Skill{}, err
	}
	s.Summary = Summarize(repo, f)
	return s, nil
}

func (e *Enricher) recipeFor(ctx context.Context, f types.Finding) (Skill, error) {
	key := Key(f)
	if e.store != nil {
		if raw, ok := e.store.Get(key); ok {
			var s Skill
			if err := json.Unmarshal(raw, &s); err == nil {
				return s, nil
			}
		}
	}

	s, err := e.gen.Generate(ctx, f)
	if err != nil {
		return Skill{}, fmt.Errorf("%s: %w", e.gen.Name(), err)
	}
	s.Summary = ""
	if s.AttributeID == "" {
		s.AttributeID = f.AttributeID
	}
	if s.Generator == "" {
		s.Generator = e.gen.Name()
	}
	if e.store != nil {
		e.store.Set(key, s)
	}
	return s, nil
}

// Summarize describes how f scored for repo
func Summarize(repo types.Repository, f types.Finding) string {
	name := repo.Name
	if name == "" {
		name = "this repository"
	}
	lang := repo.PrimaryLanguage
	if lang == "" {
		lang = "the project"
	}
	return fmt.Sprintf("%s scored %.0f/100 for %s (%s). Evidence: %s.",
		f.Name, f.Score, name, lang, strings.Join(f.Evidence, "; "))
}

// TemplateGenerator builds skills from static recipes. It never fails and
// needs no network, so it is the default generator.
type TemplateGenerator struct{}

// Name implements Generator
func (TemplateGenerator) Name() string { return "template" }

// Generate implements Generator
func (TemplateGenerator) Generate(_ context.Context, f types.Finding) (Skill, error) {
	steps := append([]string(nil), recipes[f.AttributeID]...)
	if len(steps) == 0 {
		steps = []string{"Review the evidence below and address the gaps it lists."}
	}
	if f.Remediation != "" {
		steps = append([]string{f.Remediation}, steps...)
	}
	return Skill{
		AttributeID: f.AttributeID,
		Title:       "Improve " + strings.ToLower(f.Name),
		Steps:       steps,
	}, nil
}

var recipes = map[string][]string{
	"readme":        {"Cover install, usage, configuration, testing and contributing under their own headings."},
	"agent_context": {"List the build and test commands.", "Describe the directory layout and coding conventions."},
	"pre_commit":    {"Run `pre-commit install` after adding the config.", "Add formatter, linter and secret-scan hooks."},
	"ci_config":     {"Run the full test suite in CI.", "Fail the pipeline on lint errors."},
	"lock_file":     {"Generate the lock file with your package manager and commit it."},
	"test_ratio":    {"Start with tests for the most-changed packages.", "Add a test target to the build."},
	"doc_ratio":     {"Document exported functions first.", "Describe behavior and error cases, not implementation."},
	"gitignore":     {"Ignore build output, dependency folders and editor files."},
	"license":       {"Pick a license and add its full text as LICENSE."},
	"contributing":  {"Explain setup, branch naming and the review process."},
}
