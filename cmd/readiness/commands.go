package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/benchmark"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/enrich"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/leaderboard"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/report"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

func assessCommand() *cli.Command {
	return &cli.Command{
		Name:      "assess",
		Usage:     "score one repository",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "markdown", Usage: "json, markdown or html"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the report to a file"},
			&cli.BoolFlag{Name: "no-skills", Usage: "skip remediation skills"},
			&cli.BoolFlag{Name: "save", Usage: "store the assessment in the database"},
			&cli.Float64Flag{Name: "fail-under", Usage: "exit 1 when the score is below this value"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("assess: a repository path is required", 2)
			}
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			comps, err := build(c, nil)
			if err != nil {
				return err
			}
			defer comps.Close()

			a, err := comps.Analyzer.Assess(c.Context, path)
			if err != nil {
				return err
			}

			if c.Bool("save") {
				repo, closeDB, err := openRepository(comps.Config)
				if err != nil {
					return err
				}
				defer closeDB()
				if err := repo.SaveAssessment(c.Context, a); err != nil {
					return err
				}
			}

			var skills map[string]enrich.Skill
			if !c.Bool("no-skills") {
				skills = comps.Enricher.Enrich(c.Context, a)
			}
			if err := writeOutput(c, c.String("output"), func(w io.Writer) error {
				return report.Render(w, report.NewDocument(a, skills), format, report.Options{})
			}); err != nil {
				return err
			}

			if c.IsSet("fail-under") && a.OverallScore < c.Float64("fail-under") {
				return cli.Exit(fmt.Sprintf("score %.1f is below %.1f", a.OverallScore, c.Float64("fail-under")), 1)
			}
			return nil
		},
	}
}

type batchOutput struct {
	BatchID   string               `json:"batch_id"`
	Requested int                  `json:"requested"`
	Succeeded int                  `json:"succeeded"`
	Results   []types.TbenchResult `json:"results"`
	Deltas    []types.DeltaResult  `json:"deltas,omitempty"`
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "benchmark many repositories concurrently",
		ArgsUsage: "<path>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "file with one repository path per line"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "parallel jobs"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-job timeout"},
			&cli.StringFlag{Name: "command", Usage: "external benchmark command; the repository path is appended"},
			&cli.StringFlag{Name: "baseline", Usage: "results JSON of a previous batch to diff against"},
			&cli.StringFlag{Name: "assessor", Usage: "assessor the deltas are attributed to (with --baseline)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write results to a file"},
			&cli.BoolFlag{Name: "save", Usage: "store results and deltas in the database"},
		},
		Action: func(c *cli.Context) error {
			paths, err := batchPaths(c)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return cli.Exit("batch: at least one repository path is required", 2)
			}
			if c.IsSet("baseline") != c.IsSet("assessor") {
				return cli.Exit("batch: --baseline and --assessor go together", 2)
			}

			comps, err := build(c, func(cfg *config.Config) {
				if c.IsSet("concurrency") {
					cfg.BatchConcurrency = c.Int("concurrency")
				}
				if c.IsSet("timeout") {
					cfg.BatchTimeout = c.Duration("timeout")
				}
				if c.IsSet("command") {
					cfg.BenchmarkCommand = strings.Fields(c.String("command"))
				}
			})
			if err != nil {
				return err
			}
			defer comps.Close()

			start := time.Now()
			results := comps.Runner.RunBatch(c.Context, paths)
			out := batchOutput{
				BatchID:   database.NewBatchID(),
				Requested: len(paths),
				Succeeded: len(results),
				Results:   results,
			}
			comps.Logger.Info("Batch finished", "batch_id", out.BatchID, "succeeded", out.Succeeded,
				"requested", out.Requested, "duration", time.Since(start))

			if c.IsSet("baseline") {
				var baseline batchOutput
				if err := readJSON(c.String("baseline"), &baseline); err != nil {
					return err
				}
				out.Deltas = benchmark.ComputeDeltas(c.String("assessor"), baseline.Results, results)
			}

			if c.Bool("save") {
				repo, closeDB, err := openRepository(comps.Config)
				if err != nil {
					return err
				}
				defer closeDB()
				if err := repo.SaveBenchmarkResults(c.Context, out.BatchID, results); err != nil {
					return err
				}
				if err := repo.SaveDeltas(c.Context, out.Deltas); err != nil {
					return err
				}
			}

			return writeOutput(c, c.String("output"), func(w io.Writer) error {
				return encodeJSON(w, out)
			})
		},
	}
}

func batchPaths(c *cli.Context) ([]string, error) {
	paths := append([]string(nil), c.Args().Slice()...)
	if from := c.String("from"); from != "" {
		f, err := os.Open(from)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				paths = append(paths, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "summarize per-assessor score deltas",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "deltas JSON; reads the database when omitted"},
			&cli.StringFlag{Name: "assessor", Usage: "only this assessor (database mode)"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			var deltas []types.DeltaResult
			if input := c.String("input"); input != "" {
				var err error
				if deltas, err = readDeltas(input); err != nil {
					return err
				}
			} else {
				cfg, err := loadConfig(c)
				if err != nil {
					return err
				}
				repo, closeDB, err := openRepository(cfg)
				if err != nil {
					return err
				}
				defer closeDB()
				if deltas, err = repo.ListDeltas(c.Context, c.String("assessor")); err != nil {
					return err
				}
			}

			impacts := analysis.Aggregate(deltas)
			if c.Bool("json") {
				return encodeJSON(c.App.Writer, impacts)
			}
			return analysis.WriteImpactTable(c.App.Writer, impacts)
		},
	}
}

// readDeltas accepts a bare array, a {"deltas": [...]} request body or a
// batch output file
func readDeltas(path string) ([]types.DeltaResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []types.DeltaResult
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped types.DeltaRequest
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return wrapped.Deltas, nil
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "rank stored repositories by their latest score",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "period", Value: leaderboard.PeriodAllTime, Usage: "daily, weekly, monthly or all_time"},
			&cli.IntFlag{Name: "limit", Value: leaderboard.DefaultLimit},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			period := c.String("period")
			if !leaderboard.ValidPeriod(period) {
				return cli.Exit(fmt.Sprintf("leaderboard: unknown period %q", period), 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			repo, closeDB, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := leaderboard.NewService(repo, nil, newLogger(c, cfg), nil)
			resp, err := svc.GetLeaderboard(c.Context, period, c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return encodeJSON(c.App.Writer, resp)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tREPOSITORY\tSCORE\tLEVEL\tASSESSED")
			for _, e := range resp.Entries {
				fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\t%s\n", e.Rank, e.RepoName, e.Score, e.CertificationLevel,
					e.AssessedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func cacheCommand() *cli.Command {
	open := func(c *cli.Context) (*cache.FileCache, error) {
		cfg, err := loadConfig(c)
		if err != nil {
			return nil, err
		}
		return cache.NewFileCache(cfg.CacheDir, cfg.CacheTTL, newLogger(c, cfg))
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "inspect or clear the skill cache",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "print entry counts and size",
				Action: func(c *cli.Context) error {
					fc, err := open(c)
					if err != nil {
						return err
					}
					stats, err := fc.Stats()
					if err != nil {
						return err
					}
					return encodeJSON(c.App.Writer, stats)
				},
			},
			{
				Name:  "clear",
				Usage: "delete every cached entry",
				Action: func(c *cli.Context) error {
					fc, err := open(c)
					if err != nil {
						return err
					}
					n, err := fc.Clear()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "removed %d entries from %s\n", n, fc.Dir())
					return nil
				},
			},
		},
	}
}

func writeOutput(c *cli.Context, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(c.App.Writer)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
