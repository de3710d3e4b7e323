package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kvtrace/hitrate-sim/sim"
	"github.com/kvtrace/hitrate-sim/sim/trace"
	"github.com/kvtrace/hitrate-sim/sim/workload"
)

// unlimitedCapacity is the --pool-capacity value that disables eviction.
const unlimitedCapacity = "unlimited"

// replayOptions is the resolved configuration of one replay command.
type replayOptions struct {
	capacityTokens int64
	tokenizerID    string
	matcher        sim.MatcherConfig
	strict         bool
	outputDir      string
	metricsOut     string
	matchLog       string
	progress       bool
	parallel       int
}

// traceResult is the outcome of replaying one trace file.
type traceResult struct {
	path    string
	name    string
	output  string
	metrics *sim.Metrics
	err     error
}

var replayCmd = &cobra.Command{
	Use:   "replay TRACE...",
	Short: "Replay JSONL traces and report prefix and substring hit rates",
	Long: `Replays each trace against its own token pool, in timestamp order, and
writes one match record per call to <output-dir>/<name>_matches.jsonl,
followed by a summary line.

The pool capacity is a memory budget ("8GB", "512MiB") converted to tokens
with --bytes-per-token, or derived from --model's config.json. Use
"unlimited" to disable eviction, or --pool-capacity-tokens to give the
capacity in tokens directly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := resolveReplayOptions()
		if err != nil {
			return err
		}
		return runReplay(cmd.Context(), cmd.OutOrStdout(), args, opts)
	},
}

func init() {
	f := replayCmd.Flags()
	f.String("pool-capacity", "", `Pool memory budget ("8GB", "512MiB") or "unlimited"`)
	f.Int64("pool-capacity-tokens", 0, "Pool capacity in tokens; overrides --pool-capacity")
	f.Int64("bytes-per-token", 0, "KV cache bytes per token; 0 derives it from --model")
	f.String("model", "", "Model whose KV footprint sizes the pool (see profiles.yaml)")
	f.String("model-config-folder", "", "Folder containing the model's HuggingFace config.json")
	f.String("profiles", "", "Model profiles file (default ./profiles.yaml)")
	f.String("tokenizer", "", fmt.Sprintf("Tokenizer vocabulary (%s)", strings.Join(sim.VocabularyIDs(), ", ")))
	f.Bool("strict", false, "Abort on the first malformed or untokenizable entry")
	f.Int("min-match-tokens", sim.DefaultMatcherConfig().MinMatchTokens, "Shortest block reported as a substring match")
	f.Int("max-candidates", sim.DefaultMatcherConfig().MaxCandidates, "Most recent occurrences probed per window")
	f.String("output-dir", "results", "Directory for <name>_matches.jsonl files")
	f.String("log-matches", "", "Also log every match record as JSON to this file")
	f.String("metrics-out", "", "Write Prometheus textfile metrics to this path")
	f.Bool("progress", false, "Show a progress bar on stderr")
	f.Int("parallel", 1, "Traces replayed concurrently")

	// Bind to viper; keys match the config file and HITRATE_* env names.
	for key, flag := range map[string]string{
		"pool_capacity_bytes":     "pool-capacity",
		"pool_capacity_tokens":    "pool-capacity-tokens",
		"bytes_per_token":         "bytes-per-token",
		"model":                   "model",
		"model_config_folder":     "model-config-folder",
		"profiles":                "profiles",
		"tokenizer_vocabulary_id": "tokenizer",
		"strict_mode":             "strict",
		"min_match_tokens":        "min-match-tokens",
		"max_candidates":          "max-candidates",
		"output_dir":              "output-dir",
		"log_matches":             "log-matches",
		"metrics_out":             "metrics-out",
		"progress":                "progress",
		"parallel":                "parallel",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
}

// resolveReplayOptions merges flags, env and config file, then fills the
// gaps from profiles.yaml defaults.
func resolveReplayOptions() (*replayOptions, error) {
	profiles, err := loadProfiles(viper.GetString("profiles"))
	if err != nil {
		return nil, err
	}

	opts := &replayOptions{
		tokenizerID: firstNonEmpty(viper.GetString("tokenizer_vocabulary_id"), profiles.Defaults.Tokenizer, sim.DefaultVocabulary),
		matcher: sim.MatcherConfig{
			MinMatchTokens: viper.GetInt("min_match_tokens"),
			MaxCandidates:  viper.GetInt("max_candidates"),
		},
		strict:     viper.GetBool("strict_mode"),
		outputDir:  viper.GetString("output_dir"),
		metricsOut: viper.GetString("metrics_out"),
		matchLog:   viper.GetString("log_matches"),
		progress:   viper.GetBool("progress"),
		parallel:   viper.GetInt("parallel"),
	}
	if err := opts.matcher.Validate(); err != nil {
		return nil, err
	}
	if opts.parallel < 1 {
		return nil, fmt.Errorf("--parallel must be >= 1, got %d", opts.parallel)
	}

	if tokens := viper.GetInt64("pool_capacity_tokens"); tokens != 0 {
		if tokens < 0 {
			return nil, &sim.PoolCapacityError{Capacity: tokens}
		}
		opts.capacityTokens = tokens
		return opts, nil
	}

	model := firstNonEmpty(viper.GetString("model"), profiles.Defaults.Model)
	capacity := firstNonEmpty(viper.GetString("pool_capacity_bytes"), profiles.Defaults.PoolCapacity)
	opts.capacityTokens, err = poolCapacityTokens(capacity, func() (int64, error) {
		return resolveBytesPerToken(viper.GetInt64("bytes_per_token"), model, viper.GetString("model_config_folder"), profiles)
	})
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// poolCapacityTokens converts a human-readable memory budget into a token
// capacity. bytesPerToken is only consulted for bounded pools.
func poolCapacityTokens(value string, bytesPerToken func() (int64, error)) (int64, error) {
	if value == "" {
		return 0, errors.New("no pool capacity: set --pool-capacity, --pool-capacity-tokens or a profile default")
	}
	if strings.EqualFold(value, unlimitedCapacity) {
		return sim.UnlimitedCapacity, nil
	}
	budget, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("parsing pool capacity %q: %w", value, err)
	}
	bpt, err := bytesPerToken()
	if err != nil {
		return 0, err
	}
	tokens, err := sim.CapacityFromBytes(int64(budget), bpt)
	if err != nil {
		return 0, err
	}
	logrus.Infof("pool capacity %s at %d bytes/token = %s tokens",
		humanize.IBytes(budget), bpt, humanize.Comma(tokens))
	return tokens, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// runReplay replays every trace, each on its own simulator, at most
// opts.parallel at a time. A failing trace does not stop the others; the
// first error is returned after all have finished.
func runReplay(ctx context.Context, out io.Writer, paths []string, opts *replayOptions) error {
	if _, err := sim.NewTokenizer(opts.tokenizerID); err != nil {
		return err
	}
	logrus.Infof("replaying %d trace(s): tokenizer=%s capacity=%s tokens min_match=%d max_candidates=%d strict=%v",
		len(paths), opts.tokenizerID, capacityString(opts.capacityTokens),
		opts.matcher.MinMatchTokens, opts.matcher.MaxCandidates, opts.strict)

	matchLogger, closeLog, err := newMatchLogger(opts.matchLog)
	if err != nil {
		return err
	}
	defer closeLog()

	results := make([]*traceResult, len(paths))
	traces := make([]*sim.Trace, len(paths))
	var total int64
	seen := make(map[string]bool)
	for i, path := range paths {
		name := uniqueName(seen, workload.TraceName(path))
		results[i] = &traceResult{path: path, name: name, output: filepath.Join(opts.outputDir, name+"_matches.jsonl")}

		tr, err := workload.LoadTrace(path)
		if err != nil {
			results[i].err = err
			continue
		}
		tr.Name = name
		traces[i] = tr
		total += int64(len(tr.Entries))
	}

	var bar *progressbar.ProgressBar
	if opts.progress {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("Replaying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("calls"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	collectors := newReplayCollectors()
	var g errgroup.Group
	g.SetLimit(opts.parallel)
	for i, tr := range traces {
		if tr == nil {
			continue
		}
		tr := tr
		res := results[i]
		g.Go(func() error {
			res.metrics, res.err = replayTrace(ctx, tr, res.output, opts, bar, matchLogger)
			if res.metrics != nil {
				collectors.observe(res.name, opts.capacityTokens, res.metrics)
			}
			return res.err
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
		_, _ = fmt.Fprintln(os.Stderr)
	}

	var processed, skipped int
	var firstErr error
	for _, res := range results {
		if res.metrics != nil {
			res.metrics.Print(out, res.name)
			_, _ = fmt.Fprintf(out, "Matches written to   : %s\n\n", res.output)
			processed += res.metrics.TotalCalls
			skipped += res.metrics.SkippedEntries
		}
		if res.err != nil {
			logrus.WithField("trace", res.path).Errorf("replay failed: %v", res.err)
			if firstErr == nil {
				firstErr = res.err
			}
		}
	}

	if opts.metricsOut != "" {
		if err := collectors.writeTextfile(opts.metricsOut); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_, _ = fmt.Fprintf(out, "processed %d entries, skipped %d\n", processed, skipped)
	if firstErr != nil {
		return errReported{firstErr}
	}
	return nil
}

// replayTrace replays one loaded trace and writes its match file. The
// summary line is appended only when the replay completes.
func replayTrace(ctx context.Context, tr *sim.Trace, output string, opts *replayOptions,
	bar *progressbar.ProgressBar, matchLogger *logrus.Logger) (*sim.Metrics, error) {
	tok, err := sim.NewTokenizer(opts.tokenizerID)
	if err != nil {
		return nil, err
	}
	cfg := sim.SimConfig{
		PoolCapacityTokens: opts.capacityTokens,
		Matcher:            opts.matcher,
		StrictMode:         opts.strict,
	}
	if bar != nil {
		cfg.OnEntry = func(int, int) { _ = bar.Add(1) }
	}
	s, err := sim.NewSimulator(cfg, tok)
	if err != nil {
		return nil, err
	}

	w, err := trace.CreateWriter(output)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logrus.Warnf("closing %s: %v", output, err)
		}
	}()

	m, err := s.Run(ctx, tr, func(rec *trace.MatchRecord) error {
		if matchLogger != nil {
			matchLogger.WithFields(logrus.Fields{
				"trace":         tr.Name,
				"entry":         rec.SequenceIndex,
				"input_len":     rec.InputLen,
				"prefix_len":    rec.PrefixMatchLen,
				"substring_len": rec.SubstringMatchLen,
				"blocks":        len(rec.SubstringMatches),
			}).Info("match")
		}
		return w.Write(rec)
	})
	if err != nil {
		return m, err
	}
	if err := w.WriteSummary(m.Summary()); err != nil {
		return m, err
	}
	return m, nil
}

// newMatchLogger opens a JSON logger for per-record match logging.
// Returns a nil logger when path is empty.
func newMatchLogger(path string) (*logrus.Logger, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating match log: %w", err)
	}
	l := logrus.New()
	l.SetOutput(f)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l, func() { _ = f.Close() }, nil
}

// uniqueName suffixes base with _1, _2, ... until it is unused, then claims it.
func uniqueName(seen map[string]bool, base string) string {
	name := base
	for n := 1; seen[name]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	seen[name] = true
	return name
}

func capacityString(tokens int64) string {
	if tokens == sim.UnlimitedCapacity {
		return unlimitedCapacity
	}
	return humanize.Comma(tokens)
}

// errReported marks an error already logged per trace so Execute does not
// log it twice.
type errReported struct{ error }

func (e errReported) Unwrap() error { return e.error }
