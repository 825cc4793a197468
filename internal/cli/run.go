package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/harness"
	"github.com/roach88/statetree/internal/store"
	"github.com/roach88/statetree/internal/tree"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Metrics  bool
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Result  *harness.Result `json:"result"`
	Metrics string          `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its step results",
		Long: `Run a scenario against a fresh state tree and print the node events
of every step.

With --db, snapshot steps are stored in the SQLite database and restore
steps load them back from it.

Exit codes:
  0 - Every expectation held
  1 - One or more expectations failed
  2 - Command error (unreadable scenario, database error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for snapshot steps")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics of the run")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database, store.WithLogger(opts.logger()))
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	reg := prometheus.NewRegistry()
	runner := newRunner(opts.RootOptions, st, reg)

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter.VerboseLog("Running scenario %s from %s", sc.Name, path)
	res, err := runner.Run(ctx, sc)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario run aborted", err)
	}

	out := RunOutput{Result: res}
	if opts.Metrics {
		out.Metrics, err = gatherText(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if opts.Format == "json" {
		if res.Pass {
			return formatter.Success(out)
		}
		_ = formatter.Failure(ErrCodeFailed, fmt.Sprintf("scenario %s failed", sc.Name), out)
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}

	w := cmd.OutOrStdout()
	writeResult(w, res)
	if out.Metrics != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, out.Metrics)
	}
	if !res.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}

// newRunner builds a scenario runner from the resolved configuration.
func newRunner(opts *RootOptions, st *store.Store, reg prometheus.Registerer) *harness.Runner {
	cfg := opts.Config
	runnerOpts := []harness.RunnerOption{
		harness.WithLogger(opts.logger()),
		harness.WithMaxSteps(cfg.MaxSteps),
		harness.WithAwaitTimeout(cfg.AwaitTimeout),
		harness.WithTracking(cfg.Tracking),
	}
	if st != nil {
		runnerOpts = append(runnerOpts, harness.WithStore(st))
	}
	if reg != nil {
		runnerOpts = append(runnerOpts, harness.WithMetrics(
			tree.NewMetrics(reg, cfg.MetricsNamespace),
			behavior.NewMetrics(reg, cfg.MetricsNamespace),
		))
	}
	return harness.NewRunner(runnerOpts...)
}

// gatherText renders every metric family of reg in the text exposition
// format.
func gatherText(reg prometheus.Gatherer) (string, error) {
	families, err := reg.Gather()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// writeResult prints one line per step followed by failed expectations.
func writeResult(w io.Writer, res *harness.Result) {
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, res.Scenario)
	writeSteps(w, res)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func writeSteps(w io.Writer, res *harness.Result) {
	writeStep(w, res.Start)
	for _, sr := range res.Steps {
		writeStep(w, sr)
	}
}

func writeStep(w io.Writer, sr harness.StepResult) {
	label := sr.Op
	if sr.Name != "" {
		label = fmt.Sprintf("%s %q", sr.Op, sr.Name)
	}
	fmt.Fprintf(w, "  %2d %-28s starts=%d stops=%d updates=%d nodes=%d",
		sr.Index, label, sr.Counts.NodeStarts, sr.Counts.NodeStops, sr.Counts.NodeUpdates, sr.Nodes)
	if sr.Error != "" {
		fmt.Fprintf(w, " error=%s", sr.Error)
	}
	fmt.Fprintln(w)
}

// runContext is the command context, or Background when the command runs
// outside Execute.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
