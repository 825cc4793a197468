package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/statetree/internal/harness"
	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/store"
)

// SnapshotOptions holds flags shared by the snapshot commands.
type SnapshotOptions struct {
	*RootOptions
	Database string
	Name     string
}

func (o *SnapshotOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.Config.StorePath
}

// SavedSnapshot is the output of snapshot save.
type SavedSnapshot struct {
	store.SnapshotInfo
	Inserted bool `json:"inserted"`
}

// ShownSnapshot is the output of snapshot show.
type ShownSnapshot struct {
	Info     store.SnapshotInfo `json:"info"`
	Snapshot route.Snapshot     `json:"snapshot"`
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, show and delete persisted tree snapshots",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database (default: config store.path)")

	save := &cobra.Command{
		Use:   "save <scenario.yaml>",
		Short: "Run a scenario and store the final tree",
		Long: `Run a scenario and store the tree it ends with. Saving a tree that is
already stored under the same name writes nothing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotSave(opts, args[0], cmd)
		},
	}
	save.Flags().StringVar(&opts.Name, "name", "", "snapshot name (default: scenario name)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(opts, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show <name>",
		Short:         "Print the latest snapshot stored under a name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(opts, args[0], cmd)
		},
	}

	del := &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete every snapshot stored under a name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotDelete(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(save, list, show, del)
	return cmd
}

func (o *SnapshotOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *SnapshotOptions) open(f *OutputFormatter) (*store.Store, error) {
	st, err := store.Open(o.database(), store.WithLogger(o.logger()))
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	f.VerboseLog("Opened snapshot database %s", o.database())
	return st, nil
}

func runSnapshotSave(opts *SnapshotOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	st, err := opts.open(f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := runContext(cmd)
	res, err := newRunner(opts.RootOptions, st, nil).Run(ctx, sc)
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario run aborted", err)
	}
	if !res.Pass {
		_ = f.Failure(ErrCodeFailed, fmt.Sprintf("scenario %s failed", sc.Name), res)
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed, nothing saved", sc.Name))
	}
	if res.Final == nil {
		_ = f.Error(ErrCodeFailed, "scenario ended without a tree", nil)
		return NewExitError(ExitFailure, "scenario ended without a tree")
	}

	name := opts.Name
	if name == "" {
		name = sc.Name
	}
	id, inserted, err := st.SaveSnapshot(ctx, name, *res.Final)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to save snapshot", err)
	}
	_, info, err := st.LoadSnapshotID(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read back snapshot", err)
	}

	out := SavedSnapshot{SnapshotInfo: info, Inserted: inserted}
	if opts.Format == "json" {
		return f.Success(out)
	}
	verb := "saved"
	if !inserted {
		verb = "unchanged"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s #%d (%d nodes, %d routes) %s\n",
		verb, info.Name, info.ID, info.NodeCount, info.RouteCount, info.Hash)
	return nil
}

func runSnapshotList(opts *SnapshotOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, err := opts.open(f)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListSnapshots(runContext(cmd))
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}
	if opts.Format == "json" {
		return f.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshots stored.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNODES\tROUTES\tROOT\tHASH")
	for _, info := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			info.ID, info.Name, info.NodeCount, info.RouteCount, info.Root, shortHash(info.Hash))
	}
	return tw.Flush()
}

func runSnapshotShow(opts *SnapshotOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, err := opts.open(f)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, info, err := st.LoadSnapshot(runContext(cmd), name)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("no snapshot named %q", name), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no snapshot named %q", name))
	}
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	out := ShownSnapshot{Info: info, Snapshot: snap}
	if opts.Format == "json" {
		return f.Success(out)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s #%d root=%s nodes=%d routes=%d\n", info.Name, info.ID, info.Root, info.NodeCount, info.RouteCount)
	fmt.Fprintf(w, "hash %s\n", info.Hash)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode snapshot", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func runSnapshotDelete(opts *SnapshotOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, err := opts.open(f)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.DeleteSnapshot(runContext(cmd), name)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to delete snapshot", err)
	}
	if n == 0 {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("no snapshot named %q", name), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no snapshot named %q", name))
	}
	if opts.Format == "json" {
		return f.Success(map[string]any{"name": name, "deleted": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d snapshot(s) named %s\n", n, name)
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
