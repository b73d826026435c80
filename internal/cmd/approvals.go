package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/creditgate/creditgate/internal/core/store"
	"github.com/creditgate/creditgate/internal/output"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and reset stored approvals",
}

var (
	approvalsListAll      bool
	approvalsListIdentity string
	approvalsListPrefix   string
)

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := store.ApprovalQuery{
			All:      approvalsListAll,
			Identity: strings.TrimSpace(approvalsListIdentity),
			Prefix:   strings.TrimSpace(approvalsListPrefix),
		}
		if !query.All && query.Identity == "" && query.Prefix == "" {
			query.All = true
		}

		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListApprovals(cmd.Context(), query)
		if err != nil {
			return err
		}

		path, err := sinkPath(cmd, format, "approvals.list")
		if err != nil {
			return err
		}
		sink, err := openSink(path)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatApprovals(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n"))
		return err
	},
}

var (
	approvalsResetAll      bool
	approvalsResetIdentity string
	approvalsResetPrefix   string
	approvalsResetYes      bool
	approvalsResetDryRun   bool
)

var approvalsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored approvals so the identities can apply again",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := store.ApprovalQuery{
			All:      approvalsResetAll,
			Identity: strings.TrimSpace(approvalsResetIdentity),
			Prefix:   strings.TrimSpace(approvalsResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !approvalsResetYes && !approvalsResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountApprovals(cmd.Context(), query)
		if err != nil {
			return err
		}

		path, err := sinkPath(cmd, format, "approvals.reset")
		if err != nil {
			return err
		}
		sink, err := openSink(path)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if approvalsResetDryRun {
			return writeResetResult(format, sink.writer, resetResult{Matched: matched, DryRun: true})
		}

		deleted, err := db.DeleteApprovals(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeResetResult(format, sink.writer, resetResult{Matched: matched, Deleted: deleted})
	},
}

type resetResult struct {
	Matched int   `json:"matched" yaml:"matched"`
	Deleted int64 `json:"deleted" yaml:"deleted"`
	DryRun  bool  `json:"dry_run" yaml:"dry_run"`
}

func writeResetResult(format output.Format, w io.Writer, result resetResult) error {
	switch format {
	case output.FormatJSON:
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	case output.FormatYAML:
		payload, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(payload))
		return err
	}

	summary := fmt.Sprintf("Deleted %d/%d approval(s)", result.Deleted, result.Matched)
	if result.DryRun {
		summary = fmt.Sprintf("Would delete %d approval(s)", result.Matched)
	}
	if format == output.FormatMarkdown {
		_, err := fmt.Fprintln(w, summary)
		return err
	}

	lines := []string{"Approval Reset", "", summary}
	_, err := fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

func init() {
	approvalsListCmd.Flags().BoolVar(&approvalsListAll, "all", false, "List all approvals (default when no filter is given)")
	approvalsListCmd.Flags().StringVar(&approvalsListIdentity, "identity", "", "List the approval of a single identity")
	approvalsListCmd.Flags().StringVar(&approvalsListPrefix, "prefix", "", "List identities with matching prefix")
	addOutputFlags(approvalsListCmd, output.FormatTable)

	approvalsResetCmd.Flags().BoolVar(&approvalsResetAll, "all", false, "Reset all approvals")
	approvalsResetCmd.Flags().StringVar(&approvalsResetIdentity, "identity", "", "Reset a single identity (exact match)")
	approvalsResetCmd.Flags().StringVar(&approvalsResetPrefix, "prefix", "", "Reset identities with matching prefix")
	approvalsResetCmd.Flags().BoolVar(&approvalsResetYes, "yes", false, "Confirm destructive reset")
	approvalsResetCmd.Flags().BoolVar(&approvalsResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(approvalsResetCmd, output.FormatTable)

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsResetCmd)
	rootCmd.AddCommand(approvalsCmd)
}
