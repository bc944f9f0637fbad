package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ArxivDigest/internal/app"
	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/logging"
	"ArxivDigest/internal/taxonomy"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "arxivdigest",
		Short: "Personalised arXiv digest",
		Long: `arxivdigest fetches the recent arXiv listing for one subject area, asks a
relevance judge to score every paper against your interests, and delivers
the papers above the threshold as an HTML digest.

Example usage:
  arxivdigest run --config config.yaml
  arxivdigest run --no-deliver > digest.html
  arxivdigest categories "Computer Science"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newRunCmd(), newValidateCmd(), newCategoriesCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		noDeliver  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and deliver one digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			application, err := app.New(cmd.Context(), cfg, logger, app.Options{OutputPath: outPath, NoDeliver: noDeliver})
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Run(cmd.Context())
			if err != nil {
				logger.Error("run failed", "run_id", report.RunID, "error", err)
				return err
			}

			if noDeliver {
				_, err = cmd.OutOrStdout().Write(report.Document.HTML)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default $ARXIV_DIGEST_CONFIG or config.yaml)")
	cmd.Flags().StringVar(&outPath, "out", "", "write the digest here instead of output.path")
	cmd.Flags().BoolVar(&noDeliver, "no-deliver", false, "skip every sink and print the digest to stdout")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			summary := cfg.Summary()
			out := cmd.OutOrStdout()
			for i := 0; i+1 < len(summary); i += 2 {
				fmt.Fprintf(out, "%-14s %v\n", summary[i], summary[i+1])
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default $ARXIV_DIGEST_CONFIG or config.yaml)")
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [topic]",
		Short: "List topics, or the categories of one topic",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range taxonomy.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			topic, err := taxonomy.Lookup(args[0])
			if err != nil {
				return domain.Configuration("%v", err)
			}
			fmt.Fprintf(out, "%s (archive %s)\n", topic.Name, topic.Archive)
			for _, c := range topic.Categories {
				fmt.Fprintf(out, "  %-20s %s\n", c.Code, c.Name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "arxivdigest "+version)
		},
	}
}
