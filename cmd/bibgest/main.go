package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/citation"
	"github.com/dgallion1/bibgest/internal/config"
	"github.com/dgallion1/bibgest/internal/relator"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bibgest",
		Short: "Bibliography catalog parser",
		Long: `Bibgest turns curated markdown bibliographies into a structured catalog.

Each document is split into sections and subsections, and every list item
becomes an entry with its title, URL, authors, notes and extra links.
Items that cannot be parsed are reported with their source line range.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("relators", os.Getenv("RELATORS_FILE"), "Relator table (JSON or YAML); defaults to the embedded MARC list")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log per-document progress")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(relatorsCmd())
	return rootCmd
}

func loadRelators(cmd *cobra.Command) (*relator.Registry, error) {
	path, _ := cmd.Flags().GetString("relators")
	if path == "" {
		return relator.Default(), nil
	}
	return relator.LoadFile(path)
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func parseCmd() *cobra.Command {
	cfg := config.Load()
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse bibliography directories into a catalog",
		Long: `Parse every markdown bibliography in the input directories.

The catalog is written to --output and the per-file parse errors to --errors.

Example:
  bibgest parse --input ./fpb/books --input ./fpb/courses
  bibgest parse --input ./fpb/books --output catalog.json --errors catalog.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, _ := cmd.Flags().GetStringSlice("input")
			output, _ := cmd.Flags().GetString("output")
			errorsPath, _ := cmd.Flags().GetString("errors")
			workers, _ := cmd.Flags().GetInt("workers")

			if len(inputs) == 0 {
				return fmt.Errorf("--input flag is required")
			}
			for _, dir := range inputs {
				info, err := os.Stat(dir)
				if err != nil {
					return fmt.Errorf("input not found: %s", dir)
				}
				if !info.IsDir() {
					return fmt.Errorf("input is not a directory: %s", dir)
				}
			}

			relators, err := loadRelators(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cmd)
			walker := catalog.NewWalker(citation.NewParser(relators), log, workers)

			start := time.Now()
			root, errLog, err := walker.ParseAll(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			if err := catalog.WriteJSON(output, root); err != nil {
				return err
			}
			if err := catalog.WriteJSON(errorsPath, errLog); err != nil {
				return err
			}

			documents, entries, faulty := 0, 0, 0
			for _, d := range root.Children {
				documents += len(d.Children)
				for _, doc := range d.Children {
					entries += doc.EntryCount()
				}
			}
			for _, d := range errLog.Directories {
				for _, f := range d.Files {
					faulty += len(f.Errors)
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Parsed %d documents (%d entries) in %s\n", documents, entries, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "  catalog: %s\n", output)
			fmt.Fprintf(out, "  errors:  %s (%d blocks)\n", errorsPath, faulty)
			return nil
		},
	}
	cmd.Flags().StringSlice("input", cfg.InputDirs, "Directories of bibliographies to parse")
	cmd.Flags().String("output", cfg.OutputPath, "Catalog JSON output path")
	cmd.Flags().String("errors", cfg.ErrorLogPath, "Error log JSON output path")
	cmd.Flags().Int("workers", cfg.WorkerCount, "Documents parsed concurrently per directory")
	return cmd
}

func relatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relators",
		Short: "Inspect the relator table used to validate author roles",
	}
	cmd.AddCommand(relatorsListCmd())
	cmd.AddCommand(relatorsShowCmd())
	cmd.AddCommand(relatorsFindCmd())
	cmd.AddCommand(relatorsCheckCmd())
	return cmd
}

func relatorsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all relator terms and aliases, sorted by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			relators, err := loadRelators(cmd)
			if err != nil {
				return err
			}
			terms := relators.ListAll()
			if asJSON {
				return writeJSON(cmd, terms)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tUSE")
			for _, t := range terms {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Code, t.Name, t.Use)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
	return cmd
}

func relatorsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show the relator term for a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relators, err := loadRelators(cmd)
			if err != nil {
				return err
			}
			term, ok := relators.Lookup(args[0])
			if !ok {
				return fmt.Errorf("relator not found: %s", args[0])
			}
			return writeJSON(cmd, term)
		},
	}
}

func relatorsFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find NAME",
		Short: "Find a relator term by name or alias (case-insensitive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relators, err := loadRelators(cmd)
			if err != nil {
				return err
			}
			term, ok := relators.FindByName(args[0])
			if !ok {
				return fmt.Errorf("relator not found: %s", args[0])
			}
			return writeJSON(cmd, term)
		},
	}
}

func relatorsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check TOKEN",
		Short: "Check an inline relator token such as \"trl.:\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relators, err := loadRelators(cmd)
			if err != nil {
				return err
			}
			term, ok := relators.ValidateCode(args[0])
			if !ok {
				return fmt.Errorf("invalid relator token: %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", args[0], term.Name, term.Code)
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
