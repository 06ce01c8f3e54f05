package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	memoryUser   string
	searchLimit  int
	exportFormat string
	exportOutput string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage long-term memories",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memories for a user",
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		records, err := a.memory.ListAll(cmd.Context(), memoryUser)
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	}),
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a user's memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		records, err := a.memory.Search(cmd.Context(), memoryUser, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	}),
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete memories by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		deleted := 0
		for _, id := range args {
			if a.memory.DeleteOwned(cmd.Context(), memoryUser, id) {
				deleted++
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "not deleted: %s\n", id)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d\n", deleted, len(args))
		return nil
	}),
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every memory for a user",
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		if !a.memory.DeleteAll(cmd.Context(), memoryUser) {
			return fmt.Errorf("failed to clear memories for %s", memoryUser)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared memories for %s\n", memoryUser)
		return nil
	}),
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's memories as JSON or YAML",
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		var data []byte
		switch exportFormat {
		case "json":
			var err error
			if data, err = a.memory.Export(cmd.Context(), memoryUser); err != nil {
				return err
			}
		case "yaml":
			snapshot, err := a.memory.Snapshot(cmd.Context(), memoryUser)
			if err != nil {
				return err
			}
			if data, err = yaml.Marshal(snapshot); err != nil {
				return fmt.Errorf("marshal export: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q (json, yaml)", exportFormat)
		}
		return writeOutput(cmd.OutOrStdout(), exportOutput, data)
	}),
}

func init() {
	memoryCmd.PersistentFlags().StringVarP(&memoryUser, "user", "u", "default_user", "user ID")
	memorySearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	memoryExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format (json, yaml)")
	memoryExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")

	memoryCmd.AddCommand(memoryListCmd, memorySearchCmd, memoryDeleteCmd, memoryClearCmd, memoryExportCmd)
}

// withApp opens memory for the duration of one command.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		cmd.SetContext(ctx)

		a, err := newMemoryApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "exported to %s\n", path)
	return nil
}

