package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"voice_rag/internal/kb"
)

func ingestCMD() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload PDF, DOCX, TXT or Markdown files into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.IngestPaths(cmd.Context(), args)
			if printErr := printReport(cmd, report, asJSON); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func addTextCMD() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add-text [text]",
		Short: "Add text typed by hand (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("text is empty")
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.AddText(cmd.Context(), name, text)
			if printErr := printReport(cmd, report, false); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "source name (generated when empty)")
	return cmd
}

func printReport(cmd *cobra.Command, report kb.IngestReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	cmd.Printf("✅ Added %d documents (%d chunks)\n", report.DocumentsAdded, report.ChunksAdded)
	for _, f := range report.Failed {
		cmd.Printf("❌ %s: %v\n", f.SourceID, f.Err)
	}
	if len(report.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d documents failed\n", len(report.Failed))
	}
	return nil
}
