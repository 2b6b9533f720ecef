package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

func askCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question using the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := a.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			cmd.Printf("🤖 %s\n", answer.Text)
			for i, r := range answer.Sources {
				cmd.Printf("   %d. %s (similarity: %.2f)\n", i+1, r.Chunk.SourceID(), r.Score)
			}
			return nil
		},
	}
}

func searchCMD() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the chunks most similar to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			if len(results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			for i, r := range results {
				cmd.Printf("[%d] %s #%d (similarity: %.2f)\n", i+1, r.Chunk.SourceID(), r.Chunk.SequenceIndex, r.Score)
				cmd.Printf("    %s\n\n", strings.ReplaceAll(strings.TrimSpace(r.Chunk.Text), "\n", "\n    "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func statsCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show documents and chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.Stats()
			cmd.Printf("📊 %d documents, %d chunks\n", stats.DocumentCount, stats.ChunkCount)
			for source, n := range stats.Sources {
				cmd.Printf("   %s: %d chunks\n", source, n)
			}
			return nil
		},
	}
}

func clearCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove everything from the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Clear(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("🗑️ Knowledge base cleared")
			return nil
		},
	}
}

func removeCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove one document by its source name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.RemoveDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				cmd.Printf("Document %s not found\n", args[0])
				return nil
			}
			cmd.Printf("🗑️ Removed %s (%d chunks)\n", args[0], n)
			return nil
		},
	}
}
