package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-router/domain/knowledge"
)

// newKnowledgeCmd creates the knowledge command group.
func (a *App) newKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
		Long: `Add documents to the knowledge base and search it.

Knowledge only outlives the command with a persistent backend such as
storage.knowledge: sqlite.`,
	}
	cmd.AddCommand(a.newKnowledgeAddCmd(), a.newKnowledgeSearchCmd())
	return cmd
}

func (a *App) newKnowledgeAddCmd() *cobra.Command {
	var title, source string

	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Add a document",
		Long: `Add a document read from a file, or from stdin with "-".

Examples:
  agent-router knowledge add -c router.yaml manual.md
  cat faq.txt | agent-router knowledge add -c router.yaml --title FAQ -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := a.readDocument(args[0])
			if err != nil {
				return err
			}
			if title == "" && args[0] != "-" {
				title = filepath.Base(args[0])
			}
			if source == "" && args[0] != "-" {
				source = args[0]
			}

			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			chunks, err := rt.Engine.AddKnowledge(cmd.Context(), knowledge.Document{
				Title:   title,
				Content: content,
				Source:  source,
			})
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				return errors.New("document produced no chunks")
			}
			fmt.Fprintf(a.stdout, "Added document %s (%d chunks)\n", chunks[0].DocumentID, len(chunks))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (default: file name)")
	cmd.Flags().StringVar(&source, "source", "", "Document source (default: file path)")

	return cmd
}

func (a *App) readDocument(path string) (string, error) {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

func (a *App) newKnowledgeSearchCmd() *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			hits, err := rt.Engine.SearchKnowledge(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(a.stdout, "No matches.")
				return nil
			}
			for i, h := range hits {
				fmt.Fprintf(a.stdout, "%d. [%.3f] %s\n", i+1, h.Score, h.Chunk.Title)
				fmt.Fprintf(a.stdout, "   %s\n", h.Chunk.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum hits (default: orchestrator.knowledge_top_k)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output hits as JSON")

	return cmd
}
