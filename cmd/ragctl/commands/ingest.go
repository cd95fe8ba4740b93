package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docbot/internal/app"
	"docbot/internal/rag"
)

func NewIngestCmd(global *globalOptions) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "ingest <chatbot> <file|->",
		Short: "Chunk, embed and index a document as a chatbot",
		Long: `Index a .txt, .md or .pdf document under a chatbot name.

Uploading again under the same name adds the new chunks next to the old ones.

Examples:
  ragctl --owner-email me@example.com --owner-name "Jane Doe" ingest "Company Handbook" handbook.pdf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := global.scope(args[0])
			if err != nil {
				return err
			}
			text, err := readDocument(cmd, args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			application, err := global.loadApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			errOut := cmd.ErrOrStderr()
			result, err := application.RAGService.Ingest(ctx, app.IngestInput{
				Scope:    scope,
				Name:     args[1],
				Content:  text,
				Strategy: strategy,
			}, func(done, total int) {
				fmt.Fprintf(errOut, "\rembedded %d/%d", done, total)
				if done == total {
					fmt.Fprintln(errOut)
				}
			})

			var partial *rag.PartialUploadError
			if errors.As(err, &partial) {
				return fmt.Errorf("only %d of %d chunks were indexed, re-run ingest to retry: %w",
					partial.Committed, partial.Attempted, err)
			}
			if err != nil {
				return err
			}

			if global.format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunk(s) as %s\n", result.Written, result.ShareID)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "Chunking strategy: windowed or sentence (default from config)")
	return cmd
}
