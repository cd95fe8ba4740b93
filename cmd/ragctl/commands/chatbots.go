package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docbot/internal/rag"
)

func NewChatbotsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chatbots",
		Short: "List the owner's chatbots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := global.requireOwner(); err != nil {
				return err
			}
			ctx := cmd.Context()
			application, err := global.loadApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			bots, err := application.RAGService.ListChatbots(ctx, global.ownerEmail)
			if err != nil {
				return err
			}
			if global.format == "json" {
				return writeJSON(cmd.OutOrStdout(), bots)
			}
			if len(bots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No chatbots yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SHARE ID\tNAME\tCHUNKS\tPREVIEW")
			for _, b := range bots {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.ShareID, b.Name, b.ChunkCount, rag.Preview(oneLine(b.PreviewText), maxPreviewWidth))
			}
			return tw.Flush()
		},
	}
}

func NewChunksCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <chatbot>",
		Short: "List the indexed chunks of a chatbot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := global.scope(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			application, err := global.loadApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			records, err := application.RAGService.ListChunks(ctx, scope)
			if err != nil {
				return err
			}
			if global.format == "json" {
				type chunkOut struct {
					ID         string `json:"id"`
					ChunkIndex int    `json:"chunkIndex"`
					Text       string `json:"text"`
					Generation string `json:"generation"`
				}
				out := make([]chunkOut, len(records))
				for i, r := range records {
					out[i] = chunkOut{ID: r.ID, ChunkIndex: r.Metadata.ChunkIndex, Text: r.Metadata.Text, Generation: r.Metadata.Generation}
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tUPLOADED\tTEXT")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Metadata.ChunkIndex,
					r.Metadata.Timestamp.Format("2006-01-02 15:04"), rag.Preview(oneLine(r.Metadata.Text), maxPreviewWidth))
			}
			return tw.Flush()
		},
	}
}
