package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docbot/internal/app"
)

func NewAskCmd(global *globalOptions) *cobra.Command {
	var (
		topK     int
		share    string
		showRefs bool
	)
	cmd := &cobra.Command{
		Use:   "ask [chatbot] <question>",
		Short: "Ask a chatbot a question",
		Long: `Ask one of your chatbots, or any shared chatbot with --share.

Examples:
  ragctl --owner-email me@example.com ask "Company Handbook" "How many vacation days do I get?"
  ragctl ask --share janedoe/company-handbook "Who do I call for IT help?"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if share == "" && len(args) != 2 {
				return errors.New("ask needs a chatbot and a question, or --share and a question")
			}
			question := args[len(args)-1]

			ctx := cmd.Context()
			application, err := global.loadApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()
			svc := application.RAGService

			input := app.ChatInput{Message: question, TopK: topK, Public: share != ""}
			if share != "" {
				input.Scope, err = svc.ResolveShare(ctx, share)
			} else {
				input.Scope, err = global.scope(args[0])
			}
			if err != nil {
				return err
			}

			result, err := svc.Chat(ctx, input)
			if err != nil {
				return err
			}
			if global.format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Response)
			if showRefs && len(result.References) > 0 {
				fmt.Fprintln(out, "\nReferences:")
				for i, ref := range result.References {
					fmt.Fprintf(out, "  [%d] (chunk %d, score %.3f) %s\n", i+1, ref.ChunkIndex, ref.Score, oneLine(ref.Text))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of references to retrieve (default from config)")
	cmd.Flags().StringVar(&share, "share", "", "Ask a shared chatbot by its share id")
	cmd.Flags().BoolVar(&showRefs, "refs", true, "Print the references used for the answer")
	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
