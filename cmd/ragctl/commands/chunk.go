package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docbot/internal/pkg/pdfextract"
	"docbot/internal/rag"
)

const maxPreviewWidth = 60

// readDocument reads a .txt/.md/.pdf file, or stdin when path is "-".
func readDocument(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		return pdfextract.ExtractDocument("stdin.txt", cmd.InOrStdin(), 0)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return pdfextract.ExtractDocument(filepath.Base(path), f, 0)
}

func NewChunkCmd(global *globalOptions) *cobra.Command {
	var (
		strategy string
		size     int
		overlap  int
	)
	cmd := &cobra.Command{
		Use:   "chunk <file|->",
		Short: "Preview how a document is chunked",
		Long: `Split a document exactly as ingestion would, without embedding it.

Examples:
  ragctl chunk handbook.pdf
  ragctl chunk --size 20 --overlap 5 notes.txt
  cat notes.txt | ragctl chunk --strategy sentence -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rag.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			chunker, err := rag.NewChunker(st, size, overlap)
			if err != nil {
				return err
			}
			text, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}

			chunks := chunker.Chunk(text)
			if global.format == "json" {
				return writeJSON(cmd.OutOrStdout(), chunks)
			}
			return printChunks(cmd.OutOrStdout(), chunks)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", string(rag.StrategyWindowed), "Chunking strategy: windowed or sentence")
	cmd.Flags().IntVar(&size, "size", rag.DefaultChunkSize, "Maximum chunk size in characters (windowed)")
	cmd.Flags().IntVar(&overlap, "overlap", rag.DefaultChunkOverlap, "Characters shared between neighbouring chunks (windowed)")
	return cmd
}

func printChunks(w io.Writer, chunks []rag.Chunk) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSPAN\tLEN\tTEXT")
	for _, c := range chunks {
		fmt.Fprintf(tw, "%d\t[%d,%d)\t%d\t%s\n", c.Ordinal, c.Start, c.End, c.End-c.Start, rag.Preview(oneLine(c.Text), maxPreviewWidth))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d chunk(s)\n", len(chunks))
	return err
}
