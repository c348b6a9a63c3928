package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"llmhub/common/utils"
	"llmhub/internal/chunker"
	"llmhub/internal/config"
	"llmhub/internal/extract"
	"llmhub/internal/ingest"
)

var (
	chunkSize      int
	chunkOverlap   int
	chunkSeparator string
	chunkNoClean   bool
	chunkJSON      bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "抽取本地文件文本并打印分块结果",
	Example: `  llmhub chunk README.md --size 200 --overlap 20
  llmhub chunk data.csv --separator '\n' --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().IntVar(&chunkSize, "size", chunker.DefaultChunkSize, "分块大小（token）")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", chunker.DefaultChunkOverlap, "分块重叠（token）")
	chunkCmd.Flags().StringVar(&chunkSeparator, "separator", "", "自定义分隔符，支持 \\n 转义")
	chunkCmd.Flags().BoolVar(&chunkNoClean, "no-clean", false, "不清理空白")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "以 JSON 输出")
}

func runChunk(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	storage, err := extract.NewFileStorage(filepath.Dir(path))
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	res, err := extract.NewDefaultExtractor(storage, config.ExtractConfig{}).Extract(cmd.Context(), extract.Source{
		DocType:  extract.InferDocType(name),
		FilePath: name,
		Clean:    !chunkNoClean,
	})
	if err != nil {
		return err
	}

	settings := chunker.Settings{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
	if chunkSeparator != "" {
		settings.Separators = []string{chunkSeparator}
	}
	summary := ingest.Summarize(chunker.Split(res.Text, settings))

	out := cmd.OutOrStdout()
	if chunkJSON {
		data, err := utils.ToJSON(summary)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, data)
		return nil
	}
	for _, c := range summary.Chunks {
		fmt.Fprintf(out, "--- #%d tokens=%d chars=%d\n%s\n", c.ChunkIndex, c.TokenCount, c.CharCount, c.Content)
	}
	fmt.Fprintf(out, "=== chunks=%d tokens=%d chars=%d\n", summary.TotalChunks, summary.TotalTokens, summary.TotalChars)
	return nil
}
