package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-mail-packager/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "全行のパッケージ (zip) と、それらをまとめたアーカイブを生成します",
	Long: `入力テーブルの各行をスクレイピング結果で補完し (補完済みのテーブルならそのまま使い)、
テンプレートをレンダリングして <output-dir>/<ID>.zip を生成します。
最後に全パッケージをまとめた all_packages.zip を作成します。`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		summary, err := p.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("パッケージ生成パイプラインの実行エラー: %w", err)
		}

		printSummary(cmd, summary)
		if summary.Produced == 0 {
			return fmt.Errorf("パッケージが1つも生成されませんでした。入力データとテンプレートを確認してください")
		}
		return nil
	},
}

// printSummary は実行結果を標準出力に整形して表示します。
func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "--- 生成結果 (run: %s) ---\n", s.RunID)
	fmt.Fprintf(out, "生成数: %d / %d\n", s.Produced, s.Requested)
	for i, path := range s.Archives {
		fmt.Fprintf(out, "[%d] %s\n", i+1, path)
	}
	if s.Aggregate != "" {
		fmt.Fprintf(out, "全パッケージ: %s\n", s.Aggregate)
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintf(out, "警告: %d件\n", len(s.Warnings))
		for _, w := range s.Warnings {
			fmt.Fprintf(out, "  - %s\n", w.Error())
		}
	}
	fmt.Fprintln(out, "-----------------------")
}

func init() {
	addInputFlag(buildCmd)
	addTemplateFlag(buildCmd)
	addURLColumnsFlag(buildCmd)
	addImageColumnsFlag(buildCmd)
	addMetricsFlag(buildCmd)
	buildCmd.Flags().StringP("naming-column", "n", "", "パッケージ名に使う列 (未指定または空の場合は1始まりの行番号)")
	buildCmd.Flags().Bool("text-part", false, "各パッケージにテキスト版 (index.md) を同梱します")

	buildCmd.MarkFlagRequired("input")
	buildCmd.MarkFlagRequired("template")
}
