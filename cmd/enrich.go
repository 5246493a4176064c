package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shouni/go-mail-packager/internal/pipeline"
)

// 補完済みテーブルの出力先 ("-" は標準出力)
var enrichOutput string

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "URL列のページをスクレイピングし、titleN/imgN/leadN 列を追加したテーブルを出力します",
	Long: `入力テーブルの各行について、URL列のページから最初の h1、画像コンテナ直下の img、
リード文 (最大150文字) を取得し、列を追加したセミコロン区切りのテーブルを書き出します。
出力は build / preview コマンドの入力としてそのまま使えます。`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		var summary *pipeline.Summary
		err = writeOutput(cmd, enrichOutput, func(w io.Writer) error {
			summary, err = p.EnrichTable(cmd.Context(), w)
			return err
		})
		if err != nil {
			return fmt.Errorf("スクレイピングパイプラインの実行エラー: %w", err)
		}

		slog.Info("スクレイピングが完了しました",
			slog.Int("rows", summary.Requested),
			slog.Int("warnings", len(summary.Warnings)),
		)
		return nil
	},
}

func init() {
	addInputFlag(enrichCmd)
	addURLColumnsFlag(enrichCmd)
	addMetricsFlag(enrichCmd)
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "-", "補完済みテーブルの出力先 (- は標準出力)")

	enrichCmd.MarkFlagRequired("input")
}
